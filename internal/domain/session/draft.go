package session

import (
	"context"
)

// Draft チェックアウトフォームの一時保存データ
// セッションが終端状態に達したら破棄される
type Draft struct {
	PurchaseRef string        `json:"purchase_ref"`
	Method      PaymentMethod `json:"method"`
	Amount      int64         `json:"amount"`
	Currency    string        `json:"currency"`
	Payer       Payer         `json:"payer"`
}

// DraftStore ドラフトストアインターフェース
type DraftStore interface {
	// Save ドラフトを保存
	Save(ctx context.Context, sessionID string, draft *Draft) error

	// Load セッションIDでドラフトを取得
	Load(ctx context.Context, sessionID string) (*Draft, error)

	// Clear ドラフトを破棄
	Clear(ctx context.Context, sessionID string) error
}
