package handler

import "time"

// CreateSessionRequest セッション作成リクエスト
// @Description セッション作成リクエスト
type CreateSessionRequest struct {
	PurchaseRef string     `json:"purchase_ref" example:"listing_42"`
	Method      string     `json:"method" example:"card"`
	Amount      string     `json:"amount" example:"250000"`
	Currency    string     `json:"currency" example:"KES"`
	Payer       PayerInput `json:"payer"`
}

// PayerInput 支払者情報
// @Description 支払者情報
type PayerInput struct {
	Name       string `json:"name" example:"Jane Wanjiku"`
	Email      string `json:"email" example:"jane@example.com"`
	Phone      string `json:"phone" example:"0712345678"`
	Street     string `json:"street" example:"Moi Avenue 12"`
	City       string `json:"city" example:"Nairobi"`
	Region     string `json:"region" example:"Nairobi County"`
	PostalCode string `json:"postal_code" example:"00100"`
}

// CaptureSessionRequest リダイレクト承認後の確定リクエスト
// @Description リダイレクト承認後の確定リクエスト
type CaptureSessionRequest struct {
	Approval map[string]string `json:"approval"`
}

// SessionErrorDetail 正規化エラー詳細
// @Description 正規化エラー詳細
type SessionErrorDetail struct {
	Kind    string `json:"kind" example:"provider_rejected"`
	Message string `json:"message" example:"Your card was declined."`
}

// SessionResult 決済成功結果
// @Description 決済成功結果
type SessionResult struct {
	ProviderRef string    `json:"provider_ref" example:"pi_3OaX2e"`
	Amount      string    `json:"amount" example:"250000"`
	Currency    string    `json:"currency" example:"KES"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// SessionResponse 決済セッションレスポンス
// @Description 決済セッションレスポンス
type SessionResponse struct {
	SessionID   string              `json:"session_id" example:"cs_8f14e45f"`
	PurchaseRef string              `json:"purchase_ref" example:"listing_42"`
	Method      string              `json:"method" example:"card"`
	Amount      string              `json:"amount" example:"250000"`
	Currency    string              `json:"currency" example:"KES"`
	State       string              `json:"state" example:"awaiting_confirmation"`
	ProviderRef string              `json:"provider_ref,omitempty" example:"ws_CO_123"`
	ApprovalURL string              `json:"approval_url,omitempty" example:"https://provider.example/approve/order_1"`
	Error       *SessionErrorDetail `json:"error,omitempty"`
	Result      *SessionResult      `json:"result,omitempty"`
	Version     int                 `json:"version" example:"3"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	ResolvedAt  *time.Time          `json:"resolved_at,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}
