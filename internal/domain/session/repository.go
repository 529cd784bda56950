package session

import (
	"context"
)

// SessionRepository Sessionリポジトリインターフェース
type SessionRepository interface {
	// Save Sessionを保存（既存の場合は上書き）
	Save(ctx context.Context, sess *Session) error

	// FindBySessionID セッションIDでSessionを取得
	FindBySessionID(ctx context.Context, sessionID string) (*Session, error)

	// FindActiveByPurchaseRef 購入参照で非終端のSessionを取得
	FindActiveByPurchaseRef(ctx context.Context, purchaseRef string) (*Session, error)
}
