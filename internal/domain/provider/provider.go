package provider

import (
	"context"
	"time"

	"checkout-server/internal/domain/session"
)

// ConfirmationMode プロバイダーの確定方式
type ConfirmationMode string

const (
	ConfirmationModeSync    ConfirmationMode = "sync"    // Initiateで結果が確定する（カード）
	ConfirmationModePoll    ConfirmationMode = "poll"    // ポーリングで確定する（モバイルウォレット）
	ConfirmationModeCapture ConfirmationMode = "capture" // ユーザー承認後のキャプチャで確定する（リダイレクト）
)

// String 文字列表現を返す
func (cm ConfirmationMode) String() string {
	return string(cm)
}

// InitiateRequest 決済開始リクエスト
type InitiateRequest struct {
	Amount         int64
	Currency       string
	Payer          session.Payer
	IdempotencyKey string // セッションIDを冪等キーとして使用
}

// InitiateResult 決済開始結果
type InitiateResult struct {
	ProviderRef string
	// ApprovalURL リダイレクト方式でユーザーを誘導するURL（それ以外は空）
	ApprovalURL string
	// ConfirmedAt 同期確定時の確定日時（非同期方式ではゼロ値）
	ConfirmedAt time.Time
}

// PollStatus ポーリング結果の分類
type PollStatus string

const (
	PollStatusPending PollStatus = "pending" // 未確定（継続）
	PollStatusSuccess PollStatus = "success" // 確定成功
	PollStatusFailure PollStatus = "failure" // 確定失敗
)

// PollOutcome 1回のポーリングの結果
type PollOutcome struct {
	Status        PollStatus
	FailureReason string    // Status == failure のときのプロバイダー側理由（生テキスト）
	FailureCode   string    // プロバイダー側の結果コード（あれば）
	ConfirmedAt   time.Time // Status == success のときの確定日時
}

// ChargeDetails キャプチャ確定時の結果
type ChargeDetails struct {
	ProviderRef string
	ConfirmedAt time.Time
}

// Adapter 外部決済プロバイダーとの境界インターフェース
// セッション状態機械は確定方式（sync/poll/capture）のみを前提にし、
// 具体的なプロバイダーには依存しない
type Adapter interface {
	// Name プロバイダー名を返す
	Name() string

	// Mode 確定方式を返す
	Mode() ConfirmationMode

	// Initiate 決済を開始する
	// sync方式はこの呼び出しで結果が確定する
	Initiate(ctx context.Context, req *InitiateRequest) (*InitiateResult, error)

	// Poll プロバイダー参照のステータスを確認する（poll方式のみ）
	Poll(ctx context.Context, providerRef string) (*PollOutcome, error)

	// Capture ユーザー承認後に決済を確定する（capture方式のみ）
	Capture(ctx context.Context, providerRef string, approval map[string]string) (*ChargeDetails, error)
}
