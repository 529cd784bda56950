package checkout

import (
	"time"

	"checkout-server/internal/domain/session"
)

// CreateSessionRequest セッション作成リクエスト
type CreateSessionRequest struct {
	PurchaseRef string
	Method      string
	Amount      int64
	Currency    string
	Payer       PayerInput
}

// PayerInput 支払者情報の入力
type PayerInput struct {
	Name       string
	Email      string
	Phone      string
	Street     string
	City       string
	Region     string
	PostalCode string
}

// CaptureRequest リダイレクト方式の確定リクエスト
type CaptureRequest struct {
	Approval map[string]string
}

// ErrorDetailResponse 正規化エラー詳細のレスポンス表現
type ErrorDetailResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ResultResponse 成功結果のレスポンス表現
type ResultResponse struct {
	ProviderRef string    `json:"provider_ref"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// SessionResponse セッションの現在状態のレスポンス
type SessionResponse struct {
	SessionID   string               `json:"session_id"`
	PurchaseRef string               `json:"purchase_ref"`
	Method      string               `json:"method"`
	Amount      int64                `json:"amount"`
	Currency    string               `json:"currency"`
	State       string               `json:"state"`
	ProviderRef string               `json:"provider_ref,omitempty"`
	ApprovalURL string               `json:"approval_url,omitempty"`
	Error       *ErrorDetailResponse `json:"error,omitempty"`
	Result      *ResultResponse      `json:"result,omitempty"`
	Version     int                  `json:"version"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	ResolvedAt  *time.Time           `json:"resolved_at,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// newSessionResponse SessionエンティティからSessionResponseを構築
func newSessionResponse(sess *session.Session, approvalURL string) *SessionResponse {
	resp := &SessionResponse{
		SessionID:   sess.SessionID(),
		PurchaseRef: sess.PurchaseRef(),
		Method:      sess.Method().String(),
		Amount:      sess.Amount(),
		Currency:    sess.Currency(),
		State:       sess.State().String(),
		ProviderRef: sess.ProviderRef(),
		ApprovalURL: approvalURL,
		Version:     sess.Version(),
		CreatedAt:   sess.CreatedAt(),
		UpdatedAt:   sess.UpdatedAt(),
	}
	if detail := sess.ErrorDetail(); detail != nil {
		resp.Error = &ErrorDetailResponse{
			Kind:    detail.Kind.String(),
			Message: detail.Message,
		}
	}
	if result := sess.Result(); result != nil {
		resp.Result = &ResultResponse{
			ProviderRef: result.ProviderRef,
			Amount:      result.Amount,
			Currency:    result.Currency,
			ConfirmedAt: result.ConfirmedAt,
		}
	}
	if startedAt := sess.StartedAt(); !startedAt.IsZero() {
		resp.StartedAt = &startedAt
	}
	if resolvedAt := sess.ResolvedAt(); !resolvedAt.IsZero() {
		resp.ResolvedAt = &resolvedAt
	}
	return resp
}
