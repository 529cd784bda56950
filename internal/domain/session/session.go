package session

import (
	"regexp"
	"time"
)

var sessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-]{1,64}$`)

var currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// Session 1回の決済試行を表すエンティティ
// 状態遷移はこのエンティティの遷移メソッドのみが行う
type Session struct {
	sessionID   string
	purchaseRef string // 論理的な購入単位の識別子（同一購入で同時に複数セッションを許可しない）
	method      PaymentMethod
	amount      int64  // 最小通貨単位の整数値
	currency    string // 通貨コード（例: "KES"）
	payer       Payer
	state       SessionState
	providerRef string
	errorDetail *ErrorDetail
	result      *Result
	version     int // 遷移ごとにインクリメント（遅延応答の破棄判定用）
	startedAt   time.Time
	resolvedAt  time.Time
	createdAt   time.Time
	updatedAt   time.Time
}

// Result 成功時の結果ペイロード
type Result struct {
	ProviderRef string    `json:"provider_ref"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// NewSession 新しいSessionエンティティを作成
func NewSession(sessionID, purchaseRef string, method PaymentMethod, amount int64, currency string, payer Payer) (*Session, error) {
	if !sessionIDRegex.MatchString(sessionID) {
		return nil, ErrInvalidSessionID
	}
	if !method.Valid() {
		return nil, ErrInvalidPaymentMethod
	}
	now := time.Now()
	return &Session{
		sessionID:   sessionID,
		purchaseRef: purchaseRef,
		method:      method,
		amount:      amount,
		currency:    currency,
		payer:       payer,
		state:       SessionStateIdle,
		version:     1,
		createdAt:   now,
		updatedAt:   now,
	}, nil
}

// MustNewSession 新しいSessionエンティティを作成（エラー時はパニック、テスト用）
func MustNewSession(sessionID, purchaseRef string, method PaymentMethod, amount int64, currency string, payer Payer) *Session {
	s, err := NewSession(sessionID, purchaseRef, method, amount, currency, payer)
	if err != nil {
		panic(err)
	}
	return s
}

// RehydrateSession 永続化層からSessionエンティティを復元（遷移ガードを通さない）
func RehydrateSession(
	sessionID, purchaseRef string,
	method PaymentMethod,
	amount int64,
	currency string,
	payer Payer,
	state SessionState,
	providerRef string,
	errorDetail *ErrorDetail,
	result *Result,
	version int,
	startedAt, resolvedAt, createdAt, updatedAt time.Time,
) *Session {
	return &Session{
		sessionID:   sessionID,
		purchaseRef: purchaseRef,
		method:      method,
		amount:      amount,
		currency:    currency,
		payer:       payer,
		state:       state,
		providerRef: providerRef,
		errorDetail: errorDetail,
		result:      result,
		version:     version,
		startedAt:   startedAt,
		resolvedAt:  resolvedAt,
		createdAt:   createdAt,
		updatedAt:   updatedAt,
	}
}

// SessionID セッションIDを返す
func (s *Session) SessionID() string {
	return s.sessionID
}

// PurchaseRef 購入参照を返す
func (s *Session) PurchaseRef() string {
	return s.purchaseRef
}

// Method 決済手段を返す
func (s *Session) Method() PaymentMethod {
	return s.method
}

// Amount 金額を返す
func (s *Session) Amount() int64 {
	return s.amount
}

// Currency 通貨コードを返す
func (s *Session) Currency() string {
	return s.currency
}

// Payer 支払者情報を返す
func (s *Session) Payer() Payer {
	return s.payer
}

// State 現在の状態を返す
func (s *Session) State() SessionState {
	return s.state
}

// ProviderRef プロバイダー参照を返す
func (s *Session) ProviderRef() string {
	return s.providerRef
}

// ErrorDetail エラー詳細を返す（FAILED時のみ非nil）
func (s *Session) ErrorDetail() *ErrorDetail {
	return s.errorDetail
}

// Result 成功結果を返す（SUCCEEDED時のみ非nil）
func (s *Session) Result() *Result {
	return s.result
}

// Version バージョンを返す（遅延応答の破棄判定用）
func (s *Session) Version() int {
	return s.version
}

// StartedAt 開始日時を返す
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// ResolvedAt 解決日時を返す
func (s *Session) ResolvedAt() time.Time {
	return s.resolvedAt
}

// CreatedAt 作成日時を返す
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// UpdatedAt 更新日時を返す
func (s *Session) UpdatedAt() time.Time {
	return s.updatedAt
}

// IsTerminal 終端状態かどうかを返す
func (s *Session) IsTerminal() bool {
	return s.state.IsTerminal()
}

// Validate 入力検証（VALIDATING段階で実行）
func (s *Session) Validate() error {
	if s.amount <= 0 {
		return ErrInvalidAmount
	}
	if !currencyRegex.MatchString(s.currency) {
		return ErrInvalidCurrency
	}
	return s.payer.Validate(s.method)
}

// BeginValidation 検証フェーズへ遷移
func (s *Session) BeginValidation() error {
	if err := s.transition(SessionStateValidating); err != nil {
		return err
	}
	s.startedAt = time.Now()
	return nil
}

// BeginInitiation プロバイダー呼び出しフェーズへ遷移
func (s *Session) BeginInitiation() error {
	return s.transition(SessionStateInitiating)
}

// AwaitConfirmation 外部操作待ちへ遷移（プロバイダー参照を記録）
func (s *Session) AwaitConfirmation(providerRef string) error {
	if err := s.transition(SessionStateAwaitingConfirmation); err != nil {
		return err
	}
	s.providerRef = providerRef
	return nil
}

// BeginPolling ポーリングフェーズへ遷移
func (s *Session) BeginPolling() error {
	return s.transition(SessionStatePolling)
}

// Succeed 成功の終端状態へ遷移
func (s *Session) Succeed(providerRef string, confirmedAt time.Time) error {
	if err := s.transition(SessionStateSucceeded); err != nil {
		return err
	}
	if providerRef != "" {
		s.providerRef = providerRef
	}
	s.result = &Result{
		ProviderRef: s.providerRef,
		Amount:      s.amount,
		Currency:    s.currency,
		ConfirmedAt: confirmedAt,
	}
	s.resolvedAt = time.Now()
	return nil
}

// Fail 失敗の終端状態へ遷移（正規化済みエラー詳細を記録）
func (s *Session) Fail(detail ErrorDetail) error {
	if err := s.transition(SessionStateFailed); err != nil {
		return err
	}
	s.errorDetail = &detail
	s.resolvedAt = time.Now()
	return nil
}

// Cancel キャンセルの終端状態へ遷移
// 既にキャンセル済みの場合は何もしない（冪等）
func (s *Session) Cancel() error {
	if s.state == SessionStateCancelled {
		return nil
	}
	if s.state.IsTerminal() {
		return ErrSessionAlreadyTerminal
	}
	if err := s.transition(SessionStateCancelled); err != nil {
		return err
	}
	s.resolvedAt = time.Now()
	return nil
}

// transition 遷移表を検証して状態を更新
func (s *Session) transition(next SessionState) error {
	if !s.state.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	s.state = next
	s.version++
	s.updatedAt = time.Now()
	return nil
}
