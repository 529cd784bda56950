package session

import "errors"

var (
	// ErrSessionNotFound セッションが見つからないエラー
	ErrSessionNotFound = errors.New("payment session not found")
	// ErrInvalidTransition 許可されない状態遷移エラー
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrSessionAlreadyTerminal 既に終端状態に達しているエラー
	ErrSessionAlreadyTerminal = errors.New("payment session already in terminal state")
	// ErrInvalidSessionID セッションIDが無効
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrInvalidPaymentMethod 決済手段が無効
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	// ErrInvalidAmount 金額が無効
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidCurrency 通貨コードが無効
	ErrInvalidCurrency = errors.New("invalid currency code")
	// ErrInvalidPhoneNumber 電話番号が無効
	ErrInvalidPhoneNumber = errors.New("invalid mobile phone number")
	// ErrInvalidPayerName 支払者名が無効
	ErrInvalidPayerName = errors.New("payer name is required")
	// ErrInvalidEmail メールアドレスが無効
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidAddress 住所が不完全
	ErrInvalidAddress = errors.New("incomplete billing address")
	// ErrDraftNotFound ドラフトが見つからないエラー
	ErrDraftNotFound = errors.New("checkout draft not found")
)
