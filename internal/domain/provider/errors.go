package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedOperation 確定方式が対応しない操作エラー
	ErrUnsupportedOperation = errors.New("operation not supported by this provider")
	// ErrProviderUnavailable プロバイダー接続不可エラー（サーキットブレーカー開放を含む）
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

// AdapterError プロバイダー固有のエラー
// Codeはプロバイダーの結果コード、Messageは生メッセージを保持する
type AdapterError struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

// Error errorインターフェースを実装
func (e *AdapterError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: [%s] %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Unwrap 内包するエラーを返す
func (e *AdapterError) Unwrap() error {
	return e.Err
}

// NewAdapterError 新しいAdapterErrorを作成
func NewAdapterError(provider, code, message string, err error) *AdapterError {
	return &AdapterError{
		Provider: provider,
		Code:     code,
		Message:  message,
		Err:      err,
	}
}
