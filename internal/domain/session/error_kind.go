package session

import (
	"fmt"
)

// ErrorKind 正規化されたエラー種別を表す値オブジェクト
type ErrorKind string

const (
	ErrorKindInvalidInput     ErrorKind = "invalid_input"     // 入力不正
	ErrorKindNetworkError     ErrorKind = "network_error"     // ネットワークエラー
	ErrorKindProviderRejected ErrorKind = "provider_rejected" // プロバイダー拒否（残高不足・宛先不正・ポリシー拒否を含む）
	ErrorKindUserCancelled    ErrorKind = "user_cancelled"    // ユーザーによるキャンセル
	ErrorKindTimeout          ErrorKind = "timeout"           // タイムアウト
	ErrorKindUnknown          ErrorKind = "unknown"           // 不明（生メッセージを保持）
)

// NewErrorKind 新しいErrorKindを作成
func NewErrorKind(s string) (ErrorKind, error) {
	kind := ErrorKind(s)
	if !kind.Valid() {
		return "", fmt.Errorf("invalid error kind: %s", s)
	}
	return kind, nil
}

// String 文字列表現を返す
func (ek ErrorKind) String() string {
	return string(ek)
}

// Valid 有効なエラー種別かどうかを返す
func (ek ErrorKind) Valid() bool {
	switch ek {
	case ErrorKindInvalidInput, ErrorKindNetworkError, ErrorKindProviderRejected,
		ErrorKindUserCancelled, ErrorKindTimeout, ErrorKindUnknown:
		return true
	default:
		return false
	}
}

// ErrorDetail 正規化されたエラー詳細
type ErrorDetail struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// NewErrorDetail 新しいErrorDetailを作成
func NewErrorDetail(kind ErrorKind, message string) ErrorDetail {
	return ErrorDetail{
		Kind:    kind,
		Message: message,
	}
}
