package session

import (
	"fmt"
)

// SessionState 決済セッションの状態を表す値オブジェクト
type SessionState string

const (
	SessionStateIdle                 SessionState = "idle"                  // 開始前
	SessionStateValidating           SessionState = "validating"            // 入力検証中
	SessionStateInitiating           SessionState = "initiating"            // プロバイダー呼び出し中
	SessionStateAwaitingConfirmation SessionState = "awaiting_confirmation" // 外部操作待ち
	SessionStatePolling              SessionState = "polling"               // ステータス確認中
	SessionStateSucceeded            SessionState = "succeeded"             // 成功（終端）
	SessionStateFailed               SessionState = "failed"                // 失敗（終端）
	SessionStateCancelled            SessionState = "cancelled"             // キャンセル（終端）
)

// NewSessionState 新しいSessionStateを作成
func NewSessionState(s string) (SessionState, error) {
	state := SessionState(s)
	if !state.Valid() {
		return "", fmt.Errorf("invalid session state: %s", s)
	}
	return state, nil
}

// String 文字列表現を返す
func (ss SessionState) String() string {
	return string(ss)
}

// Valid 有効なセッション状態かどうかを返す
func (ss SessionState) Valid() bool {
	switch ss {
	case SessionStateIdle, SessionStateValidating, SessionStateInitiating,
		SessionStateAwaitingConfirmation, SessionStatePolling,
		SessionStateSucceeded, SessionStateFailed, SessionStateCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal 終端状態かどうかを返す
func (ss SessionState) IsTerminal() bool {
	switch ss {
	case SessionStateSucceeded, SessionStateFailed, SessionStateCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo 指定した状態へ遷移可能かどうかを返す
func (ss SessionState) CanTransitionTo(next SessionState) bool {
	// キャンセルは非終端状態からのみ可能
	if next == SessionStateCancelled {
		return !ss.IsTerminal()
	}

	switch ss {
	case SessionStateIdle:
		return next == SessionStateValidating
	case SessionStateValidating:
		return next == SessionStateInitiating || next == SessionStateFailed
	case SessionStateInitiating:
		return next == SessionStateAwaitingConfirmation ||
			next == SessionStateSucceeded ||
			next == SessionStateFailed
	case SessionStateAwaitingConfirmation:
		return next == SessionStatePolling ||
			next == SessionStateSucceeded ||
			next == SessionStateFailed
	case SessionStatePolling:
		return next == SessionStateSucceeded || next == SessionStateFailed
	default:
		return false
	}
}
