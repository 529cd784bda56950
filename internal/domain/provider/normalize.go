package provider

import (
	"context"
	"errors"
	"strings"

	"checkout-server/internal/domain/session"
)

// resultCodeKinds プロバイダー結果コードから正規化エラー種別への対応表
// （Darajaスタイルのモバイルウォレット結果コード）
var resultCodeKinds = map[string]session.ErrorKind{
	"1":    session.ErrorKindProviderRejected, // 残高不足
	"17":   session.ErrorKindProviderRejected, // ルール違反
	"20":   session.ErrorKindProviderRejected, // 無効な宛先
	"26":   session.ErrorKindProviderRejected, // システムビジー
	"1001": session.ErrorKindProviderRejected, // 同時トランザクション制限
	"1019": session.ErrorKindTimeout,          // トランザクション期限切れ
	"1032": session.ErrorKindUserCancelled,    // ユーザーによる取消
	"1037": session.ErrorKindTimeout,          // 端末到達不可
	"2001": session.ErrorKindProviderRejected, // 認証情報不正
}

// rejectionPhrases プロバイダー拒否と判定する生メッセージの断片
var rejectionPhrases = []string{
	"insufficient",
	"declined",
	"rejected",
	"invalid recipient",
	"invalid account",
	"limit exceeded",
	"not allowed",
	"blocked",
}

// NormalizeFailure プロバイダーの結果コードと生メッセージを正規化エラーへ変換
// 対応表にないものはUNKNOWNとし、生メッセージを保持する
func NormalizeFailure(code, message string) session.ErrorDetail {
	if kind, ok := resultCodeKinds[code]; ok {
		return session.NewErrorDetail(kind, message)
	}

	lower := strings.ToLower(message)
	for _, phrase := range rejectionPhrases {
		if strings.Contains(lower, phrase) {
			return session.NewErrorDetail(session.ErrorKindProviderRejected, message)
		}
	}
	if strings.Contains(lower, "cancelled by user") || strings.Contains(lower, "canceled by user") {
		return session.NewErrorDetail(session.ErrorKindUserCancelled, message)
	}
	if strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out") || strings.Contains(lower, "expired") {
		return session.NewErrorDetail(session.ErrorKindTimeout, message)
	}

	return session.NewErrorDetail(session.ErrorKindUnknown, message)
}

// NormalizeError アダプター呼び出しのエラーを正規化エラーへ変換
func NormalizeError(err error) session.ErrorDetail {
	if err == nil {
		return session.NewErrorDetail(session.ErrorKindUnknown, "")
	}

	// 接続不可・期限超過はネットワークエラー扱い
	if errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return session.NewErrorDetail(session.ErrorKindNetworkError, err.Error())
	}

	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		return NormalizeFailure(adapterErr.Code, adapterErr.Message)
	}

	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "connection") || strings.Contains(lower, "network") ||
		strings.Contains(lower, "no such host") || strings.Contains(lower, "refused") {
		return session.NewErrorDetail(session.ErrorKindNetworkError, err.Error())
	}

	return NormalizeFailure("", err.Error())
}
