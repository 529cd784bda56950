package session

import (
	"fmt"
)

// PaymentMethod 決済手段を表す値オブジェクト
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"          // カード決済（同期確定）
	PaymentMethodMobileWallet PaymentMethod = "mobile_wallet" // モバイルウォレット（ポーリング確定）
	PaymentMethodRedirect     PaymentMethod = "redirect"      // リダイレクト決済（キャプチャ確定）
)

// NewPaymentMethod 新しいPaymentMethodを作成
func NewPaymentMethod(s string) (PaymentMethod, error) {
	switch s {
	case "card", "mobile_wallet", "redirect":
		return PaymentMethod(s), nil
	default:
		return "", fmt.Errorf("invalid payment method: %s", s)
	}
}

// String 文字列表現を返す
func (pm PaymentMethod) String() string {
	return string(pm)
}

// Valid 有効な決済手段かどうかを返す
func (pm PaymentMethod) Valid() bool {
	switch pm {
	case PaymentMethodCard, PaymentMethodMobileWallet, PaymentMethodRedirect:
		return true
	default:
		return false
	}
}
