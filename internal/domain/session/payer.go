package session

import (
	"regexp"
	"strings"
)

var (
	// mobilePhoneRegex ケニアのモバイル番号パターン（Safaricom/Airtelのプレフィックス）
	mobilePhoneRegex = regexp.MustCompile(`^(?:\+?254|0)[17]\d{8}$`)
	// emailRegex 簡易的なメールアドレスパターン
	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Payer 支払者情報を表す値オブジェクト
type Payer struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
}

// Validate 決済手段ごとの必須項目を検証
func (p Payer) Validate(method PaymentMethod) error {
	switch method {
	case PaymentMethodMobileWallet:
		if !mobilePhoneRegex.MatchString(strings.TrimSpace(p.Phone)) {
			return ErrInvalidPhoneNumber
		}
		return nil
	case PaymentMethodCard, PaymentMethodRedirect:
		if strings.TrimSpace(p.Name) == "" {
			return ErrInvalidPayerName
		}
		if !emailRegex.MatchString(strings.TrimSpace(p.Email)) {
			return ErrInvalidEmail
		}
		if strings.TrimSpace(p.Street) == "" ||
			strings.TrimSpace(p.City) == "" ||
			strings.TrimSpace(p.Region) == "" ||
			strings.TrimSpace(p.PostalCode) == "" {
			return ErrInvalidAddress
		}
		return nil
	default:
		return ErrInvalidPaymentMethod
	}
}

// NormalizedPhone 国際形式（254...）に正規化した電話番号を返す
func (p Payer) NormalizedPhone() string {
	phone := strings.TrimSpace(p.Phone)
	phone = strings.TrimPrefix(phone, "+")
	if strings.HasPrefix(phone, "0") {
		phone = "254" + phone[1:]
	}
	return phone
}
