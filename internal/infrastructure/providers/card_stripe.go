package providers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"checkout-server/internal/domain/provider"
	"checkout-server/internal/infrastructure/config"
)

const cardProviderName = "stripe"

// StripeCardAdapter Stripe PaymentIntentを使用したカード決済アダプター
// Initiateの呼び出しで結果が同期的に確定する
type StripeCardAdapter struct {
	api           *client.API
	paymentMethod string
}

// NewStripeCardAdapter 新しいStripeCardAdapterを作成
func NewStripeCardAdapter(cfg config.StripeConfig) *StripeCardAdapter {
	api := &client.API{}
	api.Init(cfg.APIKey, nil)
	return &StripeCardAdapter{
		api:           api,
		paymentMethod: cfg.PaymentMethod,
	}
}

// NewStripeCardAdapterWithClient クライアントを指定してStripeCardAdapterを作成（テスト用）
func NewStripeCardAdapterWithClient(api *client.API, paymentMethod string) *StripeCardAdapter {
	return &StripeCardAdapter{
		api:           api,
		paymentMethod: paymentMethod,
	}
}

// Name プロバイダー名を返す
func (a *StripeCardAdapter) Name() string {
	return cardProviderName
}

// Mode 確定方式を返す
func (a *StripeCardAdapter) Mode() provider.ConfirmationMode {
	return provider.ConfirmationModeSync
}

// Initiate PaymentIntentを作成して同期確定する
func (a *StripeCardAdapter) Initiate(ctx context.Context, req *provider.InitiateRequest) (*provider.InitiateResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		PaymentMethod: stripe.String(a.paymentMethod),
		Confirm:       stripe.Bool(true),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	if req.Payer.Email != "" {
		params.ReceiptEmail = stripe.String(req.Payer.Email)
	}

	intent, err := a.api.PaymentIntents.New(params)
	if err != nil {
		return nil, translateStripeError(err)
	}

	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, provider.NewAdapterError(cardProviderName, string(intent.Status),
			"payment intent did not complete", nil)
	}

	return &provider.InitiateResult{
		ProviderRef: intent.ID,
		ConfirmedAt: time.Now(),
	}, nil
}

// Poll 同期方式では未対応
func (a *StripeCardAdapter) Poll(ctx context.Context, providerRef string) (*provider.PollOutcome, error) {
	return nil, provider.ErrUnsupportedOperation
}

// Capture 同期方式では未対応
func (a *StripeCardAdapter) Capture(ctx context.Context, providerRef string, approval map[string]string) (*provider.ChargeDetails, error) {
	return nil, provider.ErrUnsupportedOperation
}

// translateStripeError StripeのエラーをAdapterErrorへ変換
func translateStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		message := stripeErr.Msg
		if stripeErr.DeclineCode != "" {
			message = stripeErr.Msg + " (" + string(stripeErr.DeclineCode) + ")"
		}
		return provider.NewAdapterError(cardProviderName, string(stripeErr.Code), message, err)
	}
	return provider.NewAdapterError(cardProviderName, "", err.Error(), err)
}
