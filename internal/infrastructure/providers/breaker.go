package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"checkout-server/internal/domain/provider"
)

// BreakerAdapter サーキットブレーカー付きのアダプターラッパー
// 連続失敗でブレーカーが開くと、以後の呼び出しはプロバイダーへ到達せずに
// ErrProviderUnavailableを返す
type BreakerAdapter struct {
	inner   provider.Adapter
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerAdapter 新しいBreakerAdapterを作成
func NewBreakerAdapter(inner provider.Adapter) *BreakerAdapter {
	settings := gobreaker.Settings{
		Name:    inner.Name(),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BreakerAdapter{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Name プロバイダー名を返す
func (a *BreakerAdapter) Name() string {
	return a.inner.Name()
}

// Mode 確定方式を返す
func (a *BreakerAdapter) Mode() provider.ConfirmationMode {
	return a.inner.Mode()
}

// Initiate ブレーカー経由で決済を開始する
func (a *BreakerAdapter) Initiate(ctx context.Context, req *provider.InitiateRequest) (*provider.InitiateResult, error) {
	result, err := a.execute(func() (interface{}, error) {
		return a.inner.Initiate(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*provider.InitiateResult), nil
}

// Poll ブレーカー経由でステータスを照会する
func (a *BreakerAdapter) Poll(ctx context.Context, providerRef string) (*provider.PollOutcome, error) {
	result, err := a.execute(func() (interface{}, error) {
		return a.inner.Poll(ctx, providerRef)
	})
	if err != nil {
		return nil, err
	}
	return result.(*provider.PollOutcome), nil
}

// Capture ブレーカー経由で決済を確定する
func (a *BreakerAdapter) Capture(ctx context.Context, providerRef string, approval map[string]string) (*provider.ChargeDetails, error) {
	result, err := a.execute(func() (interface{}, error) {
		return a.inner.Capture(ctx, providerRef, approval)
	})
	if err != nil {
		return nil, err
	}
	return result.(*provider.ChargeDetails), nil
}

// execute ブレーカーの開放状態を接続不可エラーへ変換して実行する
func (a *BreakerAdapter) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := a.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: circuit breaker open for %s", provider.ErrProviderUnavailable, a.inner.Name())
	}
	return result, err
}
