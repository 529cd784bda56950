package providers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"checkout-server/internal/domain/provider"
)

// stubAdapter テスト用のアダプタースタブ
type stubAdapter struct {
	mock.Mock
}

func (s *stubAdapter) Name() string {
	return "stub"
}

func (s *stubAdapter) Mode() provider.ConfirmationMode {
	return provider.ConfirmationModePoll
}

func (s *stubAdapter) Initiate(ctx context.Context, req *provider.InitiateRequest) (*provider.InitiateResult, error) {
	args := s.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.InitiateResult), args.Error(1)
}

func (s *stubAdapter) Poll(ctx context.Context, providerRef string) (*provider.PollOutcome, error) {
	args := s.Called(ctx, providerRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.PollOutcome), args.Error(1)
}

func (s *stubAdapter) Capture(ctx context.Context, providerRef string, approval map[string]string) (*provider.ChargeDetails, error) {
	args := s.Called(ctx, providerRef, approval)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.ChargeDetails), args.Error(1)
}

func TestBreakerAdapter(t *testing.T) {
	t.Run("正常系: 成功時は内側の結果を返す", func(t *testing.T) {
		inner := new(stubAdapter)
		inner.On("Initiate", mock.Anything, mock.Anything).Return(&provider.InitiateResult{
			ProviderRef: "ref_1",
		}, nil)
		breaker := NewBreakerAdapter(inner)

		result, err := breaker.Initiate(context.Background(), &provider.InitiateRequest{Amount: 500})

		require.NoError(t, err)
		assert.Equal(t, "ref_1", result.ProviderRef)
		assert.Equal(t, "stub", breaker.Name())
		assert.Equal(t, provider.ConfirmationModePoll, breaker.Mode())
	})

	t.Run("正常系: 連続失敗でブレーカーが開く", func(t *testing.T) {
		inner := new(stubAdapter)
		inner.On("Poll", mock.Anything, "ref_1").Return(nil, assert.AnError)
		breaker := NewBreakerAdapter(inner)

		// 開放条件まで失敗を繰り返す
		for i := 0; i < 5; i++ {
			_, err := breaker.Poll(context.Background(), "ref_1")
			require.Error(t, err)
			assert.NotErrorIs(t, err, provider.ErrProviderUnavailable)
		}

		// 開放後はプロバイダーへ到達しない
		_, err := breaker.Poll(context.Background(), "ref_1")
		assert.ErrorIs(t, err, provider.ErrProviderUnavailable)
		inner.AssertNumberOfCalls(t, "Poll", 5)
	})

	t.Run("正常系: タイムアウト経過後に再試行が通る", func(t *testing.T) {
		inner := new(stubAdapter)
		inner.On("Capture", mock.Anything, "ref_1", mock.Anything).Return(&provider.ChargeDetails{
			ProviderRef: "charge_1",
			ConfirmedAt: time.Now(),
		}, nil)
		breaker := NewBreakerAdapter(inner)

		details, err := breaker.Capture(context.Background(), "ref_1", map[string]string{"token": "tok"})

		require.NoError(t, err)
		assert.Equal(t, "charge_1", details.ProviderRef)
	})
}
