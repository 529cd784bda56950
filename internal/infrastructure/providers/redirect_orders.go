package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"checkout-server/internal/domain/provider"
	"checkout-server/internal/infrastructure/config"
)

const redirectProviderName = "orders"

// OrdersRedirectAdapter リダイレクト承認方式の決済アダプター
// Initiateで注文を作成して承認URLを返し、ユーザーの承認後にCaptureで確定する
type OrdersRedirectAdapter struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
	returnURL    string
	cancelURL    string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewOrdersRedirectAdapter 新しいOrdersRedirectAdapterを作成
func NewOrdersRedirectAdapter(cfg config.RedirectConfig, httpClient *http.Client) *OrdersRedirectAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &OrdersRedirectAdapter{
		httpClient:   httpClient,
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		returnURL:    cfg.ReturnURL,
		cancelURL:    cfg.CancelURL,
	}
}

// Name プロバイダー名を返す
func (a *OrdersRedirectAdapter) Name() string {
	return redirectProviderName
}

// Mode 確定方式を返す
func (a *OrdersRedirectAdapter) Mode() provider.ConfirmationMode {
	return provider.ConfirmationModeCapture
}

type orderAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type orderUnit struct {
	ReferenceID string      `json:"reference_id"`
	Amount      orderAmount `json:"amount"`
}

type createOrderRequest struct {
	Intent             string      `json:"intent"`
	PurchaseUnits      []orderUnit `json:"purchase_units"`
	ApplicationContext struct {
		ReturnURL string `json:"return_url"`
		CancelURL string `json:"cancel_url"`
	} `json:"application_context"`
}

type orderLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type orderResponse struct {
	ID      string      `json:"id"`
	Status  string      `json:"status"`
	Links   []orderLink `json:"links"`
	Name    string      `json:"name"`
	Message string      `json:"message"`
}

// Initiate 注文を作成して承認URLを返す
func (a *OrdersRedirectAdapter) Initiate(ctx context.Context, req *provider.InitiateRequest) (*provider.InitiateResult, error) {
	body := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []orderUnit{
			{
				ReferenceID: req.IdempotencyKey,
				Amount: orderAmount{
					CurrencyCode: req.Currency,
					Value:        formatMinorUnits(req.Amount),
				},
			},
		},
	}
	body.ApplicationContext.ReturnURL = a.returnURL
	body.ApplicationContext.CancelURL = a.cancelURL

	var resp orderResponse
	status, err := a.postJSON(ctx, "/v2/checkout/orders", req.IdempotencyKey, body, &resp)
	if err != nil {
		return nil, err
	}
	if status >= http.StatusBadRequest {
		return nil, provider.NewAdapterError(redirectProviderName, resp.Name, resp.Message, nil)
	}

	approvalURL := ""
	for _, link := range resp.Links {
		if link.Rel == "approve" {
			approvalURL = link.Href
			break
		}
	}
	if approvalURL == "" {
		return nil, provider.NewAdapterError(redirectProviderName, resp.Status,
			"order response did not contain an approval link", nil)
	}

	return &provider.InitiateResult{
		ProviderRef: resp.ID,
		ApprovalURL: approvalURL,
	}, nil
}

// Poll リダイレクト方式では未対応
func (a *OrdersRedirectAdapter) Poll(ctx context.Context, providerRef string) (*provider.PollOutcome, error) {
	return nil, provider.ErrUnsupportedOperation
}

type captureResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Capture ユーザー承認済みの注文を確定する
func (a *OrdersRedirectAdapter) Capture(ctx context.Context, providerRef string, approval map[string]string) (*provider.ChargeDetails, error) {
	path := fmt.Sprintf("/v2/checkout/orders/%s/capture", url.PathEscape(providerRef))

	var resp captureResponse
	status, err := a.postJSON(ctx, path, providerRef, struct{}{}, &resp)
	if err != nil {
		return nil, err
	}
	if status >= http.StatusBadRequest {
		return nil, provider.NewAdapterError(redirectProviderName, resp.Name, resp.Message, nil)
	}
	if resp.Status != "COMPLETED" {
		return nil, provider.NewAdapterError(redirectProviderName, resp.Status,
			"order capture did not complete", nil)
	}

	return &provider.ChargeDetails{
		ProviderRef: resp.ID,
		ConfirmedAt: time.Now(),
	}, nil
}

// formatMinorUnits 最小通貨単位の整数を注文APIの小数表記へ変換
func formatMinorUnits(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}

type redirectTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// token アクセストークンを取得（有効期限内はキャッシュを返す）
func (a *OrdersRedirectAdapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return a.accessToken, nil
	}

	form := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/oauth2/token", form)
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.SetBasicAuth(a.clientID, a.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", provider.NewAdapterError(redirectProviderName, fmt.Sprintf("%d", resp.StatusCode),
			"access token request rejected", nil)
	}

	var token redirectTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	a.accessToken = token.AccessToken
	expiry := time.Duration(token.ExpiresIn) * time.Second
	if expiry > time.Minute {
		expiry -= time.Minute
	}
	a.tokenExpiry = time.Now().Add(expiry)
	return a.accessToken, nil
}

// postJSON 認証付きでJSONリクエストを送信し、ステータスコードを返す
func (a *OrdersRedirectAdapter) postJSON(ctx context.Context, path, requestID string, body interface{}, out interface{}) (int, error) {
	token, err := a.token(ctx)
	if err != nil {
		return 0, err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Request-Id", requestID)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return resp.StatusCode, provider.NewAdapterError(redirectProviderName, fmt.Sprintf("%d", resp.StatusCode),
			"provider internal error", provider.ErrProviderUnavailable)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}
