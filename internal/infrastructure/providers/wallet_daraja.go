package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"checkout-server/internal/domain/provider"
	"checkout-server/internal/infrastructure/config"
)

const walletProviderName = "daraja"

// DarajaWalletAdapter STKプッシュ方式のモバイルウォレットアダプター
// Initiateで支払いリクエストを端末へ送信し、Pollでステータスを照会する
type DarajaWalletAdapter struct {
	httpClient     *http.Client
	baseURL        string
	consumerKey    string
	consumerSecret string
	shortCode      string
	passkey        string
	callbackURL    string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewDarajaWalletAdapter 新しいDarajaWalletAdapterを作成
func NewDarajaWalletAdapter(cfg config.WalletConfig, httpClient *http.Client) *DarajaWalletAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &DarajaWalletAdapter{
		httpClient:     httpClient,
		baseURL:        cfg.BaseURL,
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		shortCode:      cfg.ShortCode,
		passkey:        cfg.Passkey,
		callbackURL:    cfg.CallbackURL,
	}
}

// Name プロバイダー名を返す
func (a *DarajaWalletAdapter) Name() string {
	return walletProviderName
}

// Mode 確定方式を返す
func (a *DarajaWalletAdapter) Mode() provider.ConfirmationMode {
	return provider.ConfirmationModePoll
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	CheckoutRequestID string `json:"CheckoutRequestID"`
	ResponseCode      string `json:"ResponseCode"`
	ResponseDesc      string `json:"ResponseDescription"`
	ErrorCode         string `json:"errorCode"`
	ErrorMessage      string `json:"errorMessage"`
}

// Initiate STKプッシュを送信して支払い承認を依頼する
func (a *DarajaWalletAdapter) Initiate(ctx context.Context, req *provider.InitiateRequest) (*provider.InitiateResult, error) {
	timestamp := time.Now().Format("20060102150405")
	phone := req.Payer.NormalizedPhone()

	body := stkPushRequest{
		BusinessShortCode: a.shortCode,
		Password:          a.stkPassword(timestamp),
		Timestamp:         timestamp,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount,
		PartyA:            phone,
		PartyB:            a.shortCode,
		PhoneNumber:       phone,
		CallBackURL:       a.callbackURL,
		AccountReference:  req.IdempotencyKey,
		TransactionDesc:   "checkout payment",
	}

	var resp stkPushResponse
	if err := a.postJSON(ctx, "/mpesa/stkpush/v1/processrequest", body, &resp); err != nil {
		return nil, err
	}

	if resp.ErrorCode != "" {
		return nil, provider.NewAdapterError(walletProviderName, resp.ErrorCode, resp.ErrorMessage, nil)
	}
	if resp.ResponseCode != "0" {
		return nil, provider.NewAdapterError(walletProviderName, resp.ResponseCode, resp.ResponseDesc, nil)
	}

	return &provider.InitiateResult{
		ProviderRef: resp.CheckoutRequestID,
	}, nil
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResultCode   string `json:"ResultCode"`
	ResultDesc   string `json:"ResultDesc"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// 処理中を示すDarajaのエラーコード
const stkPendingErrorCode = "500.001.1001"

// Poll STKプッシュの結果を照会する
// 処理中の応答は未確定として返し、呼び出し側が継続判断する
func (a *DarajaWalletAdapter) Poll(ctx context.Context, providerRef string) (*provider.PollOutcome, error) {
	timestamp := time.Now().Format("20060102150405")
	body := stkQueryRequest{
		BusinessShortCode: a.shortCode,
		Password:          a.stkPassword(timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: providerRef,
	}

	var resp stkQueryResponse
	if err := a.postJSON(ctx, "/mpesa/stkpushquery/v1/query", body, &resp); err != nil {
		return nil, err
	}

	if resp.ErrorCode == stkPendingErrorCode {
		return &provider.PollOutcome{Status: provider.PollStatusPending}, nil
	}
	if resp.ErrorCode != "" {
		return nil, provider.NewAdapterError(walletProviderName, resp.ErrorCode, resp.ErrorMessage, nil)
	}

	if resp.ResultCode == "0" {
		return &provider.PollOutcome{
			Status:      provider.PollStatusSuccess,
			ConfirmedAt: time.Now(),
		}, nil
	}

	return &provider.PollOutcome{
		Status:        provider.PollStatusFailure,
		FailureCode:   resp.ResultCode,
		FailureReason: resp.ResultDesc,
	}, nil
}

// Capture ポーリング方式では未対応
func (a *DarajaWalletAdapter) Capture(ctx context.Context, providerRef string, approval map[string]string) (*provider.ChargeDetails, error) {
	return nil, provider.ErrUnsupportedOperation
}

// stkPassword STKリクエストの認証パスワードを構築
func (a *DarajaWalletAdapter) stkPassword(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(a.shortCode + a.passkey + timestamp))
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// token アクセストークンを取得（有効期限内はキャッシュを返す)
func (a *DarajaWalletAdapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return a.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.baseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.SetBasicAuth(a.consumerKey, a.consumerSecret)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", provider.NewAdapterError(walletProviderName, fmt.Sprintf("%d", resp.StatusCode),
			"access token request rejected", nil)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	a.accessToken = token.AccessToken
	// 期限ぎりぎりの再利用を避けるため1分の余裕を取る
	a.tokenExpiry = time.Now().Add(58 * time.Minute)
	return a.accessToken, nil
}

// postJSON 認証付きでJSONリクエストを送信する
func (a *DarajaWalletAdapter) postJSON(ctx context.Context, path string, body interface{}, out interface{}) error {
	token, err := a.token(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return provider.NewAdapterError(walletProviderName, fmt.Sprintf("%d", resp.StatusCode),
			"provider internal error", provider.ErrProviderUnavailable)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
