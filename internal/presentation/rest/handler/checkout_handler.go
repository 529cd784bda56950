package handler

import (
	"net/http"
	"strconv"

	checkoutapp "checkout-server/internal/application/checkout"

	"github.com/labstack/echo/v4"
)

// CheckoutHandler 決済セッション関連ハンドラー
type CheckoutHandler struct {
	checkoutService *checkoutapp.CheckoutApplicationService
}

// NewCheckoutHandler 新しいCheckoutHandlerを作成
func NewCheckoutHandler(checkoutService *checkoutapp.CheckoutApplicationService) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
	}
}

// CreateSession セッション作成ハンドラー
// @Summary 決済セッションを作成
// @Description 購入リファレンスに対する決済セッションを作成します。同一購入の既存セッションはキャンセルされます
// @Tags checkout
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body CreateSessionRequest true "セッション作成リクエスト"
// @Success 200 {object} SessionResponse "セッション作成成功"
// @Failure 400 {object} ErrorResponse "不正なリクエスト"
// @Failure 403 {object} ErrorResponse "認証エラー"
// @Router /checkout/sessions [post]
func (h *CheckoutHandler) CreateSession(c echo.Context) error {
	// トークンからuser_idを取得
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "user_id not found in token")
	}

	var reqBody CreateSessionRequest
	if err := c.Bind(&reqBody); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	// 金額をint64に変換
	amount, err := strconv.ParseInt(reqBody.Amount, 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid amount format")
	}

	req := &checkoutapp.CreateSessionRequest{
		PurchaseRef: reqBody.PurchaseRef,
		Method:      reqBody.Method,
		Amount:      amount,
		Currency:    reqBody.Currency,
		Payer: checkoutapp.PayerInput{
			Name:       reqBody.Payer.Name,
			Email:      reqBody.Payer.Email,
			Phone:      reqBody.Payer.Phone,
			Street:     reqBody.Payer.Street,
			City:       reqBody.Payer.City,
			Region:     reqBody.Payer.Region,
			PostalCode: reqBody.Payer.PostalCode,
		},
	}

	resp, err := h.checkoutService.CreateSession(c.Request().Context(), req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toSessionResponse(resp))
}

// StartSession セッション開始ハンドラー
// @Summary 決済セッションを開始
// @Description 支払者情報を検証し、プロバイダーへの決済開始を行います
// @Tags checkout
// @Produce json
// @Security Bearer
// @Param session_id path string true "セッションID"
// @Success 200 {object} SessionResponse "セッション開始成功"
// @Failure 403 {object} ErrorResponse "認証エラー"
// @Failure 404 {object} ErrorResponse "セッションが見つからない"
// @Failure 409 {object} ErrorResponse "不正な状態遷移"
// @Router /checkout/sessions/{session_id}/start [post]
func (h *CheckoutHandler) StartSession(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "user_id not found in token")
	}

	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}

	resp, err := h.checkoutService.Start(c.Request().Context(), sessionID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toSessionResponse(resp))
}

// ConfirmSession セッション確認開始ハンドラー
// @Summary 決済確認のポーリングを開始
// @Description ポーリング方式のセッションでプロバイダーへの確認ポーリングを開始します
// @Tags checkout
// @Produce json
// @Security Bearer
// @Param session_id path string true "セッションID"
// @Success 200 {object} SessionResponse "ポーリング開始成功"
// @Failure 403 {object} ErrorResponse "認証エラー"
// @Failure 404 {object} ErrorResponse "セッションが見つからない"
// @Failure 409 {object} ErrorResponse "対応しない確認方式"
// @Router /checkout/sessions/{session_id}/confirm [post]
func (h *CheckoutHandler) ConfirmSession(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "user_id not found in token")
	}

	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}

	resp, err := h.checkoutService.Confirm(c.Request().Context(), sessionID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toSessionResponse(resp))
}

// CaptureSession セッション確定ハンドラー
// @Summary リダイレクト承認後の決済を確定
// @Description リダイレクト方式のセッションで承認後の決済確定を行います
// @Tags checkout
// @Accept json
// @Produce json
// @Security Bearer
// @Param session_id path string true "セッションID"
// @Param request body CaptureSessionRequest true "確定リクエスト"
// @Success 200 {object} SessionResponse "確定成功"
// @Failure 403 {object} ErrorResponse "認証エラー"
// @Failure 404 {object} ErrorResponse "セッションが見つからない"
// @Failure 409 {object} ErrorResponse "対応しない確認方式"
// @Router /checkout/sessions/{session_id}/capture [post]
func (h *CheckoutHandler) CaptureSession(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "user_id not found in token")
	}

	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}

	var reqBody CaptureSessionRequest
	if err := c.Bind(&reqBody); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	resp, err := h.checkoutService.Capture(c.Request().Context(), sessionID, &checkoutapp.CaptureRequest{
		Approval: reqBody.Approval,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toSessionResponse(resp))
}

// CancelSession セッションキャンセルハンドラー
// @Summary 決済セッションをキャンセル
// @Description セッションをキャンセルします。既にキャンセル済みの場合は冪等に成功を返します
// @Tags checkout
// @Produce json
// @Security Bearer
// @Param session_id path string true "セッションID"
// @Success 200 {object} SessionResponse "キャンセル成功"
// @Failure 403 {object} ErrorResponse "認証エラー"
// @Failure 404 {object} ErrorResponse "セッションが見つからない"
// @Failure 409 {object} ErrorResponse "既に終端状態"
// @Router /checkout/sessions/{session_id}/cancel [post]
func (h *CheckoutHandler) CancelSession(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "user_id not found in token")
	}

	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}

	resp, err := h.checkoutService.Cancel(c.Request().Context(), sessionID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toSessionResponse(resp))
}

// GetSession セッション取得ハンドラー
// @Summary 決済セッションを取得
// @Description セッションの現在状態を取得します
// @Tags checkout
// @Produce json
// @Security Bearer
// @Param session_id path string true "セッションID"
// @Success 200 {object} SessionResponse "取得成功"
// @Failure 403 {object} ErrorResponse "認証エラー"
// @Failure 404 {object} ErrorResponse "セッションが見つからない"
// @Router /checkout/sessions/{session_id} [get]
func (h *CheckoutHandler) GetSession(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "user_id not found in token")
	}

	sessionID := c.Param("session_id")
	if sessionID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_id is required")
	}

	resp, err := h.checkoutService.GetSession(c.Request().Context(), sessionID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toSessionResponse(resp))
}

// toSessionResponse アプリケーション層のレスポンスをREST表現に変換
func toSessionResponse(resp *checkoutapp.SessionResponse) SessionResponse {
	out := SessionResponse{
		SessionID:   resp.SessionID,
		PurchaseRef: resp.PurchaseRef,
		Method:      resp.Method,
		Amount:      strconv.FormatInt(resp.Amount, 10),
		Currency:    resp.Currency,
		State:       resp.State,
		ProviderRef: resp.ProviderRef,
		ApprovalURL: resp.ApprovalURL,
		Version:     resp.Version,
		StartedAt:   resp.StartedAt,
		ResolvedAt:  resp.ResolvedAt,
		CreatedAt:   resp.CreatedAt,
		UpdatedAt:   resp.UpdatedAt,
	}
	if resp.Error != nil {
		out.Error = &SessionErrorDetail{
			Kind:    resp.Error.Kind,
			Message: resp.Error.Message,
		}
	}
	if resp.Result != nil {
		out.Result = &SessionResult{
			ProviderRef: resp.Result.ProviderRef,
			Amount:      strconv.FormatInt(resp.Result.Amount, 10),
			Currency:    resp.Result.Currency,
			ConfirmedAt: resp.Result.ConfirmedAt,
		}
	}
	return out
}
