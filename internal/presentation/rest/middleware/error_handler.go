package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"checkout-server/internal/domain/provider"
	"checkout-server/internal/domain/session"
	otelinfra "checkout-server/internal/infrastructure/observability/otel"
)

// ErrorResponse エラーレスポンス
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorHandlerMiddleware エラーハンドリングミドルウェア
func ErrorHandlerMiddleware(logger *otelinfra.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			// エラーハンドリング
			return handleError(c, err, logger)
		}
	}
}

// validationErrors 400として扱う入力検証エラー
var validationErrors = map[error]string{
	session.ErrInvalidSessionID:     "invalid_session_id",
	session.ErrInvalidPaymentMethod: "invalid_payment_method",
	session.ErrInvalidAmount:        "invalid_amount",
	session.ErrInvalidCurrency:      "invalid_currency",
	session.ErrInvalidPhoneNumber:   "invalid_phone_number",
	session.ErrInvalidPayerName:     "invalid_payer_name",
	session.ErrInvalidEmail:         "invalid_email",
	session.ErrInvalidAddress:       "invalid_address",
}

// handleError エラーを処理して適切なHTTPレスポンスを返す
func handleError(c echo.Context, err error, logger *otelinfra.Logger) error {
	ctx := c.Request().Context()

	// ドメインエラーの判定と処理
	if errors.Is(err, session.ErrSessionNotFound) {
		logger.Warn(ctx, "Session not found", map[string]interface{}{
			"error": err.Error(),
		})
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "session_not_found",
			Message: err.Error(),
		})
	}

	if errors.Is(err, session.ErrSessionAlreadyTerminal) {
		logger.Warn(ctx, "Session already terminal", map[string]interface{}{
			"error": err.Error(),
		})
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "session_already_terminal",
			Message: err.Error(),
		})
	}

	if errors.Is(err, session.ErrInvalidTransition) {
		logger.Warn(ctx, "Invalid session state transition", map[string]interface{}{
			"error": err.Error(),
		})
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "invalid_transition",
			Message: err.Error(),
		})
	}

	if errors.Is(err, provider.ErrUnsupportedOperation) {
		logger.Warn(ctx, "Unsupported provider operation", map[string]interface{}{
			"error": err.Error(),
		})
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error:   "unsupported_operation",
			Message: err.Error(),
		})
	}

	if errors.Is(err, provider.ErrProviderUnavailable) {
		logger.Warn(ctx, "Payment provider unavailable", map[string]interface{}{
			"error": err.Error(),
		})
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "provider_unavailable",
			Message: err.Error(),
		})
	}

	for sentinel, code := range validationErrors {
		if errors.Is(err, sentinel) {
			logger.Warn(ctx, "Validation error", map[string]interface{}{
				"error": err.Error(),
			})
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   code,
				Message: err.Error(),
			})
		}
	}

	// EchoのHTTPエラー
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		logger.Warn(ctx, "HTTP error", map[string]interface{}{
			"status_code": httpErr.Code,
			"message":     httpErr.Message,
		})
		message := ""
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(httpErr.Code)
		}
		return c.JSON(httpErr.Code, ErrorResponse{
			Error:   http.StatusText(httpErr.Code),
			Message: message,
		})
	}

	// 予期しないエラー
	logger.Error(ctx, "Internal server error", err, map[string]interface{}{
		"path": c.Request().URL.Path,
	})
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_server_error",
		Message: "An unexpected error occurred",
	})
}
