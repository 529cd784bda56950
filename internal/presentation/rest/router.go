package rest

import (
	authapp "checkout-server/internal/application/auth"
	checkoutapp "checkout-server/internal/application/checkout"
	"checkout-server/internal/infrastructure/config"
	otelinfra "checkout-server/internal/infrastructure/observability/otel"
	"checkout-server/internal/presentation/rest/handler"
	restmiddleware "checkout-server/internal/presentation/rest/middleware"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Router REST APIルーター
type Router struct {
	echo            *echo.Echo
	authHandler     *handler.AuthHandler
	checkoutHandler *handler.CheckoutHandler
}

// NewRouter 新しいRouterを作成
func NewRouter(
	cfg *config.Config,
	logger *otelinfra.Logger,
	metrics *otelinfra.Metrics,
	authService *authapp.AuthApplicationService,
	checkoutService *checkoutapp.CheckoutApplicationService,
) (*Router, error) {
	e := echo.New()

	// Echoのデフォルトエラーハンドラーを無効化（カスタムエラーハンドラーを使用）
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		// エラーハンドリングミドルウェアで処理される
	}

	// ミドルウェアの設定
	setupMiddleware(e, cfg, logger, metrics)

	// ハンドラーの作成
	authHandler := handler.NewAuthHandler(authService)
	checkoutHandler := handler.NewCheckoutHandler(checkoutService)

	// ルーティングの設定
	setupRoutes(e, cfg, logger, authHandler, checkoutHandler)

	// Swagger UI / ReDoc統合
	SetupSwagger(e)

	return &Router{
		echo:            e,
		authHandler:     authHandler,
		checkoutHandler: checkoutHandler,
	}, nil
}

// setupMiddleware ミドルウェアを設定
func setupMiddleware(e *echo.Echo, cfg *config.Config, logger *otelinfra.Logger, metrics *otelinfra.Metrics) {
	// リカバリーミドルウェア
	e.Use(middleware.Recover())

	// CORS設定
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"}, // 本番環境では適切に設定
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE, echo.OPTIONS},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// リクエストIDの設定
	e.Use(middleware.RequestID())

	// セキュリティヘッダー
	e.Use(restmiddleware.SecurityHeadersMiddleware())

	// トレーシングミドルウェア
	e.Use(restmiddleware.TracingMiddleware())

	// ログミドルウェア
	e.Use(restmiddleware.LoggingMiddleware(logger))

	// メトリクスミドルウェア
	e.Use(restmiddleware.MetricsMiddleware(metrics))

	// エラーハンドリングミドルウェア
	e.Use(restmiddleware.ErrorHandlerMiddleware(logger))
}

// setupRoutes ルーティングを設定
func setupRoutes(
	e *echo.Echo,
	cfg *config.Config,
	logger *otelinfra.Logger,
	authHandler *handler.AuthHandler,
	checkoutHandler *handler.CheckoutHandler,
) {
	// API v1グループ
	api := e.Group("/api/v1")

	// 認証トークン発行エンドポイント（認証不要）
	api.POST("/auth/token", authHandler.GenerateToken)

	// 認証が必要なエンドポイント
	authGroup := api.Group("", restmiddleware.AuthMiddleware(&cfg.JWT, logger))

	// 決済セッション関連エンドポイント
	authGroup.POST("/checkout/sessions", checkoutHandler.CreateSession)
	authGroup.POST("/checkout/sessions/:session_id/start", checkoutHandler.StartSession)
	authGroup.POST("/checkout/sessions/:session_id/confirm", checkoutHandler.ConfirmSession)
	authGroup.POST("/checkout/sessions/:session_id/capture", checkoutHandler.CaptureSession)
	authGroup.POST("/checkout/sessions/:session_id/cancel", checkoutHandler.CancelSession)
	authGroup.GET("/checkout/sessions/:session_id", checkoutHandler.GetSession)

	// 運用向けエンドポイント（X-API-Key認証）
	adminGroup := api.Group("/admin",
		restmiddleware.APIKeyMiddleware(&cfg.AdminAPI, logger),
		adminIdentityMiddleware(),
	)
	adminGroup.POST("/checkout/sessions/:session_id/cancel", checkoutHandler.CancelSession)
	adminGroup.GET("/checkout/sessions/:session_id", checkoutHandler.GetSession)

	// ヘルスチェックエンドポイント（認証不要）
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})
}

// adminIdentityMiddleware APIキー認証済みの呼び出し元に運用ユーザーIDを設定
func adminIdentityMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("user_id", "admin-api")
			return next(c)
		}
	}
}

// Start サーバーを起動
func (r *Router) Start(address string) error {
	return r.echo.Start(address)
}

// Shutdown サーバーをシャットダウン
func (r *Router) Shutdown() error {
	return r.echo.Close()
}
