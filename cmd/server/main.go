package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	authapp "checkout-server/internal/application/auth"
	checkoutapp "checkout-server/internal/application/checkout"
	"checkout-server/internal/domain/provider"
	"checkout-server/internal/domain/session"
	"checkout-server/internal/infrastructure/config"
	otelinfra "checkout-server/internal/infrastructure/observability/otel"
	"checkout-server/internal/infrastructure/persistence/mysql"
	redisinfra "checkout-server/internal/infrastructure/persistence/redis"
	"checkout-server/internal/infrastructure/providers"
	"checkout-server/internal/presentation/rest"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// OpenTelemetryの初期化
	tracerShutdown, err := otelinfra.InitTracer(&cfg.OpenTelemetry)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerShutdown(ctx); err != nil {
			log.Printf("Failed to shutdown tracer: %v", err)
		}
	}()

	meterShutdown, err := otelinfra.InitMeter(&cfg.OpenTelemetry)
	if err != nil {
		log.Fatalf("Failed to initialize meter: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterShutdown(ctx); err != nil {
			log.Printf("Failed to shutdown meter: %v", err)
		}
	}()

	// ロガーとメトリクスの初期化
	tracer := otelinfra.Tracer("checkout-server")
	logger := otelinfra.NewLogger(tracer)
	metrics, err := otelinfra.NewMetrics("checkout-server")
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	// データベース接続の初期化
	db, err := mysql.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Redis接続の初期化（ドラフトストア用）
	redisClient, err := redisinfra.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	// リポジトリとドラフトストアの初期化
	sessionRepo := mysql.NewSessionRepository(db)
	draftStore := redisinfra.NewDraftStore(redisClient, cfg.Redis.DraftTTL)

	// 決済プロバイダーアダプターの初期化（全てサーキットブレーカー付き）
	adapters := map[session.PaymentMethod]provider.Adapter{
		session.PaymentMethodCard: providers.NewBreakerAdapter(
			providers.NewStripeCardAdapter(cfg.Providers.Stripe),
		),
		session.PaymentMethodMobileWallet: providers.NewBreakerAdapter(
			providers.NewDarajaWalletAdapter(cfg.Providers.Wallet, nil),
		),
		session.PaymentMethodRedirect: providers.NewBreakerAdapter(
			providers.NewOrdersRedirectAdapter(cfg.Providers.Redirect, nil),
		),
	}

	// アプリケーションサービスの初期化
	authAppService := authapp.NewAuthApplicationService(&cfg.JWT, logger)
	checkoutAppService := checkoutapp.NewCheckoutApplicationService(
		sessionRepo,
		draftStore,
		adapters,
		logger,
		metrics,
		cfg.Checkout.PollInterval,
		cfg.Checkout.PollTimeout,
		cfg.Checkout.RequestTimeout,
	)

	// REST APIルーターの初期化
	router, err := rest.NewRouter(
		cfg,
		logger,
		metrics,
		authAppService,
		checkoutAppService,
	)
	if err != nil {
		log.Fatalf("Failed to create router: %v", err)
	}

	// サーバーアドレスの設定
	address := fmt.Sprintf(":%d", cfg.Server.Port)

	// グレースフルシャットダウンの設定
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	// REST APIサーバーを別ゴルーチンで起動
	go func() {
		log.Printf("REST API server starting on %s", address)
		if err := router.Start(address); err != nil {
			log.Printf("REST API server error: %v", err)
		}
	}()

	// シグナルを待機
	<-quit
	log.Println("Shutting down server...")

	// REST APIサーバーのシャットダウン
	if err := router.Shutdown(); err != nil {
		log.Printf("Error shutting down REST API server: %v", err)
	}

	// 実行中のポーリングを停止
	checkoutAppService.Shutdown()

	log.Println("Server stopped")
}
