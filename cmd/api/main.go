package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nemonet1337/yakkyokuGoFramework/internal/config"
	"github.com/nemonet1337/yakkyokuGoFramework/pkg/ledger"
	"github.com/nemonet1337/yakkyokuGoFramework/pkg/ledger/storage"
)

func main() {
	// 設定読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("設定読み込みに失敗しました:", err)
	}

	// ログ設定
	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatal("ログ初期化に失敗しました:", err)
	}
	defer logger.Sync()

	// データベース接続
	store, err := storage.NewPostgreSQLStorage(cfg.DSN(), logger)
	if err != nil {
		logger.Fatal("データベース接続に失敗しました", zap.Error(err))
	}
	defer store.Close()

	// 台帳初期化
	ledgerConfig := &ledger.Config{
		DefaultReorderLevel: cfg.Ledger.DefaultReorderLevel,
		NearExpiryDays:      cfg.Ledger.NearExpiryDays,
		AlertsEnabled:       cfg.Ledger.AlertsEnabled,
	}

	lgr := ledger.NewLedger(store, nil, logger, ledgerConfig)
	reporter := ledger.NewReporter(store, logger, ledgerConfig)

	// HTTPハンドラー設定
	handlers := NewHandlers(lgr, reporter, store, logger)
	router := setupRouter(handlers, cfg.API)

	// HTTPサーバー設定
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.API.Port),
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}

	// グレースフルシャットダウン設定
	go func() {
		logger.Info("薬局在庫APIサーバーを開始します", zap.Int("port", cfg.API.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("サーバー開始に失敗しました", zap.Error(err))
		}
	}()

	// シャットダウンシグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	// グレースフルシャットダウン
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("サーバーシャットダウンに失敗しました", zap.Error(err))
	}

	logger.Info("サーバーが正常に停止しました")
}

// setupRouter sets up HTTP routes
// HTTPルートを設定
func setupRouter(handlers *Handlers, apiCfg config.APIConfig) *mux.Router {
	router := mux.NewRouter()

	// ヘルスチェック
	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	if apiCfg.EnableMetrics {
		router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	// API v1ルート
	api := router.PathPrefix("/api/v1").Subrouter()

	// 商品管理
	api.HandleFunc("/products", handlers.CreateProduct).Methods("POST")
	api.HandleFunc("/products", handlers.ListProducts).Methods("GET")
	api.HandleFunc("/products/search", handlers.SearchProducts).Methods("GET")
	api.HandleFunc("/products/{productId}", handlers.GetProduct).Methods("GET")
	api.HandleFunc("/products/{productId}", handlers.UpdateProduct).Methods("PUT")

	// バッチ管理
	api.HandleFunc("/products/{productId}/batches", handlers.AddBatch).Methods("POST")
	api.HandleFunc("/products/{productId}/batches/{batchId}", handlers.UpdateBatch).Methods("PATCH")
	api.HandleFunc("/products/{productId}/batches/expired", handlers.GetExpiredBatches).Methods("GET")

	// 引当と消費
	api.HandleFunc("/products/{productId}/allocate", handlers.Allocate).Methods("POST")
	api.HandleFunc("/products/{productId}/reduce", handlers.ReduceStock).Methods("POST")

	// 在庫照会
	api.HandleFunc("/products/{productId}/stock", handlers.GetStock).Methods("GET")
	api.HandleFunc("/products/{productId}/stock/can-fulfill", handlers.CanFulfill).Methods("GET")
	api.HandleFunc("/products/{productId}/price", handlers.GetCurrentPrice).Methods("GET")

	// 仕入先管理
	api.HandleFunc("/suppliers", handlers.CreateSupplier).Methods("POST")
	api.HandleFunc("/suppliers", handlers.ListSuppliers).Methods("GET")
	api.HandleFunc("/suppliers/{supplierId}", handlers.GetSupplier).Methods("GET")
	api.HandleFunc("/suppliers/{supplierId}", handlers.UpdateSupplier).Methods("PUT")

	// アラート
	api.HandleFunc("/alerts", handlers.GetAlerts).Methods("GET")
	api.HandleFunc("/alerts/{alertId}/resolve", handlers.ResolveAlert).Methods("POST")

	// レポート
	api.HandleFunc("/reports/expiring", handlers.ExpiringReport).Methods("GET")
	api.HandleFunc("/reports/expired", handlers.ExpiredReport).Methods("GET")
	api.HandleFunc("/reports/valuation", handlers.TotalValuation).Methods("GET")
	api.HandleFunc("/reports/valuation/{productId}", handlers.ProductValuation).Methods("GET")
	api.HandleFunc("/reports/dashboard", handlers.Dashboard).Methods("GET")
	api.HandleFunc("/reports/expiry-alerts/scan", handlers.ScanExpiryAlerts).Methods("POST")

	// CORS設定（開発用）
	if apiCfg.EnableCORS {
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

				if r.Method == "OPTIONS" {
					w.WriteHeader(http.StatusOK)
					return
				}

				next.ServeHTTP(w, r)
			})
		})
	}

	// ログ機能
	router.Use(loggingMiddleware(handlers.logger))

	return router
}

// loggingMiddleware logs HTTP requests
// HTTPリクエストをログ出力するミドルウェア
func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// リクエスト処理
			next.ServeHTTP(w, r)

			// ログ出力
			logger.Info("HTTPリクエスト",
				zap.String("method", r.Method),
				zap.String("url", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// buildLogger builds a zap logger from logging configuration
// ログ設定からzapロガーを構築
func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("無効なログレベル: %s", cfg.Level)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
