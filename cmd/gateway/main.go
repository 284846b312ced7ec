package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/pkg/errors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"assetgateway/internal/domain"
	"assetgateway/internal/interface/clients"
	"assetgateway/internal/interface/handler"
	"assetgateway/internal/interface/network"
	"assetgateway/internal/interface/notification"
	"assetgateway/internal/interface/repository/cache"
	"assetgateway/internal/interface/repository/cache/sqlite"
	"assetgateway/internal/interface/repository/logger"
	"assetgateway/internal/interface/repository/metrics"
	"assetgateway/internal/interface/repository/policy"
	"assetgateway/internal/usecase"
)

func main() {
	// コンフィグの解析
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(2)
	}

	if err := serve(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Gateway stopped: %v\n", err)
		os.Exit(1)
	}
}

func serve(cfg *config) error {
	// ディレクトリの準備
	if err := prepareDirectories(cfg); err != nil {
		return err
	}

	// ロガーの初期化
	var console io.Writer
	if cfg.LogStderr {
		console = os.Stderr
	}
	loggerRepo, err := logger.New(cfg.LogDir, "gateway.log", logger.Options{
		Level:    logger.ParseLevel(cfg.LogLevel),
		Rotation: logger.DefaultRotationConfig(),
		Console:  console,
	})
	if err != nil {
		return errors.Wrap(err, "initialize logger")
	}
	defer loggerRepo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// キャッシュストレージの初期化
	storage, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		loggerRepo.Error("Failed to initialize cache storage", err, nil)
		return err
	}
	defer closeStorage()

	// ポリシーの読み込み
	policyRepo, err := policy.New(
		filepath.Join(cfg.ConfigDir, "policy.yaml"),
		domain.DefaultPolicy(cfg.APIOrigin, cfg.ObjectStoreOrigin),
		loggerRepo,
	)
	if err != nil {
		loggerRepo.Error("Failed to load cache policy", err, nil)
		return err
	}

	fetcher, err := network.New(network.Config{
		SiteOrigin:  cfg.SiteOrigin,
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.FetchTimeout,
		MaxBodySize: cfg.MaxBodySize,
	}, nil)
	if err != nil {
		return err
	}

	metricsCollector := metrics.New(filepath.Join(cfg.LogDir, "metrics.json"))

	registry := clients.NewManager(cfg.ClientIdleTimeout)
	defer registry.Close()

	center := notification.NewCenter(cfg.MaxNotifications)
	unsubscribe := center.Subscribe(func(n domain.Notification) {
		loggerRepo.Debug("Notification delivered", map[string]interface{}{"id": n.ID, "title": n.Title})
	})
	defer unsubscribe()

	// ユースケースの作成
	lifecycle := usecase.NewLifecycleUseCase(
		storage, fetcher, fetcher, policyRepo, registry, metricsCollector, loggerRepo,
	)
	interceptor := usecase.NewInterceptorUseCase(storage, fetcher, policyRepo, metricsCollector, loggerRepo)
	push := usecase.NewPushUseCase(center, registry, policyRepo, metricsCollector, loggerRepo)
	dispatcher := usecase.NewDispatcher(lifecycle, interceptor, push, loggerRepo)
	metricsUseCase := usecase.NewMetricsUseCase(metricsCollector, loggerRepo, usecase.MetricsConfig{
		SaveInterval: cfg.MetricsSaveInterval,
	})

	if cfg.InstallOnStart {
		if _, err := dispatcher.Dispatch(ctx, domain.InstallEvent{}); err != nil {
			loggerRepo.Warn("Install on start failed, continuing without precache", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	// ハンドラーの作成
	gatewayHandler := handler.NewGatewayHandler(dispatcher, fetcher, registry, loggerRepo)
	opsHandler := handler.OpsRoutes(
		handler.NewMetricsHandler(metricsUseCase, lifecycle, loggerRepo),
		handler.NewControlHandler(dispatcher, registry, center, loggerRepo),
	)

	var g run.Group

	// ゲートウェイサーバー
	{
		ln, err := net.Listen("tcp", cfg.Addr)
		if err != nil {
			return errors.Wrapf(err, "listen on %s", cfg.Addr)
		}
		srv := &http.Server{
			Handler:           h2c.NewHandler(gatewayHandler, &http2.Server{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Add(
			func() error {
				loggerRepo.Info("Starting gateway server", map[string]interface{}{
					"addr":    cfg.Addr,
					"site":    cfg.SiteOrigin,
					"storage": cfg.Storage,
				})
				if err := srv.Serve(ln); err != http.ErrServerClosed {
					return err
				}
				return nil
			},
			func(error) {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
				defer shutdownCancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					loggerRepo.Error("Error shutting down gateway server", err, nil)
				}
				// 再検証などのバックグラウンド処理を待つ
				if err := dispatcher.Drain(shutdownCtx); err != nil {
					loggerRepo.Warn("Background cache work did not finish", map[string]interface{}{
						"error": err.Error(),
					})
				}
			},
		)
	}

	// 運用サーバー (メトリクスと制御用エンドポイント)
	{
		ln, err := net.Listen("tcp", cfg.OpsAddr)
		if err != nil {
			return errors.Wrapf(err, "listen on %s", cfg.OpsAddr)
		}
		srv := &http.Server{
			Handler:           opsHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Add(
			func() error {
				loggerRepo.Info("Starting ops server", map[string]interface{}{"addr": cfg.OpsAddr})
				if err := srv.Serve(ln); err != http.ErrServerClosed {
					return err
				}
				return nil
			},
			func(error) {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				_ = srv.Shutdown(shutdownCtx)
			},
		)
	}

	// ポリシー監視とメトリクス保存
	{
		g.Add(
			func() error {
				policyRepo.Watch(ctx, cfg.PolicyWatchInterval)
				return nil
			},
			func(error) { cancel() },
		)
		g.Add(
			func() error { return metricsUseCase.Run(ctx) },
			func(error) { cancel() },
		)
	}

	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	err = g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		loggerRepo.Info("Shutdown complete", map[string]interface{}{"signal": sigErr.Signal.String()})
		return nil
	}
	return err
}

// openStorage は設定に応じたキャッシュストレージを開く
func openStorage(ctx context.Context, cfg *config) (domain.Storage, func(), error) {
	switch cfg.Storage {
	case storageSQLite:
		store, err := sqlite.Open(ctx, cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return cache.New(), func() {}, nil
	}
}

func prepareDirectories(cfg *config) error {
	dirs := []string{
		cfg.ConfigDir,
		cfg.LogDir,
	}
	if cfg.Storage == storageSQLite {
		dirs = append(dirs, filepath.Dir(cfg.DBPath))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "create directory %s", dir)
		}
	}

	return nil
}
