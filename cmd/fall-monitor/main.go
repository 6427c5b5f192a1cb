package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AnishVcode/senior-launcher/common/logger"
	"github.com/AnishVcode/senior-launcher/internal/config"
	httpapi "github.com/AnishVcode/senior-launcher/internal/http"
	"github.com/AnishVcode/senior-launcher/internal/observability"
	"github.com/AnishVcode/senior-launcher/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "fall-monitor")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 租户 ID 必填
	if cfg.TenantID == "" {
		log.Fatal("TENANT_ID environment variable is required")
	}

	// 4. 创建服务
	metrics := observability.NewMetrics()
	fallService, err := service.NewFallService(cfg, metrics, log)
	if err != nil {
		log.Fatal("Failed to create fall monitor service",
			zap.Error(err),
		)
	}

	// 5. 创建上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := fallService.Start(ctx); err != nil {
		log.Fatal("Failed to start fall monitor service",
			zap.Error(err),
		)
	}

	// 6. HTTP 服务
	router := httpapi.NewRouter(
		httpapi.NewAlarmEventHandler(fallService.AlarmEvents(), log),
		httpapi.NewSettingsHandler(fallService.Settings(), log),
		fallService.Ready,
		metrics,
		log,
	)
	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- err
		}
	}()

	// 7. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
	case err := <-serverErrChan:
		log.Error("HTTP server error",
			zap.Error(err),
		)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown error", zap.Error(err))
	}

	// 先排空升级队列，再取消上下文
	if err := fallService.Stop(); err != nil {
		log.Error("Failed to stop fall monitor service", zap.Error(err))
	}
	cancel()

	log.Info("Fall monitor service stopped")
}
