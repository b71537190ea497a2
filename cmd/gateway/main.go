package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rideya/rideya-backend/internal/config"
	"github.com/rideya/rideya-backend/internal/gateway"
	"github.com/rideya/rideya-backend/internal/goroutine"
	"github.com/rideya/rideya-backend/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("gateway: ошибка загрузки конфигурации: %v", err)
	}

	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
	}
	logger.Init(logLevel, cfg.Env)
	entry := logger.Service("gateway")

	upstreams, err := gateway.Upstreams(cfg.Gateway)
	if err != nil {
		entry.Fatalf("gateway: %v", err)
	}
	for _, up := range upstreams {
		entry.WithField("prefix", up.Prefix).Infof("gateway: маршрут -> %s", up.Target)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Gateway.Port,
		Handler:           gateway.NewRouter(cfg, upstreams),
		ReadHeaderTimeout: 10 * time.Second,
	}

	goroutine.SafeGo("gateway-shutdown", func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			entry.WithError(err).Error("gateway: ошибка остановки http сервера")
		}
	})

	entry.Infof("gateway: запущен на порту %s", cfg.Gateway.Port)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		entry.Fatalf("gateway: сервер завершился с ошибкой: %v", err)
	}
}
