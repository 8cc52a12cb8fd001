package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SEP491/FitBridge-Web-sub000/internal/config"
	"github.com/SEP491/FitBridge-Web-sub000/internal/logger"
	"github.com/SEP491/FitBridge-Web-sub000/internal/mockserver"
)

func main() {
	logger.SetPrefix("mockserver")
	logger.Info("starting mock chat backend")
	cfg := config.Load()

	srv := mockserver.New(cfg.CORSAllowedOrigins)
	httpServer := &http.Server{
		Addr:         cfg.MockServerAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket connections are long-lived
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s", cfg.MockServerAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("listen: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	logger.Info("stopped")
}
