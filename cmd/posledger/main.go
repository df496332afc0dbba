// Package main запускает HTTP-сервер кассового сервиса.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/pos-ledger/internal/accrual"
	"github.com/mmeshcher/pos-ledger/internal/config"
	"github.com/mmeshcher/pos-ledger/internal/gamification"
	"github.com/mmeshcher/pos-ledger/internal/handler"
	"github.com/mmeshcher/pos-ledger/internal/middleware"
	"github.com/mmeshcher/pos-ledger/internal/repository"
	"github.com/mmeshcher/pos-ledger/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	svc := service.NewService(
		repo,
		accrual.NewEngine(repo),
		gamification.NewTracker(repo),
		logger,
		service.Options{
			RewardQueueSize: cfg.RewardQueueSize,
			RewardTimeout:   cfg.RewardTimeout,
		},
	)

	if cfg.AuthSecret == "" {
		sugar.Warn("AUTH_SECRET is empty, owner tokens will be rejected")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Обработка начислений по зафиксированным продажам
	g.Go(func() error {
		svc.StartRewardUpdates(ctx)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting pos ledger server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	waitErr := g.Wait()

	// Дожидаемся начислений и закрываем пул соединений
	if err := svc.Close(); err != nil {
		sugar.Errorw("close service", "error", err)
	}

	if waitErr != nil {
		sugar.Fatalw("application terminated with error", "error", waitErr)
	}
}
