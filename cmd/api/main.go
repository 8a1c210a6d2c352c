package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/evil-zenix/business-bot-project/internal/adapters/api"
	"github.com/evil-zenix/business-bot-project/internal/adapters/repo"
	"github.com/evil-zenix/business-bot-project/internal/infra/config"
	httpinfra "github.com/evil-zenix/business-bot-project/internal/infra/http"
	"github.com/evil-zenix/business-bot-project/internal/infra/log"
	"github.com/evil-zenix/business-bot-project/internal/infra/metrics"
	"github.com/evil-zenix/business-bot-project/internal/usecase/scenarios"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "api")
	if err := errors.Join(cfg.ValidateStore(), requireToken(cfg)); err != nil {
		logger.Fatal().Err(err).Msg("api: некорректная конфигурация")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := repo.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к хранилищу")
	}
	defer closeStore()

	srv := httpinfra.NewServer(logger)
	api.NewHandler(scenarios.NewService(store, logger), store, logger).Routes(srv.Router, cfg.APIToken)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(fmt.Sprintf(":%d", cfg.Port)) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	logger.Info().Msg("api: старт")
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("api: сервер остановлен")
	}
	logger.Info().Msg("api: остановка")
}

func requireToken(cfg config.AppConfig) error {
	if cfg.APIToken == "" {
		return errors.New("API_TOKEN не задан")
	}
	return nil
}
