package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/evil-zenix/business-bot-project/internal/adapters/bot"
	"github.com/evil-zenix/business-bot-project/internal/adapters/repo"
	"github.com/evil-zenix/business-bot-project/internal/adapters/telegram"
	"github.com/evil-zenix/business-bot-project/internal/infra/cache"
	"github.com/evil-zenix/business-bot-project/internal/infra/config"
	httpinfra "github.com/evil-zenix/business-bot-project/internal/infra/http"
	"github.com/evil-zenix/business-bot-project/internal/infra/log"
	"github.com/evil-zenix/business-bot-project/internal/infra/metrics"
	"github.com/evil-zenix/business-bot-project/internal/usecase/business"
	"github.com/evil-zenix/business-bot-project/internal/usecase/matcher"
	"github.com/evil-zenix/business-bot-project/internal/usecase/reminders"
	"github.com/evil-zenix/business-bot-project/internal/usecase/scenarios"
)

const reminderGuardTTL = 24 * time.Hour

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv, "bot-gateway")
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("некорректная конфигурация")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := repo.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("не удалось открыть хранилище")
	}
	defer closeStore()

	var redisCache *cache.RedisCache
	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("не удалось подключиться к Redis")
		}
		defer client.Close()
		redisCache = cache.NewRedis(client, "business-bot:")
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}
	logger.Info().Str("bot", botAPI.Self.UserName).Msg("бот авторизован")

	dispatcher := telegram.NewDispatcher(botAPI)

	opts := []reminders.Option{reminders.WithAnalytics(store)}
	if cfg.Features.DurableReminders {
		opts = append(opts, reminders.WithTaskRepo(store))
	}
	if redisCache != nil {
		opts = append(opts, reminders.WithFireGuard(redisCache, reminderGuardTTL))
	}
	scheduler := reminders.New(dispatcher, store, logger, opts...)
	defer scheduler.Stop()
	restored, err := scheduler.Restore(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("не удалось восстановить напоминания")
	} else if restored > 0 {
		logger.Info().Int("count", restored).Msg("напоминания восстановлены")
	}

	scenarioService := scenarios.NewService(store, logger)
	if cfg.Features.SeedDefaults {
		if _, err := scenarioService.SeedDefaults(ctx); err != nil {
			logger.Error().Err(err).Msg("не удалось добавить сценарии по умолчанию")
		}
	}
	businessService := business.NewService(
		matcher.New(store, matcher.Options{FoldCallbackTokens: cfg.Features.FoldCallbackTokens}),
		dispatcher, scheduler, store, store, logger,
	)

	h := bot.NewHandler(botAPI, logger, businessService, scenarioService, cfg.Telegram.AdminIDs)
	if redisCache != nil {
		h.WithDeduper(redisCache)
	}

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Webhook() {
		runWebhook(gctx, g, cfg, botAPI, h, logger)
	} else {
		if err := telegram.DeleteWebhook(botAPI); err != nil {
			logger.Warn().Err(err).Msg("не удалось снять вебхук")
		}
		poller := telegram.NewPoller(botAPI, cfg.Telegram.PollTimeout, logger)
		g.Go(func() error { return poller.Run(gctx, h.HandleUpdate) })
	}

	logger.Info().Bool("webhook", cfg.Webhook()).Bool("durable_reminders", cfg.Features.DurableReminders).Msg("бот-гейтвей запущен")
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("бот-гейтвей остановлен с ошибкой")
	}
	logger.Info().Int("pending_reminders", scheduler.Pending()).Msg("остановка бота")
}

func runWebhook(ctx context.Context, g *errgroup.Group, cfg config.AppConfig, api *tgbotapi.BotAPI, h *bot.Handler, logger zerolog.Logger) {
	srv := httpinfra.NewServer(logger)
	srv.Router.With(httpinfra.SecretTokenMiddleware(cfg.Telegram.WebhookSecret)).
		Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
			var update telegram.Update
			if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, "invalid update")
				return
			}
			h.HandleUpdate(r.Context(), update)
			w.WriteHeader(http.StatusOK)
		})

	if err := telegram.SetWebhook(api, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
		logger.Fatal().Err(err).Msg("не удалось установить вебхук")
	}

	g.Go(func() error { return srv.Start(fmt.Sprintf(":%d", cfg.Port)) })
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
