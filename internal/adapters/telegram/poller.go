package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/evil-zenix/business-bot-project/internal/infra/metrics"
)

const pollRetryDelay = 3 * time.Second

// UpdateHandler обрабатывает один апдейт.
type UpdateHandler func(ctx context.Context, upd Update)

// Poller получает апдейты через getUpdates, включая бизнес-апдейты.
type Poller struct {
	api     Requester
	timeout int
	log     zerolog.Logger
	offset  int
}

// NewPoller создаёт long polling клиент. timeout задаётся в секундах.
func NewPoller(api Requester, timeout int, logger zerolog.Logger) *Poller {
	return &Poller{api: api, timeout: timeout, log: logger.With().Str("component", "poller").Logger()}
}

// Run читает апдейты, пока не отменён ctx. Каждый апдейт обрабатывается в своей горутине.
func (p *Poller) Run(ctx context.Context, handle UpdateHandler) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	p.log.Info().Int("timeout", p.timeout).Msg("poller: запущен")
	for ctx.Err() == nil {
		updates, err := p.fetch()
		if err != nil {
			p.log.Error().Err(err).Msg("poller: не удалось получить апдейты")
			select {
			case <-ctx.Done():
			case <-time.After(pollRetryDelay):
			}
			continue
		}
		for _, upd := range updates {
			if upd.UpdateID >= p.offset {
				p.offset = upd.UpdateID + 1
			}
			wg.Add(1)
			go func(upd Update) {
				defer wg.Done()
				handle(ctx, upd)
			}(upd)
		}
	}
	p.log.Info().Msg("poller: остановлен")
	return nil
}

func (p *Poller) fetch() ([]Update, error) {
	params := tgbotapi.Params{}
	params.AddNonZero("offset", p.offset)
	params.AddNonZero("timeout", p.timeout)
	if err := params.AddInterface("allowed_updates", AllowedUpdates); err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := p.api.MakeRequest("getUpdates", params)
	metrics.ObserveNetworkRequest("telegram_bot", "get_updates", "bot", start, err)
	if err != nil {
		return nil, err
	}
	var updates []Update
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return nil, fmt.Errorf("разбор апдейтов: %w", err)
	}
	return updates, nil
}

// SetWebhook регистрирует вебхук с секретом и списком типов апдейтов.
func SetWebhook(api Requester, url, secret string) error {
	params := tgbotapi.Params{}
	params["url"] = url
	params.AddNonEmpty("secret_token", secret)
	if err := params.AddInterface("allowed_updates", AllowedUpdates); err != nil {
		return err
	}
	start := time.Now()
	_, err := api.MakeRequest("setWebhook", params)
	metrics.ObserveNetworkRequest("telegram_bot", "set_webhook", "bot", start, err)
	return err
}

// DeleteWebhook снимает вебхук, чтобы работал getUpdates.
func DeleteWebhook(api Requester) error {
	start := time.Now()
	_, err := api.MakeRequest("deleteWebhook", tgbotapi.Params{})
	metrics.ObserveNetworkRequest("telegram_bot", "delete_webhook", "bot", start, err)
	return err
}
