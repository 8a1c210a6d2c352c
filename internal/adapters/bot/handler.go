package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/evil-zenix/business-bot-project/internal/adapters/telegram"
	"github.com/evil-zenix/business-bot-project/internal/domain"
	"github.com/evil-zenix/business-bot-project/internal/infra/metrics"
	"github.com/evil-zenix/business-bot-project/internal/usecase/business"
	"github.com/evil-zenix/business-bot-project/internal/usecase/scenarios"
	"github.com/evil-zenix/business-bot-project/internal/usecase/wizard"
)

const updateDedupTTL = 24 * time.Hour

// BotAPI описывает часть *tgbotapi.BotAPI, нужную обработчику.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Deduper отсекает повторно доставленные апдейты.
type Deduper interface {
	Seen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type pendingEdit struct {
	ScenarioID int64
	Field      wizard.Field
}

// Handler обслуживает апдейты бота: бизнес-чаты и админ-панель.
type Handler struct {
	bot       BotAPI
	log       zerolog.Logger
	business  *business.Service
	scenarios *scenarios.Service
	admins    map[int64]struct{}
	dedup     Deduper

	mu      sync.Mutex
	wizards map[int64]*wizard.Session
	edits   map[int64]pendingEdit
}

// NewHandler создаёт обработчик.
func NewHandler(bot BotAPI, log zerolog.Logger, businessUC *business.Service, scenarioUC *scenarios.Service, adminIDs []int64) *Handler {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Handler{
		bot:       bot,
		log:       log.With().Str("component", "bot").Logger(),
		business:  businessUC,
		scenarios: scenarioUC,
		admins:    admins,
		wizards:   make(map[int64]*wizard.Session),
		edits:     make(map[int64]pendingEdit),
	}
}

// WithDeduper включает отсечение повторных апдейтов.
func (h *Handler) WithDeduper(d Deduper) *Handler {
	h.dedup = d
	return h
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd telegram.Update) {
	if h.duplicate(ctx, upd) {
		return
	}
	metrics.InboundUpdates.WithLabelValues(upd.Kind()).Inc()
	switch {
	case upd.BusinessConnection != nil:
		if err := h.business.HandleConnection(ctx, upd.BusinessConnection.Domain()); err != nil {
			h.log.Error().Err(err).Str("connection", upd.BusinessConnection.ID).Msg("bot: не удалось сохранить подключение")
		}
	case upd.BusinessMessage != nil:
		h.handleBusinessMessage(ctx, upd.BusinessMessage)
	case upd.EditedBusinessMessage != nil:
		in := upd.EditedBusinessMessage.Inbound()
		h.log.Debug().Str("connection", in.ConnectionID).Int64("chat", in.ChatID).Int("message", in.MessageID).Msg("bot: бизнес-сообщение изменено")
	case upd.DeletedBusinessMessages != nil:
		del := upd.DeletedBusinessMessages
		h.log.Info().Str("connection", del.BusinessConnectionID).Int64("chat", del.Chat.ID).Ints("messages", del.MessageIDs).Msg("bot: бизнес-сообщения удалены")
	case upd.CallbackQuery != nil:
		h.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		h.handleMessage(ctx, upd.Message)
	}
}

func (h *Handler) duplicate(ctx context.Context, upd telegram.Update) bool {
	if h.dedup == nil || upd.UpdateID == 0 {
		return false
	}
	seen, err := h.dedup.Seen(ctx, "update:"+strconv.Itoa(upd.UpdateID), updateDedupTTL)
	if err != nil {
		h.log.Warn().Err(err).Int("update", upd.UpdateID).Msg("bot: не удалось проверить повтор апдейта")
		return false
	}
	if seen {
		h.log.Debug().Int("update", upd.UpdateID).Msg("bot: повторный апдейт пропущен")
	}
	return seen
}

func (h *Handler) handleBusinessMessage(ctx context.Context, msg *telegram.BusinessMessage) {
	in := msg.Inbound()
	if strings.TrimSpace(in.Text) == "" {
		return
	}
	if _, err := h.business.HandleMessage(ctx, in); err != nil {
		h.log.Error().Err(err).Int64("chat", in.ChatID).Msg("bot: ошибка обработки бизнес-сообщения")
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	if strings.HasPrefix(cb.Data, adminPrefix) && cb.ConnectionID() == "" {
		if !h.isAdmin(cb.From) {
			h.answer(cb.ID, "⛔ Нет доступа")
			return
		}
		h.answer(cb.ID, "")
		h.handleAdminCallback(ctx, cb.ChatID(), cb.From.ID, strings.TrimPrefix(cb.Data, adminPrefix))
		return
	}
	matched, err := h.business.HandleCallback(ctx, cb.Inbound())
	if errors.Is(err, domain.ErrNoConnection) {
		h.answer(cb.ID, "Ошибка: не найден business_connection_id")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("token", cb.Data).Msg("bot: ошибка обработки нажатия")
	}
	if matched {
		h.answer(cb.ID, "✅")
		return
	}
	h.answer(cb.ID, "Сценарий не найден")
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !h.isAdmin(msg.From) {
		if strings.HasPrefix(text, "/admin") {
			h.reply(msg.Chat.ID, "⛔ У вас нет доступа к админ-панели.", nil)
			return
		}
		if strings.HasPrefix(text, "/start") {
			h.reply(msg.Chat.ID, "Этот бот отвечает клиентам через Telegram Business. Подключите его в настройках бизнес-аккаунта.", nil)
		}
		return
	}
	switch {
	case strings.HasPrefix(text, "/admin"), strings.HasPrefix(text, "/start"):
		h.resetInput(msg.From.ID)
		h.reply(msg.Chat.ID, adminMenuText, adminMenuKeyboard())
	case strings.HasPrefix(text, "/cancel"):
		h.resetInput(msg.From.ID)
		h.reply(msg.Chat.ID, "Действие отменено.", adminMenuKeyboard())
	default:
		if h.handleAdminInput(ctx, msg.Chat.ID, msg.From.ID, text) {
			return
		}
		h.reply(msg.Chat.ID, "Неизвестная команда. Используйте /admin", nil)
	}
}

func (h *Handler) isAdmin(user *tgbotapi.User) bool {
	if user == nil {
		return false
	}
	_, ok := h.admins[user.ID]
	return ok
}

func (h *Handler) answer(callbackID, text string) {
	if callbackID == "" {
		return
	}
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(callbackID, text))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", "bot", start, err)
	if err != nil {
		h.log.Debug().Err(err).Msg("bot: не удалось ответить на callback")
	}
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.SplitPlain(text)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", "admin", start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			h.log.Error().Err(err).Int64("chat", chatID).Msg("bot: не удалось отправить сообщение")
			return
		}
	}
}

func parseID(value string) int64 {
	id, _ := strconv.ParseInt(value, 10, 64)
	return id
}
