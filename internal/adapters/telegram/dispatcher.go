package telegram

import (
	"context"
	"errors"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/evil-zenix/business-bot-project/internal/domain"
	"github.com/evil-zenix/business-bot-project/internal/infra/metrics"
)

// ErrEmptyMessage возвращается при попытке отправить пустой текст.
var ErrEmptyMessage = errors.New("empty message")

// Requester выполняет произвольный метод Bot API. *tgbotapi.BotAPI удовлетворяет интерфейсу.
type Requester interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// Dispatcher отправляет ответы от имени бизнес-аккаунта.
type Dispatcher struct {
	api Requester
}

var (
	_ domain.Dispatcher = (*Dispatcher)(nil)
	_ domain.ReadMarker = (*Dispatcher)(nil)
)

// NewDispatcher создаёт отправителя.
func NewDispatcher(api Requester) *Dispatcher {
	return &Dispatcher{api: api}
}

// Send отправляет HTML-сообщение. Длинный текст делится на части, кнопки прикрепляются к первой.
func (d *Dispatcher) Send(ctx context.Context, msg domain.OutgoingMessage) error {
	parts := SplitMessage(msg.Text)
	if len(parts) == 0 {
		return ErrEmptyMessage
	}
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		params := tgbotapi.Params{}
		params.AddNonZero64("chat_id", msg.ChatID)
		params["text"] = part
		params["parse_mode"] = tgbotapi.ModeHTML
		params.AddNonEmpty("business_connection_id", msg.ConnectionID)
		if i == 0 {
			if keyboard := Keyboard(msg.Buttons); keyboard != nil {
				if err := params.AddInterface("reply_markup", keyboard); err != nil {
					return err
				}
			}
		}
		start := time.Now()
		_, err := d.api.MakeRequest("sendMessage", params)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", "business", start, err)
		if err != nil {
			return err
		}
	}
	return nil
}

// MarkRead отмечает входящее сообщение прочитанным.
func (d *Dispatcher) MarkRead(ctx context.Context, connectionID string, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := tgbotapi.Params{}
	params["business_connection_id"] = connectionID
	params.AddNonZero64("chat_id", chatID)
	params.AddNonZero("message_id", messageID)
	start := time.Now()
	_, err := d.api.MakeRequest("readBusinessMessage", params)
	metrics.ObserveNetworkRequest("telegram_bot", "read_business_message", "business", start, err)
	return err
}

// Keyboard строит inline-клавиатуру: по одной кнопке в строке.
func Keyboard(buttons []domain.Button) *tgbotapi.InlineKeyboardMarkup {
	if len(buttons) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Token)))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}
