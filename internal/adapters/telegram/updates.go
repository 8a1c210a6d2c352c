package telegram

import (
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/evil-zenix/business-bot-project/internal/domain"
)

// AllowedUpdates перечисляет типы апдейтов, которые бот запрашивает у Telegram.
var AllowedUpdates = []string{
	"message",
	"callback_query",
	"business_connection",
	"business_message",
	"edited_business_message",
	"deleted_business_messages",
}

// Update дополняет апдейт Bot API полями Telegram Business.
type Update struct {
	UpdateID                int                      `json:"update_id"`
	Message                 *tgbotapi.Message        `json:"message,omitempty"`
	CallbackQuery           *CallbackQuery           `json:"callback_query,omitempty"`
	BusinessConnection      *BusinessConnection      `json:"business_connection,omitempty"`
	BusinessMessage         *BusinessMessage         `json:"business_message,omitempty"`
	EditedBusinessMessage   *BusinessMessage         `json:"edited_business_message,omitempty"`
	DeletedBusinessMessages *DeletedBusinessMessages `json:"deleted_business_messages,omitempty"`
}

// Kind возвращает тип апдейта для логов и метрик.
func (u Update) Kind() string {
	switch {
	case u.BusinessConnection != nil:
		return "business_connection"
	case u.BusinessMessage != nil:
		return "business_message"
	case u.EditedBusinessMessage != nil:
		return "edited_business_message"
	case u.DeletedBusinessMessages != nil:
		return "deleted_business_messages"
	case u.CallbackQuery != nil:
		return "callback_query"
	case u.Message != nil:
		return "message"
	}
	return "unknown"
}

// BusinessBotRights описывает права бота в бизнес-аккаунте.
type BusinessBotRights struct {
	CanReply bool `json:"can_reply"`
}

// BusinessConnection описывает подключение бота к бизнес-аккаунту.
type BusinessConnection struct {
	ID         string             `json:"id"`
	User       tgbotapi.User      `json:"user"`
	UserChatID int64              `json:"user_chat_id"`
	Date       int64              `json:"date"`
	CanReply   bool               `json:"can_reply"`
	Rights     *BusinessBotRights `json:"rights,omitempty"`
	IsEnabled  bool               `json:"is_enabled"`
}

// Domain переводит подключение в доменную модель.
// Новые версии Bot API передают право ответа в rights.
func (c BusinessConnection) Domain() domain.BusinessConnection {
	canReply := c.CanReply
	if c.Rights != nil {
		canReply = canReply || c.Rights.CanReply
	}
	updated := time.Now().UTC()
	if c.Date > 0 {
		updated = time.Unix(c.Date, 0).UTC()
	}
	return domain.BusinessConnection{
		ID:         c.ID,
		UserID:     c.User.ID,
		UserChatID: c.UserChatID,
		CanReply:   canReply,
		Enabled:    c.IsEnabled,
		UpdatedAt:  updated,
	}
}

// BusinessMessage описывает сообщение, полученное от имени бизнес-аккаунта.
type BusinessMessage struct {
	tgbotapi.Message
	BusinessConnectionID string `json:"business_connection_id,omitempty"`
}

// Inbound переводит сообщение в доменную модель.
func (m BusinessMessage) Inbound() domain.InboundMessage {
	in := domain.InboundMessage{
		ConnectionID: m.BusinessConnectionID,
		MessageID:    m.MessageID,
		Text:         m.Text,
	}
	if m.Chat != nil {
		in.ChatID = m.Chat.ID
	}
	if m.From != nil {
		in.FromID = m.From.ID
	}
	return in
}

// CallbackQuery описывает нажатие inline-кнопки, в том числе в бизнес-чате.
type CallbackQuery struct {
	ID      string           `json:"id"`
	From    *tgbotapi.User   `json:"from"`
	Message *BusinessMessage `json:"message,omitempty"`
	Data    string           `json:"data,omitempty"`
}

// ChatID возвращает чат, в котором нажата кнопка.
func (c CallbackQuery) ChatID() int64 {
	if c.Message != nil && c.Message.Chat != nil {
		return c.Message.Chat.ID
	}
	if c.From != nil {
		return c.From.ID
	}
	return 0
}

// ConnectionID возвращает бизнес-подключение, если кнопка нажата в бизнес-чате.
func (c CallbackQuery) ConnectionID() string {
	if c.Message == nil {
		return ""
	}
	return c.Message.BusinessConnectionID
}

// Inbound переводит нажатие в доменную модель.
func (c CallbackQuery) Inbound() domain.InboundCallback {
	in := domain.InboundCallback{
		ConnectionID: c.ConnectionID(),
		ChatID:       c.ChatID(),
		Token:        c.Data,
	}
	if c.From != nil {
		in.FromID = c.From.ID
	}
	return in
}

// DeletedBusinessMessages уведомляет об удалении сообщений в бизнес-чате.
type DeletedBusinessMessages struct {
	BusinessConnectionID string        `json:"business_connection_id"`
	Chat                 tgbotapi.Chat `json:"chat"`
	MessageIDs           []int         `json:"message_ids"`
}
