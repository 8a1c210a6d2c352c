package domain

import "time"

// BusinessConnection описывает подключение бота к бизнес-аккаунту Telegram.
type BusinessConnection struct {
	ID         string
	UserID     int64
	UserChatID int64
	CanReply   bool
	Enabled    bool
	UpdatedAt  time.Time
}

// ReminderDispatch описывает запись журнала об успешно отправленном напоминании.
type ReminderDispatch struct {
	ScenarioID   int64
	ChatID       int64
	ConnectionID string
	SentAt       time.Time
}

// InboundMessage описывает входящее бизнес-сообщение от клиента.
type InboundMessage struct {
	ConnectionID string
	ChatID       int64
	MessageID    int
	FromID       int64
	Text         string
}

// InboundCallback описывает нажатие inline-кнопки в бизнес-чате.
type InboundCallback struct {
	ConnectionID string
	ChatID       int64
	FromID       int64
	Token        string
}

// OutgoingMessage описывает сообщение, которое бот отправляет от имени бизнес-аккаунта.
type OutgoingMessage struct {
	ChatID       int64
	ConnectionID string
	Text         string
	Buttons      []Button
}
