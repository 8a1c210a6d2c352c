package domain

import (
	"context"
	"time"
)

// ScenarioLister отдаёт сценарии от новых к старым.
type ScenarioLister interface {
	ListScenarios(ctx context.Context, activeOnly bool) ([]Scenario, error)
}

// ScenarioRepo хранит сценарии автоответов.
type ScenarioRepo interface {
	ScenarioLister
	CreateScenario(ctx context.Context, draft ScenarioDraft) (int64, error)
	GetScenario(ctx context.Context, id int64) (Scenario, error)
	// UpdateScenario применяет патч одной операцией. Пустой патч возвращает false без ошибки.
	UpdateScenario(ctx context.Context, id int64, patch ScenarioPatch) (bool, error)
	DeleteScenario(ctx context.Context, id int64) error
	ToggleScenario(ctx context.Context, id int64) error
}

// ConnectionRepo хранит бизнес-подключения.
type ConnectionRepo interface {
	UpsertConnection(ctx context.Context, conn BusinessConnection) error
	GetConnection(ctx context.Context, id string) (BusinessConnection, error)
}

// ReminderLogRepo ведёт журнал отправленных напоминаний.
type ReminderLogRepo interface {
	AppendReminderDispatch(ctx context.Context, record ReminderDispatch) error
}

// ReminderHistoryRepo отдаёт журнал напоминаний по чату, от старых записей к новым.
type ReminderHistoryRepo interface {
	ListReminderDispatches(ctx context.Context, chatID int64) ([]ReminderDispatch, error)
}

// Dispatcher доставляет сообщения в бизнес-чаты.
type Dispatcher interface {
	Send(ctx context.Context, msg OutgoingMessage) error
}

// ReadMarker помечает входящие бизнес-сообщения прочитанными.
type ReadMarker interface {
	MarkRead(ctx context.Context, connectionID string, chatID int64, messageID int) error
}

// Cache предоставляет примитив однократного выполнения.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}
