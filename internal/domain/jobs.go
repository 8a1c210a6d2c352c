package domain

import (
	"context"
	"time"
)

// ReminderJob хранит снимок ответа сценария на момент планирования напоминания.
type ReminderJob struct {
	ScenarioID   int64    `json:"scenario_id"`
	ChatID       int64    `json:"chat_id"`
	ConnectionID string   `json:"business_connection_id"`
	Text         string   `json:"text"`
	Buttons      []Button `json:"buttons,omitempty"`
}

// Message превращает задачу в исходящее сообщение.
func (j ReminderJob) Message() OutgoingMessage {
	return OutgoingMessage{
		ChatID:       j.ChatID,
		ConnectionID: j.ConnectionID,
		Text:         j.Text,
		Buttons:      j.Buttons,
	}
}

// ReminderTaskStatus обозначает состояние отложенной задачи.
type ReminderTaskStatus string

const (
	// ReminderScheduled означает, что задача ожидает срабатывания.
	ReminderScheduled ReminderTaskStatus = "scheduled"
	// ReminderFired означает, что напоминание доставлено и записано в журнал.
	ReminderFired ReminderTaskStatus = "fired"
	// ReminderFailed означает неудачную доставку без повтора.
	ReminderFailed ReminderTaskStatus = "failed"
)

// ReminderTask описывает сохранённую отложенную задачу.
type ReminderTask struct {
	Key    string
	Job    ReminderJob
	FireAt time.Time
	Status ReminderTaskStatus
}

// ReminderHandle возвращается планировщиком после постановки задачи.
type ReminderHandle struct {
	Key    string
	FireAt time.Time
}

// ReminderTaskRepo хранит отложенные задачи, чтобы переживать перезапуск процесса.
type ReminderTaskRepo interface {
	SaveReminderTask(ctx context.Context, task ReminderTask) error
	// ListPendingReminderTasks возвращает задачи в состоянии scheduled.
	ListPendingReminderTasks(ctx context.Context) ([]ReminderTask, error)
	FinishReminderTask(ctx context.Context, key string, status ReminderTaskStatus) error
}

// ReminderScheduler планирует отложенные напоминания.
type ReminderScheduler interface {
	Schedule(ctx context.Context, delayMinutes int, job ReminderJob) (ReminderHandle, error)
}
