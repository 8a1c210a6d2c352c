package domain

import (
	"context"
	"time"
)

// BusinessMetric описывает бизнесовое событие, которое сохраняется для последующего анализа.
type BusinessMetric struct {
	Event      string
	ScenarioID *int64
	ChatID     *int64
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	// BusinessMetricEventConnectionUpdated фиксирует подключение или изменение бизнес-аккаунта.
	BusinessMetricEventConnectionUpdated = "connection_updated"
	// BusinessMetricEventScenarioMatched фиксирует срабатывание сценария.
	BusinessMetricEventScenarioMatched = "scenario_matched"
	// BusinessMetricEventReminderScheduled фиксирует постановку напоминания.
	BusinessMetricEventReminderScheduled = "reminder_scheduled"
	// BusinessMetricEventReminderSent фиксирует успешную доставку напоминания.
	BusinessMetricEventReminderSent = "reminder_sent"
	// BusinessMetricEventReminderFailed фиксирует неудачную доставку напоминания.
	BusinessMetricEventReminderFailed = "reminder_failed"
)

// BusinessMetricRepo сохраняет бизнесовые события.
type BusinessMetricRepo interface {
	RecordBusinessMetric(ctx context.Context, metric BusinessMetric) error
}

// Int64Ptr возвращает указатель на значение.
func Int64Ptr(v int64) *int64 {
	return &v
}
