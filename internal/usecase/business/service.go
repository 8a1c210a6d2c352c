package business

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/evil-zenix/business-bot-project/internal/domain"
	"github.com/evil-zenix/business-bot-project/internal/infra/metrics"
)

// ScenarioMatcher подбирает сценарий по тексту или токену кнопки.
type ScenarioMatcher interface {
	FindMatch(ctx context.Context, text, token string) (*domain.Scenario, error)
}

// Service обрабатывает входящие события бизнес-аккаунта.
type Service struct {
	matcher     ScenarioMatcher
	dispatcher  domain.Dispatcher
	scheduler   domain.ReminderScheduler
	connections domain.ConnectionRepo
	analytics   domain.BusinessMetricRepo
	log         zerolog.Logger
}

// NewService создаёт сервис. analytics может быть nil.
func NewService(matcher ScenarioMatcher, dispatcher domain.Dispatcher, scheduler domain.ReminderScheduler, connections domain.ConnectionRepo, analytics domain.BusinessMetricRepo, logger zerolog.Logger) *Service {
	return &Service{
		matcher:     matcher,
		dispatcher:  dispatcher,
		scheduler:   scheduler,
		connections: connections,
		analytics:   analytics,
		log:         logger.With().Str("component", "business").Logger(),
	}
}

// HandleConnection сохраняет состояние подключения бизнес-аккаунта.
func (s *Service) HandleConnection(ctx context.Context, conn domain.BusinessConnection) error {
	if conn.ID == "" {
		return &domain.ValidationError{Field: "connection_id", Reason: "must not be empty"}
	}
	if err := s.connections.UpsertConnection(ctx, conn); err != nil {
		return fmt.Errorf("сохранение подключения: %w", err)
	}
	s.log.Info().Str("connection", conn.ID).Int64("user", conn.UserID).Bool("can_reply", conn.CanReply).
		Bool("enabled", conn.Enabled).Msg("business: подключение обновлено")
	s.record(ctx, domain.BusinessMetric{
		Event:    domain.BusinessMetricEventConnectionUpdated,
		Metadata: map[string]any{"connection_id": conn.ID, "can_reply": conn.CanReply, "enabled": conn.Enabled},
	})
	return nil
}

// HandleMessage отвечает на бизнес-сообщение. Возвращает true, если сценарий сработал.
// Ошибка отправки только логируется, напоминание планируется в любом случае.
func (s *Service) HandleMessage(ctx context.Context, msg domain.InboundMessage) (bool, error) {
	if msg.ConnectionID == "" {
		s.log.Warn().Int64("chat", msg.ChatID).Msg("business: сообщение без business_connection_id")
		return false, nil
	}
	sc, err := s.matcher.FindMatch(ctx, msg.Text, "")
	if err != nil {
		return false, fmt.Errorf("поиск сценария: %w", err)
	}
	if sc == nil {
		s.log.Debug().Int64("chat", msg.ChatID).Msg("business: сценарий не найден")
		return false, nil
	}
	sent := s.respond(ctx, *sc, msg.ChatID, msg.ConnectionID)
	if sent && msg.MessageID != 0 {
		s.markRead(ctx, msg)
	}
	s.scheduleReminder(ctx, *sc, msg.ChatID, msg.ConnectionID)
	return true, nil
}

// HandleCallback обрабатывает нажатие кнопки в бизнес-чате.
// Если сценарий найден, но ответить некуда, возвращается domain.ErrNoConnection.
func (s *Service) HandleCallback(ctx context.Context, cb domain.InboundCallback) (bool, error) {
	if cb.Token == "" {
		return false, nil
	}
	sc, err := s.matcher.FindMatch(ctx, "", cb.Token)
	if err != nil {
		return false, fmt.Errorf("поиск сценария: %w", err)
	}
	if sc == nil {
		s.log.Debug().Str("token", cb.Token).Int64("chat", cb.ChatID).Msg("business: кнопка без сценария")
		return false, nil
	}
	if cb.ConnectionID == "" {
		s.log.Warn().Int64("chat", cb.ChatID).Int64("scenario", sc.ID).Msg("business: callback без business_connection_id")
		return false, domain.ErrNoConnection
	}
	s.respond(ctx, *sc, cb.ChatID, cb.ConnectionID)
	s.scheduleReminder(ctx, *sc, cb.ChatID, cb.ConnectionID)
	return true, nil
}

func (s *Service) respond(ctx context.Context, sc domain.Scenario, chatID int64, connectionID string) bool {
	s.record(ctx, domain.BusinessMetric{
		Event:      domain.BusinessMetricEventScenarioMatched,
		ScenarioID: domain.Int64Ptr(sc.ID),
		ChatID:     domain.Int64Ptr(chatID),
		Metadata:   map[string]any{"kind": string(sc.TriggerKind)},
	})
	err := s.dispatcher.Send(ctx, domain.OutgoingMessage{
		ChatID:       chatID,
		ConnectionID: connectionID,
		Text:         sc.ResponseText,
		Buttons:      sc.Buttons,
	})
	if err != nil {
		metrics.BotSendErrors.Inc()
		s.log.Error().Err(&domain.DispatchError{ChatID: chatID, Err: err}).Int64("scenario", sc.ID).
			Msg("business: не удалось отправить ответ")
		return false
	}
	s.log.Info().Int64("scenario", sc.ID).Int64("chat", chatID).Msg("business: ответ отправлен")
	return true
}

func (s *Service) markRead(ctx context.Context, msg domain.InboundMessage) {
	marker, ok := s.dispatcher.(domain.ReadMarker)
	if !ok {
		return
	}
	if err := marker.MarkRead(ctx, msg.ConnectionID, msg.ChatID, msg.MessageID); err != nil {
		s.log.Debug().Err(err).Int64("chat", msg.ChatID).Msg("business: не удалось отметить сообщение прочитанным")
	}
}

func (s *Service) scheduleReminder(ctx context.Context, sc domain.Scenario, chatID int64, connectionID string) {
	if !sc.HasReminder() || s.scheduler == nil {
		return
	}
	job := domain.ReminderJob{
		ScenarioID:   sc.ID,
		ChatID:       chatID,
		ConnectionID: connectionID,
		Text:         sc.ResponseText,
		Buttons:      sc.Buttons,
	}
	if _, err := s.scheduler.Schedule(ctx, sc.Reminder.DelayMinutes, job); err != nil {
		s.log.Error().Err(err).Int64("scenario", sc.ID).Int64("chat", chatID).Msg("business: не удалось запланировать напоминание")
	}
}

func (s *Service) record(ctx context.Context, metric domain.BusinessMetric) {
	if s.analytics == nil {
		return
	}
	if err := s.analytics.RecordBusinessMetric(ctx, metric); err != nil {
		s.log.Warn().Err(err).Str("event", metric.Event).Msg("business: не удалось сохранить бизнес-метрику")
	}
}
