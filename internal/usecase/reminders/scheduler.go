package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/evil-zenix/business-bot-project/internal/domain"
	"github.com/evil-zenix/business-bot-project/internal/infra/metrics"
)

// ErrStopped возвращается при попытке запланировать задачу после Stop.
var ErrStopped = errors.New("scheduler stopped")

const (
	fireTimeout     = 30 * time.Second
	defaultGuardTTL = 24 * time.Hour
)

// Option настраивает Scheduler.
type Option func(*Scheduler)

// WithTaskRepo включает сохранение задач, чтобы Restore мог поднять их после рестарта.
func WithTaskRepo(repo domain.ReminderTaskRepo) Option {
	return func(s *Scheduler) { s.tasks = repo }
}

// WithFireGuard не даёт одной задаче сработать дважды, например при повторном Restore.
func WithFireGuard(cache domain.Cache, ttl time.Duration) Option {
	return func(s *Scheduler) {
		s.guard = cache
		if ttl > 0 {
			s.guardTTL = ttl
		}
	}
}

// WithAnalytics пишет бизнес-события о напоминаниях.
func WithAnalytics(repo domain.BusinessMetricRepo) Option {
	return func(s *Scheduler) { s.analytics = repo }
}

// WithDelayUnit задаёт длительность одной «минуты» задержки.
func WithDelayUnit(unit time.Duration) Option {
	return func(s *Scheduler) {
		if unit > 0 {
			s.unit = unit
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler запускает одноразовые отложенные напоминания.
// Каждая задача либо доставляется и попадает в журнал, либо завершается ошибкой без повтора.
type Scheduler struct {
	dispatcher domain.Dispatcher
	audit      domain.ReminderLogRepo
	tasks      domain.ReminderTaskRepo
	guard      domain.Cache
	guardTTL   time.Duration
	analytics  domain.BusinessMetricRepo
	log        zerolog.Logger
	unit       time.Duration
	now        func() time.Time

	mu      sync.Mutex
	timers  map[string]*time.Timer
	firing  map[string]struct{}
	stopped bool
	wg      sync.WaitGroup
}

var _ domain.ReminderScheduler = (*Scheduler)(nil)

// New создаёт планировщик.
func New(dispatcher domain.Dispatcher, audit domain.ReminderLogRepo, logger zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		dispatcher: dispatcher,
		audit:      audit,
		guardTTL:   defaultGuardTTL,
		log:        logger.With().Str("component", "reminders").Logger(),
		unit:       time.Minute,
		now:        time.Now,
		timers:     make(map[string]*time.Timer),
		firing:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule ставит напоминание через delayMinutes. Дубликаты допустимы: каждый вызов создаёт новую задачу.
func (s *Scheduler) Schedule(ctx context.Context, delayMinutes int, job domain.ReminderJob) (domain.ReminderHandle, error) {
	if delayMinutes <= 0 {
		return domain.ReminderHandle{}, &domain.ValidationError{Field: "delay_minutes", Reason: "must be positive"}
	}
	task := domain.ReminderTask{
		Key:    fmt.Sprintf("reminder_%d_%d_%s", job.ScenarioID, job.ChatID, uuid.NewString()),
		Job:    job,
		FireAt: s.now().Add(time.Duration(delayMinutes) * s.unit),
		Status: domain.ReminderScheduled,
	}
	if s.tasks != nil {
		if err := s.tasks.SaveReminderTask(ctx, task); err != nil {
			return domain.ReminderHandle{}, fmt.Errorf("сохранение задачи напоминания: %w", err)
		}
	}
	if _, err := s.arm(task); err != nil {
		return domain.ReminderHandle{}, err
	}
	metrics.RemindersScheduled.Inc()
	s.record(ctx, domain.BusinessMetricEventReminderScheduled, task.Job, map[string]any{"delay_minutes": delayMinutes})
	s.log.Info().Str("key", task.Key).Int64("chat", job.ChatID).Int64("scenario", job.ScenarioID).
		Time("fire_at", task.FireAt).Msg("reminders: напоминание запланировано")
	return domain.ReminderHandle{Key: task.Key, FireAt: task.FireAt}, nil
}

// Restore поднимает сохранённые задачи. Просроченные срабатывают сразу.
func (s *Scheduler) Restore(ctx context.Context) (int, error) {
	if s.tasks == nil {
		return 0, nil
	}
	pending, err := s.tasks.ListPendingReminderTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("загрузка задач напоминаний: %w", err)
	}
	restored := 0
	for _, task := range pending {
		armed, err := s.arm(task)
		if err != nil {
			return restored, err
		}
		if armed {
			restored++
		}
	}
	if restored > 0 {
		s.log.Info().Int("count", restored).Msg("reminders: задачи восстановлены")
	}
	return restored, nil
}

// Pending возвращает число задач, ожидающих срабатывания.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop отменяет несработавшие таймеры и дожидается задач, которые уже выполняются.
// Без WithTaskRepo отменённые напоминания теряются.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for key, timer := range s.timers {
		if timer.Stop() {
			delete(s.timers, key)
			metrics.RemindersPending.Dec()
			s.wg.Done()
		}
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// arm заводит таймер задачи. Ключ, который уже ждёт или срабатывает, повторно не заводится.
func (s *Scheduler) arm(task domain.ReminderTask) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false, ErrStopped
	}
	if _, ok := s.timers[task.Key]; ok {
		return false, nil
	}
	if _, ok := s.firing[task.Key]; ok {
		return false, nil
	}
	delay := task.FireAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	s.wg.Add(1)
	s.timers[task.Key] = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		s.fire(task)
	})
	metrics.RemindersPending.Inc()
	return true, nil
}

func (s *Scheduler) fire(task domain.ReminderTask) {
	s.mu.Lock()
	delete(s.timers, task.Key)
	s.firing[task.Key] = struct{}{}
	s.mu.Unlock()
	metrics.RemindersPending.Dec()
	defer func() {
		s.mu.Lock()
		delete(s.firing, task.Key)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), fireTimeout)
	defer cancel()

	deliver := func() error { return s.deliver(ctx, task) }
	var err error
	if s.guard != nil {
		err = s.guard.Once(ctx, "reminder:"+task.Key, s.guardTTL, deliver)
	} else {
		err = deliver()
	}
	if err != nil {
		s.log.Error().Err(err).Str("key", task.Key).Int64("chat", task.Job.ChatID).Msg("reminders: напоминание не отправлено")
	}
}

func (s *Scheduler) deliver(ctx context.Context, task domain.ReminderTask) error {
	job := task.Job
	if err := s.dispatcher.Send(ctx, job.Message()); err != nil {
		metrics.RemindersFired.WithLabelValues(string(domain.ReminderFailed)).Inc()
		s.finish(ctx, task.Key, domain.ReminderFailed)
		s.record(ctx, domain.BusinessMetricEventReminderFailed, job, nil)
		return &domain.DispatchError{ChatID: job.ChatID, Err: err}
	}

	record := domain.ReminderDispatch{
		ScenarioID:   job.ScenarioID,
		ChatID:       job.ChatID,
		ConnectionID: job.ConnectionID,
		SentAt:       s.now().UTC(),
	}
	if err := s.audit.AppendReminderDispatch(ctx, record); err != nil {
		s.log.Error().Err(err).Str("key", task.Key).Msg("reminders: не удалось записать журнал")
	}
	metrics.RemindersFired.WithLabelValues(string(domain.ReminderFired)).Inc()
	s.finish(ctx, task.Key, domain.ReminderFired)
	s.record(ctx, domain.BusinessMetricEventReminderSent, job, nil)
	s.log.Info().Str("key", task.Key).Int64("chat", job.ChatID).Int64("scenario", job.ScenarioID).Msg("reminders: напоминание отправлено")
	return nil
}

func (s *Scheduler) finish(ctx context.Context, key string, status domain.ReminderTaskStatus) {
	if s.tasks == nil {
		return
	}
	if err := s.tasks.FinishReminderTask(ctx, key, status); err != nil {
		s.log.Warn().Err(err).Str("key", key).Str("status", string(status)).Msg("reminders: не удалось обновить статус задачи")
	}
}

func (s *Scheduler) record(ctx context.Context, event string, job domain.ReminderJob, metadata map[string]any) {
	if s.analytics == nil {
		return
	}
	metric := domain.BusinessMetric{
		Event:      event,
		ScenarioID: domain.Int64Ptr(job.ScenarioID),
		ChatID:     domain.Int64Ptr(job.ChatID),
		Metadata:   metadata,
	}
	if err := s.analytics.RecordBusinessMetric(ctx, metric); err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("reminders: не удалось сохранить бизнес-метрику")
	}
}
