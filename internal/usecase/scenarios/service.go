package scenarios

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/evil-zenix/business-bot-project/internal/domain"
)

// PageSize задаёт число сценариев на странице админ-списка.
const PageSize = 5

// Service изменяет сценарии для мастера и REST API.
type Service struct {
	repo domain.ScenarioRepo
	log  zerolog.Logger
}

// NewService создаёт сервис.
func NewService(repo domain.ScenarioRepo, logger zerolog.Logger) *Service {
	return &Service{repo: repo, log: logger.With().Str("component", "scenarios").Logger()}
}

// Create проверяет и сохраняет новый сценарий.
func (s *Service) Create(ctx context.Context, draft domain.ScenarioDraft) (domain.Scenario, error) {
	if err := draft.Validate(); err != nil {
		return domain.Scenario{}, err
	}
	id, err := s.repo.CreateScenario(ctx, draft)
	if err != nil {
		return domain.Scenario{}, fmt.Errorf("создание сценария: %w", err)
	}
	s.log.Info().Int64("id", id).Str("kind", string(draft.TriggerKind)).Msg("scenarios: сценарий создан")
	return s.repo.GetScenario(ctx, id)
}

// Get возвращает сценарий по идентификатору.
func (s *Service) Get(ctx context.Context, id int64) (domain.Scenario, error) {
	return s.repo.GetScenario(ctx, id)
}

// List возвращает сценарии от новых к старым.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]domain.Scenario, error) {
	return s.repo.ListScenarios(ctx, activeOnly)
}

// Page описывает страницу списка сценариев.
type Page struct {
	Items []domain.Scenario
	Index int
	Total int
}

// HasPrev сообщает, есть ли предыдущая страница.
func (p Page) HasPrev() bool { return p.Index > 0 }

// HasNext сообщает, есть ли следующая страница.
func (p Page) HasNext() bool { return (p.Index+1)*PageSize < p.Total }

// ListPage возвращает страницу всех сценариев. Номер страницы приводится к допустимому диапазону.
func (s *Service) ListPage(ctx context.Context, index int) (Page, error) {
	all, err := s.repo.ListScenarios(ctx, false)
	if err != nil {
		return Page{}, err
	}
	pages := (len(all) + PageSize - 1) / PageSize
	if index >= pages {
		index = pages - 1
	}
	if index < 0 {
		index = 0
	}
	start := index * PageSize
	end := start + PageSize
	if end > len(all) {
		end = len(all)
	}
	return Page{Items: all[start:end], Index: index, Total: len(all)}, nil
}

// Update применяет патч и возвращает сценарий в новом состоянии без повторного чтения.
// Пустой патч возвращает false без обращения к хранилищу.
func (s *Service) Update(ctx context.Context, id int64, patch domain.ScenarioPatch) (domain.Scenario, bool, error) {
	if patch.IsEmpty() {
		return domain.Scenario{}, false, nil
	}
	if err := patch.Validate(); err != nil {
		return domain.Scenario{}, false, err
	}
	current, err := s.repo.GetScenario(ctx, id)
	if err != nil {
		return domain.Scenario{}, false, err
	}
	changed, err := s.repo.UpdateScenario(ctx, id, patch)
	if err != nil {
		return domain.Scenario{}, false, fmt.Errorf("обновление сценария %d: %w", id, err)
	}
	s.log.Info().Int64("id", id).Msg("scenarios: сценарий обновлён")
	return patch.Apply(current), changed, nil
}

// Delete удаляет сценарий.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteScenario(ctx, id); err != nil {
		return fmt.Errorf("удаление сценария %d: %w", id, err)
	}
	s.log.Info().Int64("id", id).Msg("scenarios: сценарий удалён")
	return nil
}

// Toggle переключает активность и возвращает сценарий в новом состоянии.
func (s *Service) Toggle(ctx context.Context, id int64) (domain.Scenario, error) {
	if err := s.repo.ToggleScenario(ctx, id); err != nil {
		return domain.Scenario{}, fmt.Errorf("переключение сценария %d: %w", id, err)
	}
	sc, err := s.repo.GetScenario(ctx, id)
	if err != nil {
		return domain.Scenario{}, err
	}
	s.log.Info().Int64("id", id).Bool("active", sc.Active).Msg("scenarios: активность изменена")
	return sc, nil
}

// SeedDefaults добавляет демонстрационные сценарии, если хранилище пустое.
func (s *Service) SeedDefaults(ctx context.Context) (int, error) {
	existing, err := s.repo.ListScenarios(ctx, false)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	for _, draft := range DefaultScenarios() {
		if _, err := s.repo.CreateScenario(ctx, draft); err != nil {
			return 0, fmt.Errorf("сценарий по умолчанию: %w", err)
		}
	}
	s.log.Info().Int("count", len(DefaultScenarios())).Msg("scenarios: добавлены сценарии по умолчанию")
	return len(DefaultScenarios()), nil
}

// DefaultScenarios возвращает стартовый набор: ответ на «расписание» и кнопку с полным расписанием.
func DefaultScenarios() []domain.ScenarioDraft {
	return []domain.ScenarioDraft{
		{
			TriggerKind:  domain.TriggerCallback,
			TriggerValue: "schedule_full",
			ResponseText: "📅 <b>Подробное расписание на неделю:</b>\n\n" +
				"<b>Понедельник:</b>\n• 09:00-10:30 — Утренняя тренировка\n• 18:00-19:30 — Вечерняя тренировка\n\n" +
				"<b>Вторник:</b>\n• 10:00-11:30 — Йога\n• 19:00-20:30 — Функциональный тренинг\n\n" +
				"<b>Среда:</b>\n• 09:00-10:30 — Утренняя тренировка\n• 18:00-19:30 — Вечерняя тренировка\n\n" +
				"<b>Четверг:</b>\n• 10:00-11:30 — Пилатес\n• 19:00-20:30 — Кроссфит\n\n" +
				"<b>Пятница:</b>\n• 09:00-10:30 — Утренняя тренировка\n• 17:00-18:30 — Стретчинг\n\n" +
				"<b>Суббота:</b>\n• 11:00-13:00 — Открытая тренировка\n\n" +
				"<b>Воскресенье:</b> выходной",
		},
		{
			TriggerKind:  domain.TriggerContains,
			TriggerValue: "расписание",
			ResponseText: "📅 <b>Расписание на сегодня:</b>\n\n" +
				"• 09:00-10:30 — Утренняя тренировка\n• 18:00-19:30 — Вечерняя тренировка\n\n" +
				"Нажмите кнопку ниже, чтобы увидеть расписание на всю неделю.",
			Buttons: []domain.Button{{Label: "📋 Полное расписание", Token: "schedule_full"}},
		},
	}
}
