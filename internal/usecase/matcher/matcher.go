package matcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/evil-zenix/business-bot-project/internal/domain"
	"github.com/evil-zenix/business-bot-project/internal/infra/metrics"
)

// Options настраивает сопоставление.
type Options struct {
	// FoldCallbackTokens приводит к нижнему регистру и входящий токен кнопки,
	// а не только сохранённый триггер.
	FoldCallbackTokens bool
}

// Matcher выбирает сценарий для входящего сообщения или нажатия кнопки.
type Matcher struct {
	scenarios domain.ScenarioLister
	opts      Options
}

// New создаёт матчер поверх хранилища сценариев.
func New(scenarios domain.ScenarioLister, opts Options) *Matcher {
	return &Matcher{scenarios: scenarios, opts: opts}
}

// FindMatch возвращает первый подходящий активный сценарий или nil.
// Если token не пуст, рассматриваются только сценарии типа callback.
// Сценарии перебираются от новых к старым, побеждает самый свежий.
func (m *Matcher) FindMatch(ctx context.Context, text, token string) (*domain.Scenario, error) {
	if token == "" && text == "" {
		return nil, nil
	}
	list, err := m.scenarios.ListScenarios(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("список сценариев: %w", err)
	}
	normalized := strings.ToLower(strings.TrimSpace(text))
	if m.opts.FoldCallbackTokens {
		token = strings.ToLower(token)
	}
	for i := range list {
		sc := list[i]
		if !sc.Active {
			continue
		}
		if !Matches(sc, normalized, token) {
			continue
		}
		metrics.ScenarioMatches.WithLabelValues(string(sc.TriggerKind)).Inc()
		return &sc, nil
	}
	return nil, nil
}

// Matches проверяет предикат сценария. text уже должен быть обрезан и приведён к нижнему регистру.
func Matches(sc domain.Scenario, text, token string) bool {
	trigger := strings.ToLower(sc.TriggerValue)
	if token != "" {
		return sc.TriggerKind == domain.TriggerCallback && trigger == token
	}
	if text == "" {
		return false
	}
	switch sc.TriggerKind {
	case domain.TriggerExact:
		return text == trigger
	case domain.TriggerContains:
		return strings.Contains(text, trigger)
	}
	return false
}
