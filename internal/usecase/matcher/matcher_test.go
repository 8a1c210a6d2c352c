package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evil-zenix/business-bot-project/internal/domain"
)

type stubLister struct {
	list []domain.Scenario
	err  error
	hits int
}

func (s *stubLister) ListScenarios(ctx context.Context, activeOnly bool) ([]domain.Scenario, error) {
	s.hits++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.Scenario, 0, len(s.list))
	for _, sc := range s.list {
		if activeOnly && !sc.Active {
			continue
		}
		out = append(out, sc)
	}
	return out, nil
}

func scenario(id int64, kind domain.TriggerKind, value string, active bool) domain.Scenario {
	return domain.Scenario{
		ID:           id,
		TriggerKind:  kind,
		TriggerValue: value,
		ResponseText: "ответ",
		Active:       active,
		CreatedAt:    time.Unix(id, 0),
	}
}

func TestFindMatchText(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		rules  []domain.Scenario
		text   string
		wantID int64
	}{
		{"exact ignores case and spaces", []domain.Scenario{scenario(1, domain.TriggerExact, "привет", true)}, "  ПРИВЕТ ", 1},
		{"exact needs equality", []domain.Scenario{scenario(1, domain.TriggerExact, "привет", true)}, "привет!", 0},
		{"contains substring", []domain.Scenario{scenario(1, domain.TriggerContains, "цена", true)}, "Какая ЦЕНА?", 1},
		{"inactive invisible", []domain.Scenario{scenario(1, domain.TriggerContains, "цена", false)}, "Какая ЦЕНА?", 0},
		{"newest wins", []domain.Scenario{
			scenario(2, domain.TriggerExact, "abc", true),
			scenario(1, domain.TriggerContains, "a", true),
		}, "abc", 2},
		{"text skips callback rules", []domain.Scenario{scenario(1, domain.TriggerCallback, "schedule_full", true)}, "schedule_full", 0},
		{"stored trigger lower-cased", []domain.Scenario{scenario(1, domain.TriggerContains, "Расписание", true)}, "покажи расписание", 1},
		{"blank text", []domain.Scenario{scenario(1, domain.TriggerContains, "a", true)}, "   ", 0},
	}
	for _, tc := range cases {
		m := New(&stubLister{list: tc.rules}, Options{})
		got, err := m.FindMatch(ctx, tc.text, "")
		if err != nil {
			t.Fatalf("%s: не ожидали ошибку: %v", tc.name, err)
		}
		if tc.wantID == 0 {
			if got != nil {
				t.Fatalf("%s: ожидали отсутствие совпадения, получили %d", tc.name, got.ID)
			}
			continue
		}
		if got == nil || got.ID != tc.wantID {
			t.Fatalf("%s: ожидали сценарий %d, получили %+v", tc.name, tc.wantID, got)
		}
	}
}

func TestFindMatchCallback(t *testing.T) {
	ctx := context.Background()
	rules := []domain.Scenario{
		scenario(2, domain.TriggerContains, "schedule", true),
		scenario(1, domain.TriggerCallback, "schedule_full", true),
	}

	m := New(&stubLister{list: rules}, Options{})
	got, err := m.FindMatch(ctx, "", "schedule_full")
	if err != nil || got == nil || got.ID != 1 {
		t.Fatalf("ожидали сценарий 1, получили %+v, %v", got, err)
	}
	got, err = m.FindMatch(ctx, "", "Schedule_Full")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got != nil {
		t.Fatalf("входящий токен сравнивается как есть, получили %d", got.ID)
	}

	folded := New(&stubLister{list: rules}, Options{FoldCallbackTokens: true})
	got, err = folded.FindMatch(ctx, "", "Schedule_Full")
	if err != nil || got == nil || got.ID != 1 {
		t.Fatalf("со свёрткой регистра ожидали сценарий 1, получили %+v, %v", got, err)
	}

	got, err = m.FindMatch(ctx, "", "unknown")
	if err != nil || got != nil {
		t.Fatalf("ожидали отсутствие совпадения, получили %+v, %v", got, err)
	}
}

func TestFindMatchStoredTokenLowerCased(t *testing.T) {
	m := New(&stubLister{list: []domain.Scenario{scenario(1, domain.TriggerCallback, "Schedule_Full", true)}}, Options{})
	got, err := m.FindMatch(context.Background(), "", "schedule_full")
	if err != nil || got == nil {
		t.Fatalf("ожидали совпадение с приведённым триггером, получили %+v, %v", got, err)
	}
}

func TestFindMatchStoreError(t *testing.T) {
	boom := &domain.StoreError{Op: "list", Err: errors.New("db down")}
	m := New(&stubLister{err: boom}, Options{})
	if _, err := m.FindMatch(context.Background(), "привет", ""); !errors.Is(err, boom) {
		t.Fatalf("ожидали ошибку хранилища, получили %v", err)
	}
}

func TestFindMatchEmptyInputSkipsStore(t *testing.T) {
	lister := &stubLister{}
	m := New(lister, Options{})
	got, err := m.FindMatch(context.Background(), "", "")
	if err != nil || got != nil {
		t.Fatalf("ожидали пустой результат, получили %+v, %v", got, err)
	}
	if lister.hits != 0 {
		t.Fatalf("хранилище не должно вызываться, вызовов: %d", lister.hits)
	}
}
