package scenarios

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/evil-zenix/business-bot-project/internal/adapters/repo"
	"github.com/evil-zenix/business-bot-project/internal/domain"
	"github.com/evil-zenix/business-bot-project/internal/infra/db"
	"github.com/evil-zenix/business-bot-project/internal/usecase/matcher"
)

func newTestService(t *testing.T) (*Service, *repo.SQLite) {
	t.Helper()
	conn, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("не удалось открыть БД: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	store := repo.NewSQLite(conn)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("миграция: %v", err)
	}
	return NewService(store, zerolog.Nop()), store
}

func TestSeedDefaultsOnlyOnEmptyStore(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	n, err := svc.SeedDefaults(ctx)
	if err != nil || n != 2 {
		t.Fatalf("ожидали 2 сценария по умолчанию, получили %d, %v", n, err)
	}
	n, err = svc.SeedDefaults(ctx)
	if err != nil || n != 0 {
		t.Fatalf("повторный посев не должен ничего добавлять, получили %d, %v", n, err)
	}

	m := matcher.New(store, matcher.Options{})
	sc, err := m.FindMatch(ctx, "Какое РАСПИСАНИЕ на завтра?", "")
	if err != nil || sc == nil {
		t.Fatalf("ожидали совпадение со сценарием по умолчанию, получили %+v, %v", sc, err)
	}
	if len(sc.Buttons) != 1 || sc.Buttons[0].Token != "schedule_full" {
		t.Fatalf("ожидали кнопку schedule_full, получили %+v", sc.Buttons)
	}
	full, err := m.FindMatch(ctx, "", sc.Buttons[0].Token)
	if err != nil || full == nil || full.TriggerKind != domain.TriggerCallback {
		t.Fatalf("кнопка должна вести к callback-сценарию, получили %+v, %v", full, err)
	}
}

func TestServiceMutations(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, domain.ScenarioDraft{TriggerKind: "regex", TriggerValue: "x", ResponseText: "y"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ожидали ошибку валидации, получили %v", err)
	}
	sc, err := svc.Create(ctx, domain.ScenarioDraft{TriggerKind: domain.TriggerExact, TriggerValue: "привет", ResponseText: "Здравствуйте"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}

	_, changed, err := svc.Update(ctx, sc.ID, domain.ScenarioPatch{})
	if err != nil || changed {
		t.Fatalf("пустой патч должен быть no-op, получили %v, %v", changed, err)
	}
	delay := 30
	updated, changed, err := svc.Update(ctx, sc.ID, domain.ScenarioPatch{ReminderDelay: &delay})
	if err != nil || !changed {
		t.Fatalf("ожидали обновление, получили %v, %v", changed, err)
	}
	got, _ := svc.Get(ctx, sc.ID)
	if got.ReminderDelayMinutes() != 30 {
		t.Fatalf("ожидали напоминание через 30 минут, получили %d", got.ReminderDelayMinutes())
	}
	if updated.ID != got.ID || updated.ReminderDelayMinutes() != 30 || updated.TriggerValue != got.TriggerValue || !updated.CreatedAt.Equal(got.CreatedAt) {
		t.Fatalf("возвращённый сценарий расходится с сохранённым: %+v / %+v", updated, got)
	}
	text := "Добрый день"
	if _, _, err := svc.Update(ctx, sc.ID+100, domain.ScenarioPatch{ResponseText: &text}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound для несуществующего сценария, получили %v", err)
	}

	toggled, err := svc.Toggle(ctx, sc.ID)
	if err != nil || toggled.Active {
		t.Fatalf("ожидали выключенный сценарий, получили %+v, %v", toggled, err)
	}

	if err := svc.Delete(ctx, sc.ID); err != nil {
		t.Fatalf("удаление: %v", err)
	}
	if err := svc.Delete(ctx, sc.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
	if _, err := svc.Toggle(ctx, sc.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
}

func TestListPage(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		if _, err := svc.Create(ctx, domain.ScenarioDraft{TriggerKind: domain.TriggerContains, TriggerValue: "t", ResponseText: "r"}); err != nil {
			t.Fatalf("создание: %v", err)
		}
	}
	first, err := svc.ListPage(ctx, 0)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(first.Items) != PageSize || first.HasPrev() || !first.HasNext() {
		t.Fatalf("неожиданная первая страница: %d prev=%v next=%v", len(first.Items), first.HasPrev(), first.HasNext())
	}
	last, err := svc.ListPage(ctx, 10)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if last.Index != 1 || len(last.Items) != 2 || !last.HasPrev() || last.HasNext() {
		t.Fatalf("неожиданная последняя страница: %+v", last)
	}

	empty, _ := newTestService(t)
	page, err := empty.ListPage(ctx, 3)
	if err != nil || page.Index != 0 || len(page.Items) != 0 {
		t.Fatalf("пустой список должен давать пустую страницу: %+v, %v", page, err)
	}
}
