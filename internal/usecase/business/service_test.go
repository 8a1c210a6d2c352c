package business

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/evil-zenix/business-bot-project/internal/domain"
	"github.com/evil-zenix/business-bot-project/internal/usecase/matcher"
)

type listStub []domain.Scenario

func (l listStub) ListScenarios(ctx context.Context, activeOnly bool) ([]domain.Scenario, error) {
	return l, nil
}

type recorder struct {
	calls []string
	sent  []domain.OutgoingMessage
	read  []int
	jobs  []domain.ReminderJob
	delay []int
	err   error
}

func (r *recorder) Send(ctx context.Context, msg domain.OutgoingMessage) error {
	r.calls = append(r.calls, "send")
	r.sent = append(r.sent, msg)
	return r.err
}

func (r *recorder) MarkRead(ctx context.Context, connectionID string, chatID int64, messageID int) error {
	r.calls = append(r.calls, "read")
	r.read = append(r.read, messageID)
	return errors.New("read not supported")
}

func (r *recorder) Schedule(ctx context.Context, delayMinutes int, job domain.ReminderJob) (domain.ReminderHandle, error) {
	r.calls = append(r.calls, "schedule")
	r.jobs = append(r.jobs, job)
	r.delay = append(r.delay, delayMinutes)
	return domain.ReminderHandle{Key: "k"}, nil
}

type connStub struct {
	saved []domain.BusinessConnection
}

func (c *connStub) UpsertConnection(ctx context.Context, conn domain.BusinessConnection) error {
	c.saved = append(c.saved, conn)
	return nil
}

func (c *connStub) GetConnection(ctx context.Context, id string) (domain.BusinessConnection, error) {
	return domain.BusinessConnection{}, domain.ErrNotFound
}

var rules = listStub{
	{
		ID:           2,
		TriggerKind:  domain.TriggerContains,
		TriggerValue: "запись",
		ResponseText: "Записываем!",
		Buttons:      []domain.Button{{Label: "Время", Token: "slots"}},
		Reminder:     &domain.Reminder{DelayMinutes: 60},
		Active:       true,
	},
	{ID: 1, TriggerKind: domain.TriggerCallback, TriggerValue: "slots", ResponseText: "Свободно в 10:00", Active: true},
}

func newService(r *recorder) *Service {
	return NewService(matcher.New(rules, matcher.Options{}), r, r, &connStub{}, nil, zerolog.Nop())
}

func TestHandleMessageDispatchesThenSchedules(t *testing.T) {
	r := &recorder{}
	svc := newService(r)
	matched, err := svc.HandleMessage(context.Background(), domain.InboundMessage{ConnectionID: "bc", ChatID: 9, MessageID: 42, Text: "Хочу ЗАПИСЬ"})
	if err != nil || !matched {
		t.Fatalf("ожидали срабатывание, получили %v, %v", matched, err)
	}
	want := []string{"send", "read", "schedule"}
	if len(r.calls) != len(want) {
		t.Fatalf("ожидали вызовы %v, получили %v", want, r.calls)
	}
	for i := range want {
		if r.calls[i] != want[i] {
			t.Fatalf("ожидали вызовы %v, получили %v", want, r.calls)
		}
	}
	if r.sent[0].ConnectionID != "bc" || r.sent[0].Text != "Записываем!" || len(r.sent[0].Buttons) != 1 {
		t.Fatalf("неожиданное сообщение: %+v", r.sent[0])
	}
	if r.delay[0] != 60 || r.jobs[0].ScenarioID != 2 || r.jobs[0].Text != "Записываем!" || r.jobs[0].ChatID != 9 {
		t.Fatalf("неожиданная задача: %+v (%d)", r.jobs[0], r.delay[0])
	}
}

func TestHandleMessageSchedulesEvenWhenDispatchFails(t *testing.T) {
	r := &recorder{err: errors.New("forbidden")}
	svc := newService(r)
	matched, err := svc.HandleMessage(context.Background(), domain.InboundMessage{ConnectionID: "bc", ChatID: 9, MessageID: 1, Text: "запись"})
	if err != nil || !matched {
		t.Fatalf("ошибка отправки не должна всплывать: %v, %v", matched, err)
	}
	if len(r.read) != 0 {
		t.Fatal("после неудачной отправки сообщение не отмечается прочитанным")
	}
	if len(r.jobs) != 1 {
		t.Fatalf("напоминание планируется безусловно, задач: %d", len(r.jobs))
	}
}

func TestHandleMessageIgnored(t *testing.T) {
	r := &recorder{}
	svc := newService(r)
	if matched, err := svc.HandleMessage(context.Background(), domain.InboundMessage{ChatID: 9, Text: "запись"}); err != nil || matched {
		t.Fatalf("сообщение без подключения должно игнорироваться: %v, %v", matched, err)
	}
	if matched, err := svc.HandleMessage(context.Background(), domain.InboundMessage{ConnectionID: "bc", ChatID: 9, Text: "привет"}); err != nil || matched {
		t.Fatalf("ожидали отсутствие совпадения: %v, %v", matched, err)
	}
	if len(r.calls) != 0 {
		t.Fatalf("не ожидали вызовов, получили %v", r.calls)
	}
}

func TestHandleCallback(t *testing.T) {
	r := &recorder{}
	svc := newService(r)
	matched, err := svc.HandleCallback(context.Background(), domain.InboundCallback{ConnectionID: "bc", ChatID: 9, Token: "slots"})
	if err != nil || !matched {
		t.Fatalf("ожидали срабатывание, получили %v, %v", matched, err)
	}
	if len(r.sent) != 1 || r.sent[0].Text != "Свободно в 10:00" {
		t.Fatalf("неожиданная отправка: %+v", r.sent)
	}
	if len(r.jobs) != 0 {
		t.Fatal("сценарий без напоминания не должен ничего планировать")
	}

	matched, err = svc.HandleCallback(context.Background(), domain.InboundCallback{ConnectionID: "bc", ChatID: 9, Token: "запись"})
	if err != nil || matched {
		t.Fatalf("токен не должен совпадать с текстовыми сценариями: %v, %v", matched, err)
	}
}

func TestHandleCallbackWithoutConnection(t *testing.T) {
	r := &recorder{}
	svc := newService(r)
	matched, err := svc.HandleCallback(context.Background(), domain.InboundCallback{ChatID: 9, Token: "slots"})
	if !errors.Is(err, domain.ErrNoConnection) {
		t.Fatalf("ожидали ErrNoConnection, получили %v", err)
	}
	if matched {
		t.Fatal("без подключения нажатие не считается обработанным")
	}
	if len(r.calls) != 0 {
		t.Fatalf("не ожидали отправок и напоминаний, получили %v", r.calls)
	}

	matched, err = svc.HandleCallback(context.Background(), domain.InboundCallback{ChatID: 9, Token: "нет такого"})
	if err != nil || matched {
		t.Fatalf("неизвестная кнопка без подключения: %v, %v", matched, err)
	}
}

func TestHandleConnection(t *testing.T) {
	conns := &connStub{}
	svc := NewService(matcher.New(rules, matcher.Options{}), &recorder{}, &recorder{}, conns, nil, zerolog.Nop())
	if err := svc.HandleConnection(context.Background(), domain.BusinessConnection{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ожидали ошибку валидации, получили %v", err)
	}
	if err := svc.HandleConnection(context.Background(), domain.BusinessConnection{ID: "bc", UserID: 5, CanReply: true, Enabled: true}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(conns.saved) != 1 || conns.saved[0].ID != "bc" {
		t.Fatalf("подключение не сохранено: %+v", conns.saved)
	}
}
