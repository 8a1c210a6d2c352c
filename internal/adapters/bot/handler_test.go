package bot

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/evil-zenix/business-bot-project/internal/adapters/repo"
	"github.com/evil-zenix/business-bot-project/internal/adapters/telegram"
	"github.com/evil-zenix/business-bot-project/internal/domain"
	"github.com/evil-zenix/business-bot-project/internal/infra/db"
	"github.com/evil-zenix/business-bot-project/internal/usecase/business"
	"github.com/evil-zenix/business-bot-project/internal/usecase/matcher"
	"github.com/evil-zenix/business-bot-project/internal/usecase/scenarios"
)

const adminID = 100

type fakeBot struct {
	mu       sync.Mutex
	texts    []string
	markups  []*tgbotapi.InlineKeyboardMarkup
	answers  []string
	requests int
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.texts = append(f.texts, msg.Text)
		markup, _ := msg.ReplyMarkup.(*tgbotapi.InlineKeyboardMarkup)
		f.markups = append(f.markups, markup)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	f.requests++
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.answers = append(f.answers, cb.Text)
	}
	f.mu.Unlock()
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type sentLog struct {
	mu   sync.Mutex
	sent []domain.OutgoingMessage
}

func (s *sentLog) Send(ctx context.Context, msg domain.OutgoingMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return nil
}

type testEnv struct {
	handler *Handler
	bot     *fakeBot
	sent    *sentLog
	store   *repo.SQLite
}

func newEnv(t *testing.T) *testEnv {
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
	sent := &sentLog{}
	businessUC := business.NewService(matcher.New(store, matcher.Options{}), sent, nil, store, nil, zerolog.Nop())
	bot := &fakeBot{}
	h := NewHandler(bot, zerolog.Nop(), businessUC, scenarios.NewService(store, zerolog.Nop()), []int64{adminID})
	return &testEnv{handler: h, bot: bot, sent: sent, store: store}
}

func adminText(text string) telegram.Update {
	return telegram.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: adminID},
		From: &tgbotapi.User{ID: adminID},
		Text: text,
	}}
}

func adminPress(data string) telegram.Update {
	return telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: adminID},
		Message: &telegram.BusinessMessage{Message: tgbotapi.Message{Chat: &tgbotapi.Chat{ID: adminID}}},
		Data:    data,
	}}
}

func TestNonAdminIsDenied(t *testing.T) {
	env := newEnv(t)
	env.handler.HandleUpdate(context.Background(), telegram.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: 5},
		From: &tgbotapi.User{ID: 5},
		Text: "/admin",
	}})
	if !strings.Contains(env.bot.last(), "нет доступа") {
		t.Fatalf("ожидали отказ, получили %q", env.bot.last())
	}

	env.handler.HandleUpdate(context.Background(), telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:   "x",
		From: &tgbotapi.User{ID: 5},
		Data: adminPrefix + "add",
	}})
	if env.bot.requests != 1 {
		t.Fatalf("ожидали ответ на callback, получили %d запросов", env.bot.requests)
	}
	if len(env.handler.wizards) != 0 {
		t.Fatal("мастер не должен запускаться для не-админа")
	}
}

func TestWizardCreatesScenario(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	steps := []telegram.Update{
		adminText("/admin"),
		adminPress(adminPrefix + "add"),
		adminPress(adminPrefix + "wiz:" + string(domain.TriggerContains)),
		adminText("Цена"),
		adminText("Стрижка 1500 ₽"),
		adminPress(adminPrefix + "wiz:yes"),
		adminText("Записаться"),
		adminText("book"),
		adminPress(adminPrefix + "wiz:no"),
		adminPress(adminPrefix + "wiz:yes"),
		adminText("30"),
		adminPress(adminPrefix + "wiz:save"),
	}
	for _, upd := range steps {
		env.handler.HandleUpdate(ctx, upd)
	}
	if !strings.Contains(env.bot.last(), "создан") {
		t.Fatalf("ожидали подтверждение создания, получили %q", env.bot.last())
	}

	list, err := env.store.ListScenarios(ctx, false)
	if err != nil || len(list) != 1 {
		t.Fatalf("ожидали один сценарий, получили %d, %v", len(list), err)
	}
	sc := list[0]
	if sc.TriggerValue != "Цена" || sc.ResponseText != "Стрижка 1500 ₽" || !sc.Active {
		t.Fatalf("неожиданный сценарий: %+v", sc)
	}
	if len(sc.Buttons) != 1 || sc.Buttons[0].Token != "book" || sc.ReminderDelayMinutes() != 30 {
		t.Fatalf("неожиданные кнопки или напоминание: %+v", sc)
	}
	if len(env.handler.wizards) != 0 {
		t.Fatal("сессия мастера должна быть закрыта")
	}
}

func TestWizardRejectsBadInput(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.handler.HandleUpdate(ctx, adminPress(adminPrefix+"add"))
	env.handler.HandleUpdate(ctx, adminPress(adminPrefix+"wiz:regex"))
	if len(env.handler.wizards) != 1 {
		t.Fatal("сессия должна остаться активной")
	}
	if !strings.Contains(env.bot.last(), "Шаг 1") {
		t.Fatalf("ожидали повтор первого шага, получили %q", env.bot.last())
	}

	env.handler.HandleUpdate(ctx, adminText("/cancel"))
	if len(env.handler.wizards) != 0 {
		t.Fatal("/cancel должен сбрасывать мастер")
	}
}

func TestEditToggleDelete(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	scID, err := env.store.CreateScenario(ctx, domain.ScenarioDraft{
		TriggerKind:  domain.TriggerExact,
		TriggerValue: "привет",
		ResponseText: "Здравствуйте",
	})
	if err != nil {
		t.Fatalf("создание: %v", err)
	}
	id := itoa(scID)

	env.handler.HandleUpdate(ctx, adminPress(adminPrefix+"field:"+id+":response"))
	env.handler.HandleUpdate(ctx, adminText("Добрый день!"))
	got, _ := env.store.GetScenario(ctx, scID)
	if got.ResponseText != "Добрый день!" || got.TriggerValue != "привет" {
		t.Fatalf("ожидали изменение только ответа, получили %+v", got)
	}

	env.handler.HandleUpdate(ctx, adminPress(adminPrefix+"toggle:"+id))
	got, _ = env.store.GetScenario(ctx, scID)
	if got.Active {
		t.Fatal("сценарий должен быть выключен")
	}

	env.handler.HandleUpdate(ctx, adminPress(adminPrefix+"delok:"+id))
	if _, err := env.store.GetScenario(ctx, scID); err == nil {
		t.Fatal("сценарий должен быть удалён")
	}
	env.handler.HandleUpdate(ctx, adminPress(adminPrefix+"view:"+id))
	if !strings.Contains(env.bot.last(), "не найден") {
		t.Fatalf("ожидали сообщение об отсутствии, получили %q", env.bot.last())
	}
}

func TestListPagination(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	for i := 0; i < scenarios.PageSize+1; i++ {
		if _, err := env.store.CreateScenario(ctx, domain.ScenarioDraft{
			TriggerKind:  domain.TriggerContains,
			TriggerValue: "слово" + itoa(int64(i)),
			ResponseText: "ответ",
		}); err != nil {
			t.Fatalf("создание: %v", err)
		}
	}
	env.handler.HandleUpdate(ctx, adminPress(adminPrefix+"list:0"))
	if !strings.Contains(env.bot.last(), "страница 1 из 2") {
		t.Fatalf("неожиданный список: %q", env.bot.last())
	}
	markup := env.bot.markups[len(env.bot.markups)-1]
	if markup == nil || len(markup.InlineKeyboard) != scenarios.PageSize+2 {
		t.Fatalf("ожидали %d строк клавиатуры", scenarios.PageSize+2)
	}
}

func TestBusinessMessageTriggersReply(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	if _, err := env.store.CreateScenario(ctx, domain.ScenarioDraft{
		TriggerKind:  domain.TriggerContains,
		TriggerValue: "Расписание",
		ResponseText: "Пн-Пт 10:00-20:00",
	}); err != nil {
		t.Fatalf("создание: %v", err)
	}
	env.handler.HandleUpdate(ctx, telegram.Update{BusinessMessage: &telegram.BusinessMessage{
		Message: tgbotapi.Message{
			MessageID: 9,
			Chat:      &tgbotapi.Chat{ID: 77},
			From:      &tgbotapi.User{ID: 77},
			Text:      "Какое у вас расписание?",
		},
		BusinessConnectionID: "bc-1",
	}})
	if len(env.sent.sent) != 1 {
		t.Fatalf("ожидали один ответ, получили %d", len(env.sent.sent))
	}
	msg := env.sent.sent[0]
	if msg.ChatID != 77 || msg.ConnectionID != "bc-1" || msg.Text != "Пн-Пт 10:00-20:00" {
		t.Fatalf("неожиданный ответ: %+v", msg)
	}
}

func TestBusinessCallbackAnswers(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	if _, err := env.store.CreateScenario(ctx, domain.ScenarioDraft{
		TriggerKind:  domain.TriggerCallback,
		TriggerValue: "slots",
		ResponseText: "Свободно в 10:00",
	}); err != nil {
		t.Fatalf("создание: %v", err)
	}
	press := func(connectionID, data string) {
		env.handler.HandleUpdate(ctx, telegram.Update{CallbackQuery: &telegram.CallbackQuery{
			ID:   "cb-" + data,
			From: &tgbotapi.User{ID: 77},
			Message: &telegram.BusinessMessage{
				Message:              tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 77}},
				BusinessConnectionID: connectionID,
			},
			Data: data,
		}})
	}

	press("bc-1", "slots")
	press("", "slots")
	press("bc-1", "unknown")

	want := []string{"✅", "Ошибка: не найден business_connection_id", "Сценарий не найден"}
	if len(env.bot.answers) != len(want) {
		t.Fatalf("ожидали %d ответа на нажатия, получили %v", len(want), env.bot.answers)
	}
	for i := range want {
		if env.bot.answers[i] != want[i] {
			t.Fatalf("ответ %d: ожидали %q, получили %q", i, want[i], env.bot.answers[i])
		}
	}
	if len(env.sent.sent) != 1 || env.sent.sent[0].ConnectionID != "bc-1" {
		t.Fatalf("ожидали одну отправку через bc-1, получили %+v", env.sent.sent)
	}
}

func TestAdminLongCardKeepsMarkupAsText(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	id, err := env.store.CreateScenario(ctx, domain.ScenarioDraft{
		TriggerKind:  domain.TriggerExact,
		TriggerValue: "прайс",
		ResponseText: "<b>" + strings.Repeat("x", 5000) + "</b>",
	})
	if err != nil {
		t.Fatalf("создание: %v", err)
	}
	env.handler.HandleUpdate(ctx, adminPress(adminPrefix+"view:"+itoa(id)))

	if len(env.bot.texts) < 2 {
		t.Fatalf("длинная карточка должна уйти несколькими сообщениями, получили %d", len(env.bot.texts))
	}
	opened := 0
	for _, text := range env.bot.texts {
		opened += strings.Count(text, "<b>")
	}
	if opened != 1 {
		t.Fatalf("текст админки не должен дополняться тегами, нашли %d открывающих", opened)
	}
}

func TestBusinessConnectionIsStored(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	env.handler.HandleUpdate(ctx, telegram.Update{BusinessConnection: &telegram.BusinessConnection{
		ID:        "bc-2",
		User:      tgbotapi.User{ID: 8},
		CanReply:  true,
		IsEnabled: true,
	}})
	conn, err := env.store.GetConnection(ctx, "bc-2")
	if err != nil || conn.UserID != 8 || !conn.CanReply {
		t.Fatalf("подключение не сохранено: %+v, %v", conn, err)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
