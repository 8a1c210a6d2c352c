package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/evil-zenix/business-bot-project/internal/domain"
	"github.com/evil-zenix/business-bot-project/internal/usecase/scenarios"
	"github.com/evil-zenix/business-bot-project/internal/usecase/wizard"
)

const (
	adminPrefix   = "adm:"
	adminMenuText = "🛠 Админ-панель сценариев\n\nВыберите действие:"
)

func (h *Handler) handleAdminCallback(ctx context.Context, chatID, userID int64, data string) {
	action, arg, _ := strings.Cut(data, ":")
	switch action {
	case "menu":
		h.resetInput(userID)
		h.reply(chatID, adminMenuText, adminMenuKeyboard())
	case "exit":
		h.resetInput(userID)
		h.reply(chatID, "👋 Вы вышли из админ-панели. Вернуться: /admin", nil)
	case "cancel":
		h.resetInput(userID)
		h.reply(chatID, "Действие отменено.", adminMenuKeyboard())
	case "add":
		h.startWizard(chatID, userID)
	case "wiz":
		h.advanceWizard(ctx, chatID, userID, arg)
	case "list":
		h.showList(ctx, chatID, int(parseID(arg)))
	case "view":
		h.showScenario(ctx, chatID, parseID(arg))
	case "toggle":
		sc, err := h.scenarios.Toggle(ctx, parseID(arg))
		if err != nil {
			h.replyError(chatID, err)
			return
		}
		h.reply(chatID, scenarioCard(sc), scenarioKeyboard(sc))
	case "edit":
		h.reply(chatID, "Что изменить?", fieldsKeyboard(parseID(arg)))
	case "field":
		idRaw, field, _ := strings.Cut(arg, ":")
		h.mu.Lock()
		delete(h.wizards, userID)
		h.edits[userID] = pendingEdit{ScenarioID: parseID(idRaw), Field: wizard.Field(field)}
		h.mu.Unlock()
		h.reply(chatID, wizard.EditPrompt(wizard.Field(field)), cancelKeyboard())
	case "del":
		id := parseID(arg)
		h.reply(chatID, fmt.Sprintf("Удалить сценарий #%d? Это действие необратимо.", id), deleteConfirmKeyboard(id))
	case "delok":
		id := parseID(arg)
		if err := h.scenarios.Delete(ctx, id); err != nil {
			h.replyError(chatID, err)
			return
		}
		h.reply(chatID, fmt.Sprintf("🗑 Сценарий #%d удалён.", id), adminMenuKeyboard())
	default:
		h.reply(chatID, "Неизвестное действие.", adminMenuKeyboard())
	}
}

// handleAdminInput принимает текстовый ввод для мастера или редактирования.
func (h *Handler) handleAdminInput(ctx context.Context, chatID, userID int64, text string) bool {
	h.mu.Lock()
	_, inWizard := h.wizards[userID]
	edit, inEdit := h.edits[userID]
	h.mu.Unlock()

	switch {
	case inWizard:
		h.advanceWizard(ctx, chatID, userID, text)
		return true
	case inEdit:
		h.applyEdit(ctx, chatID, userID, edit, text)
		return true
	}
	return false
}

func (h *Handler) startWizard(chatID, userID int64) {
	sess := wizard.NewSession()
	h.mu.Lock()
	delete(h.edits, userID)
	h.wizards[userID] = sess
	h.mu.Unlock()
	h.replyPrompt(chatID, sess.Prompt())
}

func (h *Handler) advanceWizard(ctx context.Context, chatID, userID int64, input string) {
	h.mu.Lock()
	sess, ok := h.wizards[userID]
	h.mu.Unlock()
	if !ok {
		h.reply(chatID, "Мастер не запущен.", adminMenuKeyboard())
		return
	}
	prompt, err := sess.Advance(input)
	if err != nil {
		h.reply(chatID, "⚠️ "+inputErrorText(err), nil)
		h.replyPrompt(chatID, prompt)
		return
	}
	if !sess.Done() {
		h.replyPrompt(chatID, prompt)
		return
	}

	h.mu.Lock()
	delete(h.wizards, userID)
	h.mu.Unlock()
	sc, err := h.scenarios.Create(ctx, sess.Draft)
	if err != nil {
		h.log.Error().Err(err).Int64("admin", userID).Msg("bot: не удалось сохранить сценарий")
		h.replyError(chatID, err)
		return
	}
	h.reply(chatID, fmt.Sprintf("✅ Сценарий #%d создан.\n\n%s", sc.ID, scenarioCard(sc)), adminMenuKeyboard())
}

func (h *Handler) applyEdit(ctx context.Context, chatID, userID int64, edit pendingEdit, input string) {
	patch, err := wizard.ParseEdit(edit.Field, input)
	if err != nil {
		h.reply(chatID, "⚠️ "+inputErrorText(err)+"\n\n"+wizard.EditPrompt(edit.Field), cancelKeyboard())
		return
	}
	h.mu.Lock()
	delete(h.edits, userID)
	h.mu.Unlock()
	sc, _, err := h.scenarios.Update(ctx, edit.ScenarioID, patch)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	h.reply(chatID, "✏️ Сценарий обновлён.\n\n"+scenarioCard(sc), scenarioKeyboard(sc))
}

func (h *Handler) showList(ctx context.Context, chatID int64, index int) {
	page, err := h.scenarios.ListPage(ctx, index)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	if page.Total == 0 {
		h.reply(chatID, "Сценариев пока нет.", adminMenuKeyboard())
		return
	}
	pages := (page.Total + scenarios.PageSize - 1) / scenarios.PageSize
	var b strings.Builder
	fmt.Fprintf(&b, "📋 Сценарии (страница %d из %d):\n\n", page.Index+1, pages)
	for _, sc := range page.Items {
		fmt.Fprintf(&b, "%s #%d · %s · %s\n", activeMark(sc.Active), sc.ID, sc.TriggerKind.Title(), shorten(sc.TriggerValue, 30))
	}
	h.reply(chatID, b.String(), listKeyboard(page))
}

func (h *Handler) showScenario(ctx context.Context, chatID, id int64) {
	sc, err := h.scenarios.Get(ctx, id)
	if err != nil {
		h.replyError(chatID, err)
		return
	}
	h.reply(chatID, scenarioCard(sc), scenarioKeyboard(sc))
}

func (h *Handler) resetInput(userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.wizards, userID)
	delete(h.edits, userID)
}

func (h *Handler) replyPrompt(chatID int64, p wizard.Prompt) {
	if p.Text == "" {
		return
	}
	h.reply(chatID, p.Text, promptKeyboard(p))
}

func (h *Handler) replyError(chatID int64, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.reply(chatID, "Сценарий не найден.", adminMenuKeyboard())
	case errors.Is(err, domain.ErrValidation):
		h.reply(chatID, "⚠️ "+err.Error(), adminMenuKeyboard())
	default:
		h.log.Error().Err(err).Int64("chat", chatID).Msg("bot: ошибка админ-панели")
		h.reply(chatID, "Произошла ошибка. Попробуйте позже.", adminMenuKeyboard())
	}
}

func inputErrorText(err error) string {
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		return fmt.Sprintf("Некорректное значение (%s): %s", vErr.Field, vErr.Reason)
	}
	return err.Error()
}

func scenarioCard(sc domain.Scenario) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Сценарий #%d %s\n", sc.ID, activeMark(sc.Active))
	fmt.Fprintf(&b, "Тип: %s\n", sc.TriggerKind.Title())
	fmt.Fprintf(&b, "Триггер: %s\n", sc.TriggerValue)
	fmt.Fprintf(&b, "Ответ:\n%s\n", sc.ResponseText)
	if len(sc.Buttons) > 0 {
		b.WriteString("Кнопки:\n")
		for _, btn := range sc.Buttons {
			fmt.Fprintf(&b, "• %s → %s\n", btn.Label, btn.Token)
		}
	}
	if sc.HasReminder() {
		fmt.Fprintf(&b, "Напоминание: через %d мин.\n", sc.Reminder.DelayMinutes)
	}
	fmt.Fprintf(&b, "Создан: %s", sc.CreatedAt.Format("02.01.2006 15:04"))
	return b.String()
}

func activeMark(active bool) string {
	if active {
		return "🟢"
	}
	return "🔴"
}

func shorten(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}

func adminMenuKeyboard() *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➕ Добавить сценарий", adminPrefix+"add"),
			tgbotapi.NewInlineKeyboardButtonData("📋 Список сценариев", adminPrefix+"list:0"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🚪 Выйти", adminPrefix+"exit"),
		),
	)
	return &markup
}

func cancelKeyboard() *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✖️ Отмена", adminPrefix+"cancel"),
	))
	return &markup
}

func promptKeyboard(p wizard.Prompt) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(p.Choices)+1)
	for _, c := range p.Choices {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(c.Label, adminPrefix+"wiz:"+c.Value)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✖️ Отмена", adminPrefix+"cancel")))
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func listKeyboard(page scenarios.Page) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(page.Items)+2)
	for _, sc := range page.Items {
		label := fmt.Sprintf("%s #%d %s", activeMark(sc.Active), sc.ID, shorten(sc.TriggerValue, 20))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("%sview:%d", adminPrefix, sc.ID))))
	}
	var nav []tgbotapi.InlineKeyboardButton
	if page.HasPrev() {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("◀️ Назад", fmt.Sprintf("%slist:%d", adminPrefix, page.Index-1)))
	}
	if page.HasNext() {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Вперёд ▶️", fmt.Sprintf("%slist:%d", adminPrefix, page.Index+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🏠 Меню", adminPrefix+"menu")))
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func scenarioKeyboard(sc domain.Scenario) *tgbotapi.InlineKeyboardMarkup {
	toggle := "⏸ Выключить"
	if !sc.Active {
		toggle = "▶️ Включить"
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(toggle, fmt.Sprintf("%stoggle:%d", adminPrefix, sc.ID)),
			tgbotapi.NewInlineKeyboardButtonData("✏️ Изменить", fmt.Sprintf("%sedit:%d", adminPrefix, sc.ID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить", fmt.Sprintf("%sdel:%d", adminPrefix, sc.ID)),
			tgbotapi.NewInlineKeyboardButtonData("📋 К списку", adminPrefix+"list:0"),
		),
	)
	return &markup
}

func fieldsKeyboard(id int64) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, 5)
	for _, f := range wizard.Fields() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(f.Label, fmt.Sprintf("%sfield:%d:%s", adminPrefix, id, f.Value)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("◀️ Назад", fmt.Sprintf("%sview:%d", adminPrefix, id))))
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func deleteConfirmKeyboard(id int64) *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Да, удалить", fmt.Sprintf("%sdelok:%d", adminPrefix, id)),
		tgbotapi.NewInlineKeyboardButtonData("✖️ Нет", fmt.Sprintf("%sview:%d", adminPrefix, id)),
	))
	return &markup
}
