package wizard

import (
	"errors"
	"strings"
	"testing"

	"github.com/evil-zenix/business-bot-project/internal/domain"
)

func advance(t *testing.T, s *Session, input string, want Step) Prompt {
	t.Helper()
	p, err := s.Advance(input)
	if err != nil {
		t.Fatalf("ввод %q: не ожидали ошибку: %v", input, err)
	}
	if s.Step != want {
		t.Fatalf("ввод %q: ожидали шаг %s, получили %s", input, want, s.Step)
	}
	return p
}

func TestWizardFullPath(t *testing.T) {
	s := NewSession()
	if len(s.Prompt().Choices) != 3 {
		t.Fatalf("первый шаг должен предлагать три типа, получили %+v", s.Prompt())
	}
	advance(t, s, "contains", StepValue)
	advance(t, s, "  запись ", StepResponse)
	advance(t, s, "<b>Записываем</b>", StepAskButtons)
	advance(t, s, ChoiceYes, StepButtonLabel)
	p := advance(t, s, "Время", StepButtonToken)
	if !strings.Contains(p.Text, "Время") {
		t.Fatalf("подсказка должна упоминать кнопку, получили %q", p.Text)
	}
	advance(t, s, "slots", StepMoreButtons)
	advance(t, s, ChoiceYes, StepButtonLabel)
	advance(t, s, "Цены", StepButtonToken)
	advance(t, s, "prices", StepMoreButtons)
	advance(t, s, ChoiceNo, StepAskReminder)
	advance(t, s, ChoiceYes, StepReminderDelay)
	p = advance(t, s, "45", StepConfirm)
	if !strings.Contains(p.Text, "через 45 мин") {
		t.Fatalf("подтверждение должно показывать напоминание, получили %q", p.Text)
	}
	advance(t, s, ChoiceSave, StepDone)
	if !s.Done() {
		t.Fatal("мастер должен быть завершён")
	}

	d := s.Draft
	if d.TriggerKind != domain.TriggerContains || d.TriggerValue != "запись" || d.ResponseText != "<b>Записываем</b>" {
		t.Fatalf("неожиданный черновик: %+v", d)
	}
	if len(d.Buttons) != 2 || d.Buttons[1] != (domain.Button{Label: "Цены", Token: "prices"}) {
		t.Fatalf("неожиданные кнопки: %+v", d.Buttons)
	}
	if d.Reminder == nil || d.Reminder.DelayMinutes != 45 {
		t.Fatalf("неожиданное напоминание: %+v", d.Reminder)
	}
	if _, err := s.Advance("ещё"); !errors.Is(err, ErrFinished) {
		t.Fatalf("ожидали ErrFinished, получили %v", err)
	}
}

func TestWizardShortPathAndInvalidInput(t *testing.T) {
	s := NewSession()
	if _, err := s.Advance("regex"); !errors.Is(err, ErrUnknownChoice) || s.Step != StepKind {
		t.Fatalf("неизвестный тип должен оставлять шаг, получили %v, %s", err, s.Step)
	}
	p := advance(t, s, "callback", StepValue)
	if !strings.Contains(p.Text, "callback_data") {
		t.Fatalf("для callback ожидали подсказку про callback_data, получили %q", p.Text)
	}
	if _, err := s.Advance("   "); !errors.Is(err, ErrEmptyInput) || s.Step != StepValue {
		t.Fatalf("пустое значение должно отклоняться, получили %v, %s", err, s.Step)
	}
	advance(t, s, "schedule_full", StepResponse)
	advance(t, s, "Полное расписание", StepAskButtons)
	advance(t, s, ChoiceNo, StepAskReminder)
	advance(t, s, ChoiceYes, StepReminderDelay)
	for _, bad := range []string{"0", "-3", "час"} {
		if _, err := s.Advance(bad); !errors.Is(err, ErrBadDelay) {
			t.Fatalf("задержка %q: ожидали ErrBadDelay, получили %v", bad, err)
		}
	}
	advance(t, s, "10", StepConfirm)
	if _, err := s.Advance("maybe"); !errors.Is(err, ErrUnknownChoice) {
		t.Fatalf("ожидали ErrUnknownChoice, получили %v", err)
	}
	advance(t, s, ChoiceSave, StepDone)
	if len(s.Draft.Buttons) != 0 {
		t.Fatalf("кнопок быть не должно: %+v", s.Draft.Buttons)
	}
}

func TestStepTableIsComplete(t *testing.T) {
	for _, step := range []Step{StepKind, StepValue, StepResponse, StepAskButtons, StepButtonLabel, StepButtonToken, StepMoreButtons, StepAskReminder, StepReminderDelay, StepConfirm} {
		tr, ok := steps[step]
		if !ok || tr.prompt == nil || tr.accept == nil {
			t.Fatalf("шаг %s не описан в таблице", step)
		}
	}
}

func TestParseEdit(t *testing.T) {
	patch, err := ParseEdit(FieldReminder, "0")
	if err != nil || patch.ReminderDelay == nil || *patch.ReminderDelay != 0 {
		t.Fatalf("0 должен отключать напоминание, получили %+v, %v", patch, err)
	}
	if _, err := ParseEdit(FieldReminder, "-1"); !errors.Is(err, ErrBadDelay) {
		t.Fatalf("ожидали ErrBadDelay, получили %v", err)
	}

	patch, err = ParseEdit(FieldButtons, "none")
	if err != nil || patch.Buttons == nil || len(*patch.Buttons) != 0 {
		t.Fatalf("none должен очищать кнопки, получили %+v, %v", patch, err)
	}
	patch, err = ParseEdit(FieldButtons, `[{"text":"Да","callback_data":"yes"}]`)
	if err != nil || len(*patch.Buttons) != 1 || (*patch.Buttons)[0].Token != "yes" {
		t.Fatalf("ожидали одну кнопку, получили %+v, %v", patch, err)
	}
	if _, err := ParseEdit(FieldButtons, "[{"); !errors.Is(err, ErrBadButtons) {
		t.Fatalf("ожидали ErrBadButtons, получили %v", err)
	}
	if _, err := ParseEdit(FieldButtons, `[{"text":"","callback_data":"x"}]`); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ожидали ошибку валидации, получили %v", err)
	}

	patch, err = ParseEdit(FieldTrigger, " цена ")
	if err != nil || *patch.TriggerValue != "цена" || patch.ResponseText != nil {
		t.Fatalf("ожидали патч только триггера, получили %+v, %v", patch, err)
	}
	if _, err := ParseEdit(FieldResponse, ""); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("ожидали ErrEmptyInput, получили %v", err)
	}
	if _, err := ParseEdit("color", "red"); !errors.Is(err, ErrUnknownChoice) {
		t.Fatalf("ожидали ErrUnknownChoice, получили %v", err)
	}
}
