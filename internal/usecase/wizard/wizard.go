package wizard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/evil-zenix/business-bot-project/internal/domain"
)

var (
	// ErrUnknownChoice возвращается, если ввод не совпал ни с одним вариантом шага.
	ErrUnknownChoice = errors.New("выберите один из предложенных вариантов")
	// ErrEmptyInput возвращается на пустой ввод там, где нужно значение.
	ErrEmptyInput = errors.New("значение не может быть пустым")
	// ErrBadDelay возвращается, если задержка не является целым числом минут.
	ErrBadDelay = errors.New("введите целое число минут больше нуля")
	// ErrFinished возвращается при вводе в завершённую сессию.
	ErrFinished = errors.New("мастер уже завершён")
)

// Step обозначает состояние мастера создания сценария.
type Step string

const (
	StepKind          Step = "trigger_kind"
	StepValue         Step = "trigger_value"
	StepResponse      Step = "response_text"
	StepAskButtons    Step = "ask_buttons"
	StepButtonLabel   Step = "button_label"
	StepButtonToken   Step = "button_token"
	StepMoreButtons   Step = "more_buttons"
	StepAskReminder   Step = "ask_reminder"
	StepReminderDelay Step = "reminder_delay"
	StepConfirm       Step = "confirm"
	StepDone          Step = "done"
)

// Значения вариантов, которые адаптер передаёт как ввод.
const (
	ChoiceYes  = "yes"
	ChoiceNo   = "no"
	ChoiceSave = "save"
)

// Choice описывает вариант ответа, который адаптер показывает кнопкой.
type Choice struct {
	Label string
	Value string
}

// Prompt содержит вопрос текущего шага.
type Prompt struct {
	Text    string
	Choices []Choice
}

// Session хранит прогресс одного администратора.
type Session struct {
	Step  Step
	Draft domain.ScenarioDraft
	label string
}

// NewSession начинает мастер с выбора типа триггера.
func NewSession() *Session {
	return &Session{Step: StepKind}
}

// Done сообщает, что черновик подтверждён и готов к сохранению.
func (s *Session) Done() bool {
	return s.Step == StepDone
}

// Prompt возвращает вопрос текущего шага.
func (s *Session) Prompt() Prompt {
	t, ok := steps[s.Step]
	if !ok {
		return Prompt{}
	}
	return t.prompt(s)
}

// Advance принимает ввод и переводит сессию по таблице переходов.
// При ошибке шаг не меняется и возвращается тот же вопрос.
func (s *Session) Advance(input string) (Prompt, error) {
	t, ok := steps[s.Step]
	if !ok {
		return Prompt{}, ErrFinished
	}
	next, err := t.accept(s, strings.TrimSpace(input))
	if err != nil {
		return t.prompt(s), err
	}
	s.Step = next
	return s.Prompt(), nil
}

type transition struct {
	prompt func(s *Session) Prompt
	accept func(s *Session, input string) (Step, error)
}

var yesNo = []Choice{{Label: "✅ Да", Value: ChoiceYes}, {Label: "❌ Нет", Value: ChoiceNo}}

func fixed(text string, choices ...Choice) func(*Session) Prompt {
	return func(*Session) Prompt { return Prompt{Text: text, Choices: choices} }
}

func branch(input string, onYes, onNo Step) (Step, error) {
	switch input {
	case ChoiceYes:
		return onYes, nil
	case ChoiceNo:
		return onNo, nil
	}
	return "", ErrUnknownChoice
}

var steps map[Step]transition

func init() {
	steps = map[Step]transition{
		StepKind: {
			prompt: fixed("Шаг 1. Выберите тип триггера:",
				Choice{Label: domain.TriggerExact.Title(), Value: string(domain.TriggerExact)},
				Choice{Label: domain.TriggerContains.Title(), Value: string(domain.TriggerContains)},
				Choice{Label: domain.TriggerCallback.Title(), Value: string(domain.TriggerCallback)},
			),
			accept: func(s *Session, input string) (Step, error) {
				kind := domain.TriggerKind(input)
				if !kind.Valid() {
					return "", ErrUnknownChoice
				}
				s.Draft.TriggerKind = kind
				return StepValue, nil
			},
		},
		StepValue: {
			prompt: func(s *Session) Prompt {
				if s.Draft.TriggerKind == domain.TriggerCallback {
					return Prompt{Text: "Шаг 2. Введите callback_data кнопки, на которую должен срабатывать сценарий:"}
				}
				return Prompt{Text: "Шаг 2. Введите текст триггера:"}
			},
			accept: func(s *Session, input string) (Step, error) {
				if input == "" {
					return "", ErrEmptyInput
				}
				s.Draft.TriggerValue = input
				return StepResponse, nil
			},
		},
		StepResponse: {
			prompt: fixed("Шаг 3. Введите текст ответа (поддерживается HTML):"),
			accept: func(s *Session, input string) (Step, error) {
				if input == "" {
					return "", ErrEmptyInput
				}
				s.Draft.ResponseText = input
				return StepAskButtons, nil
			},
		},
		StepAskButtons: {
			prompt: fixed("Добавить inline-кнопки к ответу?", yesNo...),
			accept: func(s *Session, input string) (Step, error) {
				return branch(input, StepButtonLabel, StepAskReminder)
			},
		},
		StepButtonLabel: {
			prompt: func(s *Session) Prompt {
				return Prompt{Text: fmt.Sprintf("Введите текст кнопки №%d:", len(s.Draft.Buttons)+1)}
			},
			accept: func(s *Session, input string) (Step, error) {
				if input == "" {
					return "", ErrEmptyInput
				}
				s.label = input
				return StepButtonToken, nil
			},
		},
		StepButtonToken: {
			prompt: func(s *Session) Prompt {
				return Prompt{Text: fmt.Sprintf("Введите callback_data для кнопки «%s»:", s.label)}
			},
			accept: func(s *Session, input string) (Step, error) {
				if input == "" {
					return "", ErrEmptyInput
				}
				s.Draft.Buttons = append(s.Draft.Buttons, domain.Button{Label: s.label, Token: input})
				s.label = ""
				return StepMoreButtons, nil
			},
		},
		StepMoreButtons: {
			prompt: fixed("Добавить ещё одну кнопку?", yesNo...),
			accept: func(s *Session, input string) (Step, error) {
				return branch(input, StepButtonLabel, StepAskReminder)
			},
		},
		StepAskReminder: {
			prompt: fixed("Отправлять повторное напоминание после ответа?", yesNo...),
			accept: func(s *Session, input string) (Step, error) {
				if input == ChoiceNo {
					s.Draft.Reminder = nil
				}
				return branch(input, StepReminderDelay, StepConfirm)
			},
		},
		StepReminderDelay: {
			prompt: fixed("Через сколько минут отправить напоминание?"),
			accept: func(s *Session, input string) (Step, error) {
				minutes, err := strconv.Atoi(input)
				if err != nil || minutes <= 0 {
					return "", ErrBadDelay
				}
				s.Draft.Reminder = &domain.Reminder{DelayMinutes: minutes}
				return StepConfirm, nil
			},
		},
		StepConfirm: {
			prompt: func(s *Session) Prompt {
				return Prompt{
					Text:    "Проверьте сценарий:\n\n" + FormatDraft(s.Draft),
					Choices: []Choice{{Label: "💾 Сохранить", Value: ChoiceSave}},
				}
			},
			accept: func(s *Session, input string) (Step, error) {
				if input != ChoiceSave {
					return "", ErrUnknownChoice
				}
				if err := s.Draft.Validate(); err != nil {
					return "", err
				}
				return StepDone, nil
			},
		},
	}
}

// FormatDraft описывает черновик для подтверждения.
func FormatDraft(d domain.ScenarioDraft) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Тип: %s\n", d.TriggerKind.Title())
	fmt.Fprintf(&b, "Триггер: %s\n", d.TriggerValue)
	fmt.Fprintf(&b, "Ответ:\n%s\n", d.ResponseText)
	if len(d.Buttons) > 0 {
		b.WriteString("Кнопки:\n")
		for _, btn := range d.Buttons {
			fmt.Fprintf(&b, "• %s → %s\n", btn.Label, btn.Token)
		}
	}
	if d.Reminder != nil {
		fmt.Fprintf(&b, "Напоминание: через %d мин.\n", d.Reminder.DelayMinutes)
	} else {
		b.WriteString("Напоминание: нет\n")
	}
	return b.String()
}
