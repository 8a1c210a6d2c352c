package domain

import (
	"strings"
	"time"
)

// TriggerKind определяет, как сценарий сопоставляется с входящим сообщением.
type TriggerKind string

const (
	// TriggerExact срабатывает при точном совпадении текста без учёта регистра.
	TriggerExact TriggerKind = "exact"
	// TriggerContains срабатывает, если текст содержит триггер.
	TriggerContains TriggerKind = "contains"
	// TriggerCallback срабатывает на нажатие inline-кнопки с этим токеном.
	TriggerCallback TriggerKind = "callback"
)

// Valid сообщает, известен ли тип триггера.
func (k TriggerKind) Valid() bool {
	switch k {
	case TriggerExact, TriggerContains, TriggerCallback:
		return true
	}
	return false
}

// Title возвращает человекочитаемое название типа.
func (k TriggerKind) Title() string {
	switch k {
	case TriggerExact:
		return "Точное совпадение"
	case TriggerContains:
		return "Содержит текст"
	case TriggerCallback:
		return "Нажатие кнопки"
	}
	return string(k)
}

// Button описывает inline-кнопку ответа. JSON-теги совпадают с форматом Bot API.
type Button struct {
	Label string `json:"text"`
	Token string `json:"callback_data"`
}

// Reminder описывает отложенное повторное сообщение.
type Reminder struct {
	DelayMinutes int
}

// Scenario описывает правило автоответа.
type Scenario struct {
	ID           int64
	TriggerKind  TriggerKind
	TriggerValue string
	ResponseText string
	Buttons      []Button
	Reminder     *Reminder
	Active       bool
	CreatedAt    time.Time
}

// HasReminder сообщает, нужно ли планировать напоминание после ответа.
func (s Scenario) HasReminder() bool {
	return s.Reminder != nil && s.Reminder.DelayMinutes > 0
}

// ScenarioDraft содержит данные для создания сценария.
type ScenarioDraft struct {
	TriggerKind  TriggerKind
	TriggerValue string
	ResponseText string
	Buttons      []Button
	Reminder     *Reminder
}

// Validate проверяет черновик перед сохранением.
func (d ScenarioDraft) Validate() error {
	if !d.TriggerKind.Valid() {
		return invalid("trigger_kind", "unknown trigger kind "+string(d.TriggerKind))
	}
	if strings.TrimSpace(d.TriggerValue) == "" {
		return invalid("trigger_value", "must not be empty")
	}
	if strings.TrimSpace(d.ResponseText) == "" {
		return invalid("response_text", "must not be empty")
	}
	if err := ValidateButtons(d.Buttons); err != nil {
		return err
	}
	if d.Reminder != nil && d.Reminder.DelayMinutes <= 0 {
		return invalid("reminder_delay", "must be positive")
	}
	return nil
}

// ValidateButtons проверяет, что у каждой кнопки есть подпись и токен.
func ValidateButtons(buttons []Button) error {
	for _, b := range buttons {
		if strings.TrimSpace(b.Label) == "" {
			return invalid("buttons", "button label must not be empty")
		}
		if strings.TrimSpace(b.Token) == "" {
			return invalid("buttons", "button token must not be empty")
		}
	}
	return nil
}

// ScenarioPatch описывает частичное обновление сценария. nil означает «не менять».
// Buttons с пустым срезом очищает клавиатуру, ReminderDelay = 0 отключает напоминание.
type ScenarioPatch struct {
	TriggerKind   *TriggerKind
	TriggerValue  *string
	ResponseText  *string
	Buttons       *[]Button
	ReminderDelay *int
}

// IsEmpty сообщает, что патч ничего не меняет.
func (p ScenarioPatch) IsEmpty() bool {
	return p.TriggerKind == nil && p.TriggerValue == nil && p.ResponseText == nil &&
		p.Buttons == nil && p.ReminderDelay == nil
}

// Validate проверяет заданные поля патча.
func (p ScenarioPatch) Validate() error {
	if p.TriggerKind != nil && !p.TriggerKind.Valid() {
		return invalid("trigger_kind", "unknown trigger kind "+string(*p.TriggerKind))
	}
	if p.TriggerValue != nil && strings.TrimSpace(*p.TriggerValue) == "" {
		return invalid("trigger_value", "must not be empty")
	}
	if p.ResponseText != nil && strings.TrimSpace(*p.ResponseText) == "" {
		return invalid("response_text", "must not be empty")
	}
	if p.Buttons != nil {
		if err := ValidateButtons(*p.Buttons); err != nil {
			return err
		}
	}
	if p.ReminderDelay != nil && *p.ReminderDelay < 0 {
		return invalid("reminder_delay", "must not be negative")
	}
	return nil
}

// Apply возвращает копию сценария с применёнными полями патча.
func (p ScenarioPatch) Apply(s Scenario) Scenario {
	if p.TriggerKind != nil {
		s.TriggerKind = *p.TriggerKind
	}
	if p.TriggerValue != nil {
		s.TriggerValue = *p.TriggerValue
	}
	if p.ResponseText != nil {
		s.ResponseText = *p.ResponseText
	}
	if p.Buttons != nil {
		s.Buttons = append([]Button(nil), (*p.Buttons)...)
	}
	if p.ReminderDelay != nil {
		if *p.ReminderDelay == 0 {
			s.Reminder = nil
		} else {
			s.Reminder = &Reminder{DelayMinutes: *p.ReminderDelay}
		}
	}
	return s
}

// ReminderDelayMinutes возвращает задержку напоминания или 0, если его нет.
func (s Scenario) ReminderDelayMinutes() int {
	if s.Reminder == nil {
		return 0
	}
	return s.Reminder.DelayMinutes
}

// ReminderFromMinutes превращает хранимое значение задержки в Reminder.
func ReminderFromMinutes(minutes int) *Reminder {
	if minutes <= 0 {
		return nil
	}
	return &Reminder{DelayMinutes: minutes}
}
