package wizard

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/evil-zenix/business-bot-project/internal/domain"
)

// Field обозначает поле сценария, доступное для редактирования.
type Field string

const (
	FieldTrigger  Field = "trigger"
	FieldResponse Field = "response"
	FieldButtons  Field = "buttons"
	FieldReminder Field = "reminder"
)

// ErrBadButtons возвращается, если клавиатуру не удалось разобрать.
var ErrBadButtons = errors.New(`ожидается JSON вида [{"text":"Кнопка","callback_data":"token"}] или "none"`)

// Fields перечисляет редактируемые поля в порядке показа.
func Fields() []Choice {
	return []Choice{
		{Label: "🎯 Триггер", Value: string(FieldTrigger)},
		{Label: "💬 Ответ", Value: string(FieldResponse)},
		{Label: "⌨️ Кнопки", Value: string(FieldButtons)},
		{Label: "⏰ Напоминание", Value: string(FieldReminder)},
	}
}

// EditPrompt возвращает подсказку для ввода нового значения поля.
func EditPrompt(field Field) string {
	switch field {
	case FieldTrigger:
		return "Введите новый текст триггера:"
	case FieldResponse:
		return "Введите новый текст ответа (поддерживается HTML):"
	case FieldButtons:
		return `Отправьте кнопки в JSON: [{"text":"Кнопка","callback_data":"token"}]. Чтобы убрать кнопки, отправьте none.`
	case FieldReminder:
		return "Введите задержку напоминания в минутах. 0 отключает напоминание."
	}
	return ""
}

// ParseEdit превращает ввод администратора в патч для одного поля.
func ParseEdit(field Field, input string) (domain.ScenarioPatch, error) {
	input = strings.TrimSpace(input)
	var patch domain.ScenarioPatch
	switch field {
	case FieldTrigger:
		if input == "" {
			return patch, ErrEmptyInput
		}
		patch.TriggerValue = &input
	case FieldResponse:
		if input == "" {
			return patch, ErrEmptyInput
		}
		patch.ResponseText = &input
	case FieldButtons:
		buttons, err := ParseButtons(input)
		if err != nil {
			return patch, err
		}
		patch.Buttons = &buttons
	case FieldReminder:
		minutes, err := strconv.Atoi(input)
		if err != nil || minutes < 0 {
			return patch, ErrBadDelay
		}
		patch.ReminderDelay = &minutes
	default:
		return patch, ErrUnknownChoice
	}
	return patch, patch.Validate()
}

// ParseButtons разбирает клавиатуру из JSON. "none" и "нет" означают пустую клавиатуру.
func ParseButtons(input string) ([]domain.Button, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "none", "нет", "":
		return []domain.Button{}, nil
	}
	var buttons []domain.Button
	if err := json.Unmarshal([]byte(input), &buttons); err != nil {
		return nil, ErrBadButtons
	}
	if err := domain.ValidateButtons(buttons); err != nil {
		return nil, err
	}
	return buttons, nil
}
