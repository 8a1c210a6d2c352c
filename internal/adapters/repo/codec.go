package repo

import (
	"encoding/json"
	"fmt"

	"github.com/evil-zenix/business-bot-project/internal/domain"
)

func encodeButtons(buttons []domain.Button) ([]byte, error) {
	if len(buttons) == 0 {
		return []byte("[]"), nil
	}
	data, err := json.Marshal(buttons)
	if err != nil {
		return nil, fmt.Errorf("кодирование кнопок: %w", err)
	}
	return data, nil
}

func decodeButtons(raw []byte) ([]domain.Button, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var buttons []domain.Button
	if err := json.Unmarshal(raw, &buttons); err != nil {
		return nil, fmt.Errorf("разбор кнопок: %w", err)
	}
	if len(buttons) == 0 {
		return nil, nil
	}
	return buttons, nil
}

// patchArgs раскладывает патч в аргументы COALESCE: nil оставляет столбец без изменений.
type patchArgs struct {
	kind    any
	value   any
	text    any
	buttons any
	delay   any
}

func newPatchArgs(patch domain.ScenarioPatch) (patchArgs, error) {
	var args patchArgs
	if patch.TriggerKind != nil {
		args.kind = string(*patch.TriggerKind)
	}
	if patch.TriggerValue != nil {
		args.value = *patch.TriggerValue
	}
	if patch.ResponseText != nil {
		args.text = *patch.ResponseText
	}
	if patch.Buttons != nil {
		data, err := encodeButtons(*patch.Buttons)
		if err != nil {
			return patchArgs{}, err
		}
		args.buttons = string(data)
	}
	if patch.ReminderDelay != nil {
		args.delay = *patch.ReminderDelay
	}
	return args, nil
}

func encodeJob(job domain.ReminderJob) ([]byte, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("кодирование задачи напоминания: %w", err)
	}
	return data, nil
}

func decodeJob(raw []byte) (domain.ReminderJob, error) {
	var job domain.ReminderJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return domain.ReminderJob{}, fmt.Errorf("разбор задачи напоминания: %w", err)
	}
	return job, nil
}

func encodeMetadata(metadata map[string]any) []byte {
	if metadata == nil {
		return nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil
	}
	return data
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &domain.StoreError{Op: op, Err: err}
}
