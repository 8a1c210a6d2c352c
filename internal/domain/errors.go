package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound возвращается, если сценарий или подключение отсутствует.
	ErrNotFound = errors.New("not found")
	// ErrValidation объединяет ошибки валидации, см. ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrNoConnection возвращается, если событие пришло без business_connection_id и ответить некуда.
	ErrNoConnection = errors.New("business connection id is missing")
)

// ValidationError описывает нарушение ограничений данных сценария.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Is позволяет сравнивать с ErrValidation через errors.Is.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// DispatchError оборачивает ошибку доставки сообщения в чат.
type DispatchError struct {
	ChatID int64
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to chat %d: %v", e.ChatID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// StoreError оборачивает ошибку хранилища сценариев.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
