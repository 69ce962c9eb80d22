// Package apperr содержит классификацию ошибок конвейера.
package apperr

import (
	"errors"
	"fmt"
)

// Виды ошибок. Сравнивать через errors.Is.
var (
	// ErrNetwork - сбой загрузки листинга, страницы поста или изображения.
	ErrNetwork = errors.New("network error")
	// ErrParse - страница имеет неожиданную структуру.
	ErrParse = errors.New("parse error")
	// ErrTransform - не удалось декодировать, уменьшить или закодировать изображение.
	ErrTransform = errors.New("transform error")
	// ErrDelivery - получатель не принял сообщение или вложение.
	ErrDelivery = errors.New("delivery error")
	// ErrStore - ошибка ввода-вывода хранилища дедупликации.
	ErrStore = errors.New("store error")
	// ErrConfig - некорректная конфигурация.
	ErrConfig = errors.New("config error")
)

// Error - ошибка с видом и названием операции.
type Error struct {
	// Kind - один из sentinel-видов выше.
	Kind error

	// Op - операция, в которой произошла ошибка (например, "source.fetch").
	Op string

	// Err - исходная причина.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сопоставляет ошибку с её видом.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// New создаёт ошибку заданного вида.
func New(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Network оборачивает сетевую ошибку.
func Network(op string, err error) error { return New(ErrNetwork, op, err) }

// Parse оборачивает ошибку разбора.
func Parse(op string, err error) error { return New(ErrParse, op, err) }

// Parsef создаёт ошибку разбора с форматированным сообщением.
func Parsef(op, format string, args ...interface{}) error {
	return New(ErrParse, op, fmt.Errorf(format, args...))
}

// Transform оборачивает ошибку перекодирования.
func Transform(op string, err error) error { return New(ErrTransform, op, err) }

// Delivery оборачивает ошибку доставки.
func Delivery(op string, err error) error { return New(ErrDelivery, op, err) }

// Store оборачивает ошибку хранилища.
func Store(op string, err error) error { return New(ErrStore, op, err) }

// Config создаёт ошибку конфигурации.
func Config(format string, args ...interface{}) error {
	return New(ErrConfig, "config", fmt.Errorf(format, args...))
}

// KindOf возвращает короткое имя вида ошибки для логов и метрик.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrParse):
		return "parse"
	case errors.Is(err, ErrTransform):
		return "transform"
	case errors.Is(err, ErrDelivery):
		return "delivery"
	case errors.Is(err, ErrStore):
		return "store"
	case errors.Is(err, ErrConfig):
		return "config"
	default:
		return "unknown"
	}
}
