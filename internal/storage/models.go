// Package storage содержит модели журнала доставки.
package storage

import (
	"context"
	"time"
)

// DeliveryStatus определяет итог обработки участника группы.
type DeliveryStatus string

const (
	// StatusOK - вложение доставлено.
	StatusOK DeliveryStatus = "ok"
	// StatusFailed - участник пропущен из-за ошибки.
	StatusFailed DeliveryStatus = "failed"
)

// Delivery - запись журнала об одном участнике.
type Delivery struct {
	// MemberID - id поста-участника.
	MemberID int64

	// GroupID - id канонического поста группы.
	GroupID int64

	// Status - итог.
	Status DeliveryStatus

	// Transformed - отправлен ли перекодированный файл (false - оригинал).
	Transformed bool

	// Error - сообщение об ошибке (если есть).
	Error string

	// FinishedAt - время завершения.
	FinishedAt time.Time
}

// DeliveryStats - сводка журнала.
type DeliveryStats struct {
	Total  int64
	OK     int64
	Failed int64
}

// Journal - необязательный журнал доставки. Реализуется SQLite-хранилищем.
type Journal interface {
	// RecordDelivery добавляет запись об участнике.
	RecordDelivery(ctx context.Context, d Delivery) error

	// DeliveryStats возвращает сводку.
	DeliveryStats(ctx context.Context) (DeliveryStats, error)
}

// JournalOf возвращает журнал хранилища или пустую реализацию.
func JournalOf(s DedupStore) Journal {
	if j, ok := s.(Journal); ok {
		return j
	}
	return nopJournal{}
}

type nopJournal struct{}

func (nopJournal) RecordDelivery(context.Context, Delivery) error { return nil }

func (nopJournal) DeliveryStats(context.Context) (DeliveryStats, error) {
	return DeliveryStats{}, nil
}
