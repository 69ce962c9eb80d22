// Package model содержит доменные типы конвейера.
package model

import (
	"fmt"
	"strconv"
	"time"
)

// Member - одно изображение группы.
type Member struct {
	// ID - идентификатор поста.
	ID int64

	// URL - ссылка на исходник максимального разрешения.
	URL string

	// Score - рейтинг поста.
	Score int64
}

// Key возвращает ключ записи дедупликации для участника.
func (m Member) Key() string {
	return DedupKey(m.ID)
}

// ImageGroup - канонический пост и его дочерние посты, доставляемые как одно целое.
type ImageGroup struct {
	// ID - идентификатор канонического (родительского) поста.
	ID int64

	// Score - максимальный рейтинг среди участников.
	Score int64

	// Members - участники: канонический пост первым, затем дочерние в порядке документа.
	Members []Member
}

// Keys возвращает ключи дедупликации всех участников в порядке группы.
func (g *ImageGroup) Keys() []string {
	keys := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		keys = append(keys, m.Key())
	}
	return keys
}

// Contains проверяет, входит ли пост в группу.
func (g *ImageGroup) Contains(id int64) bool {
	for _, m := range g.Members {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Validate проверяет инварианты группы.
func (g *ImageGroup) Validate() error {
	if len(g.Members) == 0 {
		return fmt.Errorf("группа %d пуста", g.ID)
	}
	if g.Members[0].ID != g.ID {
		return fmt.Errorf("группа %d: первым должен быть канонический пост, получен %d", g.ID, g.Members[0].ID)
	}

	seen := make(map[int64]struct{}, len(g.Members))
	var maxScore int64
	for i, m := range g.Members {
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("группа %d: повторяющийся участник %d", g.ID, m.ID)
		}
		seen[m.ID] = struct{}{}
		if m.URL == "" {
			return fmt.Errorf("группа %d: у участника %d нет ссылки", g.ID, m.ID)
		}
		if i == 0 || m.Score > maxScore {
			maxScore = m.Score
		}
	}
	if g.Score != maxScore {
		return fmt.Errorf("группа %d: рейтинг %d не равен максимуму участников %d", g.ID, g.Score, maxScore)
	}
	return nil
}

// DedupKey возвращает ключ записи дедупликации для поста.
func DedupKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// CycleReport - итог одного цикла.
type CycleReport struct {
	// ID - идентификатор цикла для логов.
	ID string `json:"id"`

	// StartedAt - время начала.
	StartedAt time.Time `json:"started_at"`

	// Duration - длительность.
	Duration time.Duration `json:"duration"`

	// Candidates - уникальные кандидаты из всех листингов.
	Candidates int `json:"candidates"`

	// AlreadySeen - кандидаты, пропущенные по записи дедупликации до разрешения группы.
	AlreadySeen int `json:"already_seen"`

	// ResolveFailed - кандидаты, для которых не удалось разрешить группу.
	ResolveFailed int `json:"resolve_failed"`

	// BelowThreshold - группы с рейтингом ниже порога.
	BelowThreshold int `json:"below_threshold"`

	// Duplicates - группы, все участники которых уже доставлялись.
	Duplicates int `json:"duplicates"`

	// Dispatched - отправленные в обработку группы.
	Dispatched int `json:"dispatched"`

	// Evicted - удалённые при очистке записи.
	Evicted int64 `json:"evicted"`

	// Err - причина досрочного завершения цикла.
	Err string `json:"error,omitempty"`
}
