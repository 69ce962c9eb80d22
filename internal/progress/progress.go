// Package progress предоставляет прогресс-бар для разового прогона конвейера.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Bar - прогресс-бар обработки групп.
// Общее количество заранее неизвестно: группы добавляются по мере отбора.
type Bar struct {
	// bar - внутренний progressbar.
	bar *progressbar.ProgressBar

	// mu защищает доступ к bar и счётчикам.
	mu sync.Mutex

	// disabled - флаг отключения прогресс-бара.
	disabled bool

	// total - количество групп, отправленных в обработку.
	total int64

	// delivered - групп, доставленных полностью.
	delivered int64

	// partial - групп, где часть участников не доставлена.
	partial int64

	// failed - групп без единого доставленного участника.
	failed int64

	// startTime - время начала.
	startTime time.Time

	// writer - куда выводить (по умолчанию os.Stderr).
	writer io.Writer
}

// Options содержит настройки для прогресс-бара.
type Options struct {
	// Description - описание задачи.
	Description string

	// Disabled - отключить прогресс-бар (только текстовый вывод).
	Disabled bool

	// Writer - куда выводить (по умолчанию os.Stderr).
	Writer io.Writer
}

// New создаёт новый прогресс-бар. До первого AddTotal отображается спиннер.
func New(opts Options) *Bar {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}

	b := &Bar{
		disabled:  opts.Disabled,
		startTime: time.Now(),
		writer:    writer,
	}

	if !opts.Disabled {
		description := opts.Description
		if description == "" {
			description = "Группы"
		}

		b.bar = progressbar.NewOptions64(
			-1,
			progressbar.OptionSetWriter(writer),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("группа"),
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]█[reset]",
				SaucerHead:    "[green]▓[reset]",
				SaucerPadding: "░",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(writer)
			}),
			progressbar.OptionSetPredictTime(true),
		)
	}

	return b
}

// AddTotal увеличивает ожидаемое количество групп.
func (b *Bar) AddTotal(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += n
	if b.bar != nil {
		b.bar.ChangeMax64(b.total)
	}
}

// Delivered отмечает полностью доставленную группу.
func (b *Bar) Delivered() {
	b.add(&b.delivered)
}

// Partial отмечает частично доставленную группу.
func (b *Bar) Partial() {
	b.add(&b.partial)
}

// Failed отмечает группу без доставленных участников.
func (b *Bar) Failed() {
	b.add(&b.failed)
}

func (b *Bar) add(counter *int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	*counter++
	if b.bar != nil {
		_ = b.bar.Add(1)
	}
}

// Finish завершает прогресс-бар.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar != nil {
		_ = b.bar.Finish()
	}
}

// Stats возвращает текущую статистику.
func (b *Bar) Stats() (total, delivered, partial, failed int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total, b.delivered, b.partial, b.failed
}

// Duration возвращает время с начала обработки.
func (b *Bar) Duration() time.Duration {
	return time.Since(b.startTime)
}

// IsDisabled возвращает true, если прогресс-бар отключён.
func (b *Bar) IsDisabled() bool {
	return b.disabled
}

// WriteMessage выводит сообщение, временно скрывая прогресс-бар.
func (b *Bar) WriteMessage(format string, args ...interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bar != nil {
		_ = b.bar.Clear()
	}

	fmt.Fprintf(b.writer, format, args...)

	if b.bar != nil {
		_ = b.bar.RenderBlank()
	}
}
