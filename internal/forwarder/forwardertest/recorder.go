// Package forwardertest содержит записывающего получателя для тестов.
package forwardertest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/artemshloyda/popularfeed/internal/apperr"
)

// Call - один вызов получателя.
type Call struct {
	// Text - текст для SendText.
	Text string

	// File - имя файла для SendAttachment.
	File string

	// MIME - тип вложения.
	MIME string

	// Size - размер вложения на момент отправки.
	Size int64
}

// IsText сообщает, был ли вызов текстовым.
func (c Call) IsText() bool { return c.File == "" }

// Recorder запоминает вызовы и может отказывать выбранным вложениям.
type Recorder struct {
	mu    sync.Mutex
	calls []Call

	// FailAttachment возвращает true, если вложение с таким именем файла нужно отклонить.
	FailAttachment func(name string) bool

	// FailText возвращает true, если текст нужно отклонить.
	FailText func(text string) bool

	// Hook вызывается перед каждой отправкой (например, для задержки).
	Hook func()
}

// SendText записывает текст.
func (r *Recorder) SendText(_ context.Context, text string) error {
	if r.Hook != nil {
		r.Hook()
	}
	if r.FailText != nil && r.FailText(text) {
		return apperr.Delivery("forwardertest.text", errors.New("отклонено"))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Text: text})
	return nil
}

// SendAttachment записывает вложение. Файл должен существовать.
func (r *Recorder) SendAttachment(_ context.Context, path, mime string) error {
	if r.Hook != nil {
		r.Hook()
	}
	st, err := os.Stat(path)
	if err != nil {
		return apperr.Delivery("forwardertest.attachment", err)
	}
	name := filepath.Base(path)
	if r.FailAttachment != nil && r.FailAttachment(name) {
		return apperr.Delivery("forwardertest.attachment", errors.New("отклонено"))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{File: name, MIME: mime, Size: st.Size()})
	return nil
}

// Calls возвращает копию всех успешных вызовов.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Texts возвращает отправленные тексты.
func (r *Recorder) Texts() []string {
	var out []string
	for _, c := range r.Calls() {
		if c.IsText() {
			out = append(out, c.Text)
		}
	}
	return out
}

// Files возвращает имена отправленных файлов.
func (r *Recorder) Files() []string {
	var out []string
	for _, c := range r.Calls() {
		if !c.IsText() {
			out = append(out, c.File)
		}
	}
	return out
}
