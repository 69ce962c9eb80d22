package forwarder

import (
	"context"
	"os"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/artemshloyda/popularfeed/internal/apperr"
)

// Log только пишет в лог то, что было бы доставлено.
type Log struct {
	logger *zap.Logger
}

// NewLog создаёт получателя для пробного запуска.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger.With(zap.String("component", "forwarder.log"))}
}

// SendText пишет текст в лог.
func (l *Log) SendText(_ context.Context, text string) error {
	l.logger.Info("сообщение", zap.String("text", text))
	return nil
}

// SendAttachment пишет в лог параметры файла. Отсутствующий файл - ошибка доставки.
func (l *Log) SendAttachment(_ context.Context, path, mime string) error {
	st, err := os.Stat(path)
	if err != nil {
		return apperr.Delivery("forwarder.log.attachment", err)
	}
	l.logger.Info("вложение",
		zap.String("path", path),
		zap.String("mime", mime),
		zap.String("size", humanize.IBytes(uint64(st.Size()))))
	return nil
}
