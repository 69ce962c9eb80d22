// Package forwarder доставляет сообщения и вложения в чат.
package forwarder

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/artemshloyda/popularfeed/internal/config"
)

// Forwarder - получатель сообщений.
// Любая ошибка, в том числе внутри многошаговой загрузки, имеет вид apperr.ErrDelivery.
type Forwarder interface {
	// SendText отправляет текстовое сообщение в формате markdown.
	SendText(ctx context.Context, text string) error

	// SendAttachment отправляет файл. mime может быть пустым.
	SendAttachment(ctx context.Context, path, mime string) error
}

// New создаёт получателя по конфигурации.
func New(cfg *config.Config, logger *zap.Logger) (Forwarder, error) {
	switch cfg.Forwarder {
	case config.ForwarderVoceChat, "":
		return NewVoceChat(VoceChatOptions{
			ServerURL: cfg.ServerDomain,
			APIKey:    cfg.APIKey,
			ChannelID: cfg.ChannelID,
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.HTTPTimeout,
		})
	case config.ForwarderLog:
		return NewLog(logger), nil
	default:
		return nil, fmt.Errorf("неизвестный получатель: %s", cfg.Forwarder)
	}
}
