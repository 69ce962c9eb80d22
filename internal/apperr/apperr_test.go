package apperr

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
		want string
	}{
		{"network", Network("source.fetch", io.ErrUnexpectedEOF), ErrNetwork, "network"},
		{"parse", Parsef("source.parse", "нет %s", "ul"), ErrParse, "parse"},
		{"transform", Transform("converter.native", io.EOF), ErrTransform, "transform"},
		{"delivery", Delivery("forwarder.send", io.EOF), ErrDelivery, "delivery"},
		{"store", Store("storage.insert", io.EOF), ErrStore, "store"},
		{"config", Config("workers = %d", 0), ErrConfig, "config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.kind)
			assert.Equal(t, tt.want, KindOf(tt.err))

			wrapped := fmt.Errorf("cycle: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.kind)
			assert.Equal(t, tt.want, KindOf(wrapped))
		})
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	err := Network("source.fetch", io.ErrUnexpectedEOF)

	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.False(t, errors.Is(err, ErrParse))
	assert.Contains(t, err.Error(), "source.fetch")
}

func TestKindOfUnknown(t *testing.T) {
	assert.Equal(t, "", KindOf(nil))
	assert.Equal(t, "unknown", KindOf(errors.New("boom")))
}
