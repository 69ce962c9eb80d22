package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBar_Counters(t *testing.T) {
	var out bytes.Buffer
	b := New(Options{Writer: &out})

	b.AddTotal(3)
	b.Delivered()
	b.Partial()
	b.Failed()
	b.Finish()

	total, delivered, partial, failed := b.Stats()
	assert.Equal(t, int64(3), total)
	assert.Equal(t, int64(1), delivered)
	assert.Equal(t, int64(1), partial)
	assert.Equal(t, int64(1), failed)
	assert.NotEmpty(t, out.String())
}

func TestBar_Disabled(t *testing.T) {
	var out bytes.Buffer
	b := New(Options{Disabled: true, Writer: &out})

	b.AddTotal(1)
	b.Delivered()
	b.WriteMessage("группа %d\n", 7)
	b.Finish()

	assert.True(t, b.IsDisabled())
	assert.Equal(t, "группа 7\n", out.String())
}
