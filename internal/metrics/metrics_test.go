package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveCycle("ok", 2*time.Second, 12)
	m.Group(GroupDispatched)
	m.Group(GroupDispatched)
	m.Group(GroupBelowThreshold)
	m.Member("ok")
	m.Member("delivery")
	m.TransformFallback()
	m.Evicted(5)
	m.Evicted(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles.WithLabelValues("ok")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.candidates))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.groups.WithLabelValues(GroupDispatched)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.groups.WithLabelValues(GroupBelowThreshold)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.members.WithLabelValues("delivery")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transformFallbk))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.evicted))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveCycle("ok", time.Second, 1)
		m.Group(GroupDuplicate)
		m.Member("ok")
		m.TransformFallback()
		m.Evicted(1)
	})
}
