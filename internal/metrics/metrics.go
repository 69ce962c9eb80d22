// Package metrics содержит Prometheus-метрики конвейера.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "popularfeed"

// Metrics - набор метрик на собственном реестре.
type Metrics struct {
	registry *prometheus.Registry

	cycles          *prometheus.CounterVec
	cycleDuration   prometheus.Histogram
	candidates      prometheus.Gauge
	groups          *prometheus.CounterVec
	members         *prometheus.CounterVec
	transformFallbk prometheus.Counter
	evicted         prometheus.Counter
}

// New создаёт и регистрирует метрики.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed polling cycles by result",
		}, []string{"result"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Polling cycle duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		candidates: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "candidates",
			Help:      "Unique candidate ids in the last cycle",
		}),
		groups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groups_total",
			Help:      "Image groups by gate outcome",
		}, []string{"outcome"}),
		members: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "members_total",
			Help:      "Processed group members by result",
		}, []string{"result"}),
		transformFallbk: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_fallbacks_total",
			Help:      "Members forwarded untransformed after a transform failure",
		}),
		evicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_evicted_total",
			Help:      "Dedup records removed by retention eviction",
		}),
	}
}

// Исходы группы.
const (
	GroupDispatched     = "dispatched"
	GroupDuplicate      = "duplicate"
	GroupBelowThreshold = "below_threshold"
	GroupResolveFailed  = "resolve_failed"
	GroupSeen           = "seen"
)

// ObserveCycle фиксирует завершение цикла. Nil-безопасен.
func (m *Metrics) ObserveCycle(result string, d time.Duration, candidates int) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(d.Seconds())
	m.candidates.Set(float64(candidates))
}

// Group увеличивает счётчик исхода группы.
func (m *Metrics) Group(outcome string) {
	if m == nil {
		return
	}
	m.groups.WithLabelValues(outcome).Inc()
}

// Member увеличивает счётчик результата участника (ok или вид ошибки).
func (m *Metrics) Member(result string) {
	if m == nil {
		return
	}
	m.members.WithLabelValues(result).Inc()
}

// TransformFallback фиксирует отправку оригинала вместо перекодированного файла.
func (m *Metrics) TransformFallback() {
	if m == nil {
		return
	}
	m.transformFallbk.Inc()
}

// Evicted добавляет количество удалённых записей.
func (m *Metrics) Evicted(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.evicted.Add(float64(n))
}

// Registry возвращает реестр метрик.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler возвращает HTTP-обработчик экспозиции.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
