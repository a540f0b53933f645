package manager

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type inferenceMetrics struct {
	duration     *prometheus.HistogramVec
	total        *prometheus.CounterVec
	loaded       prometheus.Gauge
	backpressure prometheus.Counter
}

func newInferenceMetrics(reg prometheus.Registerer) *inferenceMetrics {
	m := &inferenceMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qwenedit_inference_duration_seconds",
			Help:    "Wall-clock duration of pipeline edits.",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qwenedit_inference_total",
			Help: "Pipeline edits by result.",
		}, []string{"result"}),
		loaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "qwenedit_pipeline_loaded",
			Help: "1 when the pipeline is assembled and serving.",
		}),
		backpressure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "qwenedit_admission_rejections_total",
			Help: "Edits rejected because the admission queue was full or the wait expired.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.duration, m.total, m.loaded, m.backpressure)
	}
	return m
}

func (m *inferenceMetrics) observe(result string, d time.Duration) {
	m.duration.WithLabelValues(result).Observe(d.Seconds())
	m.total.WithLabelValues(result).Inc()
}

func (m *inferenceMetrics) setLoaded(v bool) {
	if v {
		m.loaded.Set(1)
		return
	}
	m.loaded.Set(0)
}

// CounterPublisher counts manager events by name. Register it with a
// Registerer and add it next to LogPublisher in a MultiPublisher.
type CounterPublisher struct {
	events *prometheus.CounterVec
}

// NewCounterPublisher creates a CounterPublisher registered with reg. A nil
// reg leaves the counter unregistered.
func NewCounterPublisher(reg prometheus.Registerer) *CounterPublisher {
	c := &CounterPublisher{events: prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "qwenedit_manager_events_total",
		Help: "Manager lifecycle events by name.",
	}, []string{"event"})}
	if reg != nil {
		reg.MustRegister(c.events)
	}
	return c
}

func (c *CounterPublisher) Publish(e Event) {
	c.events.WithLabelValues(e.Name).Inc()
}
