package archive

import "github.com/prometheus/client_golang/prometheus"

// Results used as the "result" label of archive_messages_total.
const (
	resultStored   = "stored"
	resultFiltered = "filtered"
	resultInvalid  = "invalid"
	resultFailed   = "failed"
)

// Metrics holds the archive's Prometheus collectors.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	messages *prometheus.CounterVec
}

// NewMetrics creates the archive collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_messages_total",
				Help: "Archive messages by result (stored, filtered, invalid, failed).",
			},
			[]string{"result"},
		),
	}
	reg.MustRegister(m.messages)
	return m
}

func (m *Metrics) result(r string) {
	if m != nil {
		m.messages.WithLabelValues(r).Inc()
	}
}
