package bridge

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dzerrenner/mqtt-lightify/internal/lightify"
)

// Error kinds used as the "kind" label of lightify_errors_total.
const (
	errKindNotFound          = "not_found"
	errKindInvalidFormat     = "invalid_format"
	errKindParse             = "parse"
	errKindRangeClamped      = "range_clamped"
	errKindUnknownCapability = "unknown_capability"
	errKindUnknownDatapoint  = "unknown_datapoint"
	errKindUnknownCommand    = "unknown_command"
	errKindMutation          = "mutation_failed"
	errKindRegistry          = "registry_unreachable"
	errKindNotReady          = "not_ready"
	errKindOther             = "other"
)

// Metrics holds the bridge's Prometheus collectors.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	messages        *prometheus.CounterVec
	errors          *prometheus.CounterVec
	mutations       *prometheus.CounterVec
	connectionState prometheus.Gauge
	devices         *prometheus.GaugeVec
}

// NewMetrics creates the bridge collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lightify_messages_total",
				Help: "Inbound messages by channel.",
			},
			[]string{"channel"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lightify_errors_total",
				Help: "Per-message and session errors by kind.",
			},
			[]string{"kind"},
		),
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lightify_mutations_total",
				Help: "Mutations sent to the gateway by datapoint.",
			},
			[]string{"datapoint"},
		),
		connectionState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "lightify_connection_state",
				Help: "Published connection state (0 disconnected, 1 connecting, 2 ready).",
			},
		),
		devices: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lightify_devices",
				Help: "Devices in the registry by kind.",
			},
			[]string{"kind"},
		),
	}
	reg.MustRegister(m.messages)
	reg.MustRegister(m.errors)
	reg.MustRegister(m.mutations)
	reg.MustRegister(m.connectionState)
	reg.MustRegister(m.devices)
	return m
}

func (m *Metrics) message(ch Channel) {
	if m != nil {
		m.messages.WithLabelValues(ch.String()).Inc()
	}
}

func (m *Metrics) recordError(kind string) {
	if m != nil {
		m.errors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) mutation(datapoint string) {
	if m != nil {
		m.mutations.WithLabelValues(datapoint).Inc()
	}
}

func (m *Metrics) state(s ConnectionState) {
	if m != nil {
		m.connectionState.Set(float64(s))
	}
}

func (m *Metrics) deviceCounts(counts map[Kind]int) {
	if m == nil {
		return
	}
	for kind, n := range counts {
		m.devices.WithLabelValues(kind.String()).Set(float64(n))
	}
}

// GatewayStats reports the gateway client's counters. *lightify.Client
// satisfies it.
type GatewayStats interface {
	Stats() lightify.Stats
}

var _ GatewayStats = (*lightify.Client)(nil)

// RegisterGatewayStats exposes the gateway client's request, error and
// redial counters and its connection flag. Values are read at scrape time.
func RegisterGatewayStats(reg prometheus.Registerer, src GatewayStats) {
	counter := func(name, help string, value func(lightify.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: name, Help: help},
			func() float64 { return float64(value(src.Stats())) },
		)
	}

	reg.MustRegister(
		counter("lightify_gateway_requests_total", "Requests sent to the gateway.",
			func(s lightify.Stats) uint64 { return s.RequestsTotal }),
		counter("lightify_gateway_errors_total", "Failed gateway exchanges.",
			func(s lightify.Stats) uint64 { return s.ErrorsTotal }),
		counter("lightify_gateway_redials_total", "Gateway reconnects after a failed exchange.",
			func(s lightify.Stats) uint64 { return s.RedialsTotal }),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: "lightify_gateway_connected", Help: "1 while a gateway connection is open."},
			func() float64 {
				if src.Stats().Connected {
					return 1
				}
				return 0
			},
		),
	)
}
