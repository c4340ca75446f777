package protocol

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

const namespaceAttestation = "attestation"
const subsystemProtocol = "protocol"

// PrometheusObserver counts phase transitions
type PrometheusObserver struct {
	transitions    *prometheus.CounterVec
	lastTransition *prometheus.GaugeVec
}

// NewPrometheusObserver registers the protocol metrics with the given registerer
func NewPrometheusObserver(registerer prometheus.Registerer) (*PrometheusObserver, error) {
	o := &PrometheusObserver{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      "phase_transitions_total",
			Namespace: namespaceAttestation,
			Subsystem: subsystemProtocol,
			Help:      "counter for the phase transitions by phase and resulting status",
		}, []string{"phase", "status"}),
		lastTransition: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:      "last_transition_timestamp_seconds",
			Namespace: namespaceAttestation,
			Subsystem: subsystemProtocol,
			Help:      "unix time of the most recent transition by phase",
		}, []string{"phase"}),
	}

	for _, collector := range []prometheus.Collector{o.transitions, o.lastTransition} {
		err := registerer.Register(collector)
		if err != nil {
			return nil, err
		}
	}

	return o, nil
}

// Observe implements Observer
func (o *PrometheusObserver) Observe(ctx context.Context, event *Event) {
	o.transitions.WithLabelValues(string(event.Phase), string(event.Status)).Inc()
	o.lastTransition.WithLabelValues(string(event.Phase)).Set(float64(event.Timestamp.Unix()))
}
