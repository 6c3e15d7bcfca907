package internal

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "ptz_stabilizer"

// Metrics holds the per camera counters exposed on /metrics. All helpers are safe on a nil receiver.
type Metrics struct {
	Registry           *prometheus.Registry
	polls              *prometheus.CounterVec
	movementsDetected  *prometheus.CounterVec
	stopsSent          *prometheus.CounterVec
	stopFailures       *prometheus.CounterVec
	connectionFailures *prometheus.CounterVec
	moving             *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	labels := []string{"camera"}
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "polls_total", Help: "PTZ status polls performed.",
		}, labels),
		movementsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "movements_detected_total", Help: "Transitions from stable to moving.",
		}, labels),
		stopsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "stops_sent_total", Help: "Stop commands accepted by the device.",
		}, labels),
		stopFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "stop_failures_total", Help: "Stop commands that failed.",
		}, labels),
		connectionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "connection_failures_total", Help: "Failed connects and polls.",
		}, labels),
		moving: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Name: "moving", Help: "1 while the camera is considered moving.",
		}, labels),
	}
	m.Registry.MustRegister(m.polls, m.movementsDetected, m.stopsSent, m.stopFailures, m.connectionFailures, m.moving)
	return m
}

func (m *Metrics) Poll(camera string) {
	if m != nil {
		m.polls.WithLabelValues(camera).Inc()
	}
}

func (m *Metrics) MovementDetected(camera string) {
	if m != nil {
		m.movementsDetected.WithLabelValues(camera).Inc()
		m.moving.WithLabelValues(camera).Set(1)
	}
}

func (m *Metrics) Stabilised(camera string) {
	if m != nil {
		m.moving.WithLabelValues(camera).Set(0)
	}
}

func (m *Metrics) StopSent(camera string) {
	if m != nil {
		m.stopsSent.WithLabelValues(camera).Inc()
	}
}

func (m *Metrics) StopFailed(camera string) {
	if m != nil {
		m.stopFailures.WithLabelValues(camera).Inc()
	}
}

func (m *Metrics) ConnectionFailed(camera string) {
	if m != nil {
		m.connectionFailures.WithLabelValues(camera).Inc()
	}
}
