// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics exposes controller counters to Prometheus.
//
// All methods are safe on a nil *Metrics so components can run without it.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/sdnlink/internal/flow"
)

const namespace = "sdnlink"

// Metrics holds the controller's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	packetIn        *prometheus.CounterVec
	floods          *prometheus.CounterVec
	malformed       prometheus.Counter
	rulesInstalled  *prometheus.CounterVec
	rulesDeleted    *prometheus.CounterVec
	transportErrors *prometheus.CounterVec
	linkTransitions *prometheus.CounterVec
	handlerPanics   prometheus.Counter
	eventsDropped   *prometheus.CounterVec
	switches        prometheus.Gauge
	linkBlocked     *prometheus.GaugeVec
}

// New creates and registers every collector, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		packetIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packet_in_total",
			Help:      "Packet-in events handled, by switch.",
		}, []string{"switch"}),
		floods: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flood_total",
			Help:      "Packets flooded because the destination was unknown or a group address.",
		}, []string{"switch"}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_frames_total",
			Help:      "Packet-in frames dropped because they could not be decoded.",
		}),
		rulesInstalled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_installed_total",
			Help:      "Flow rules handed to the transport, by switch and priority.",
		}, []string{"switch", "priority"}),
		rulesDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_deleted_total",
			Help:      "Bookkept flow rules removed by delete commands, by switch.",
		}, []string{"switch"}),
		transportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Switch commands the transport failed to accept, by operation.",
		}, []string{"op"}),
		linkTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_transitions_total",
			Help:      "Administrative link operations applied, by link and resulting state.",
		}, []string{"link", "state"}),
		handlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panics_total",
			Help:      "Event handlers that panicked and were recovered.",
		}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_rejected_total",
			Help:      "Events not accepted by the dispatcher, by kind.",
		}, []string{"kind"}),
		switches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "switches_connected",
			Help:      "Switches currently registered.",
		}),
		linkBlocked: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_blocked",
			Help:      "1 when the link is administratively blocked.",
		}, []string{"link"}),
	}

	m.registry.MustRegister(
		m.packetIn, m.floods, m.malformed,
		m.rulesInstalled, m.rulesDeleted, m.transportErrors,
		m.linkTransitions, m.handlerPanics, m.eventsDropped,
		m.switches, m.linkBlocked,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RegisterGauge exposes a value computed at scrape time.
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

func sw(id uint64) string { return strconv.FormatUint(id, 10) }

func (m *Metrics) PacketIn(id uint64) {
	if m != nil {
		m.packetIn.WithLabelValues(sw(id)).Inc()
	}
}

func (m *Metrics) Flood(id uint64) {
	if m != nil {
		m.floods.WithLabelValues(sw(id)).Inc()
	}
}

func (m *Metrics) MalformedFrame() {
	if m != nil {
		m.malformed.Inc()
	}
}

// RuleInstalled implements flowstore.Observer.
func (m *Metrics) RuleInstalled(id uint64, prio flow.Priority) {
	if m != nil {
		m.rulesInstalled.WithLabelValues(sw(id), strconv.Itoa(int(prio))).Inc()
	}
}

// RulesDeleted implements flowstore.Observer.
func (m *Metrics) RulesDeleted(id uint64, n int) {
	if m != nil && n > 0 {
		m.rulesDeleted.WithLabelValues(sw(id)).Add(float64(n))
	}
}

// TransportFailed implements flowstore.Observer.
func (m *Metrics) TransportFailed(op string) {
	if m != nil {
		m.transportErrors.WithLabelValues(op).Inc()
	}
}

// LinkState records an applied transition and the current blocked flag.
func (m *Metrics) LinkState(link string, blocked bool) {
	if m == nil {
		return
	}
	state, v := "up", 0.0
	if blocked {
		state, v = "down", 1.0
	}
	m.linkTransitions.WithLabelValues(link, state).Inc()
	m.linkBlocked.WithLabelValues(link).Set(v)
}

func (m *Metrics) HandlerPanic() {
	if m != nil {
		m.handlerPanics.Inc()
	}
}

func (m *Metrics) EventRejected(kind string) {
	if m != nil {
		m.eventsDropped.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) SwitchConnected() {
	if m != nil {
		m.switches.Inc()
	}
}

func (m *Metrics) SwitchDisconnected() {
	if m != nil {
		m.switches.Dec()
	}
}
