// Package metrics exposes hub activity as prometheus counters.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/button-hub/internal/logic"
	"github.com/sweeney/button-hub/internal/mode"
	"github.com/sweeney/button-hub/internal/trigger"
)

const namespace = "buttonhub"

// Metrics implements hub.Observer on its own registry.
type Metrics struct {
	reg *prometheus.Registry

	devices  prometheus.Gauge
	gestures *prometheus.CounterVec
	drops    *prometheus.CounterVec
	modes    *prometheus.CounterVec
	cards    *prometheus.CounterVec
	requests *prometheus.CounterVec
}

// New creates the collectors and registers them, plus the Go runtime and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Number of live device contexts.",
		}),
		gestures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gestures_total",
			Help:      "Classified gestures by gesture and channel.",
		}, []string{"gesture", "channel"}),
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Raw events rejected by deduplication, by channel and reason.",
		}, []string{"channel", "reason"}),
		modes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mode_changes_total",
			Help:      "Reporting mode transitions by resulting mode.",
		}, []string{"mode"}),
		cards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_cards_total",
			Help:      "Trigger card invocations by outcome.",
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Status page requests by endpoint, method, and status.",
		}, []string{"endpoint", "method", "status"}),
	}
	m.reg.MustRegister(
		m.devices, m.gestures, m.drops, m.modes, m.cards, m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Middleware counts requests by route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			endpoint = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requests.WithLabelValues(endpoint, r.Method, strconv.Itoa(status)).Inc()
	})
}

func (m *Metrics) DeviceAdded(string)   { m.devices.Inc() }
func (m *Metrics) DeviceRemoved(string) { m.devices.Dec() }

func (m *Metrics) GestureClassified(g logic.GestureEvent) {
	m.gestures.WithLabelValues(string(g.Gesture), g.Channel.String()).Inc()
}

func (m *Metrics) EventDropped(_ string, ch logic.Channel, reason logic.DropReason) {
	m.drops.WithLabelValues(ch.String(), string(reason)).Inc()
}

func (m *Metrics) ModeChanged(_ string, md mode.Mode) {
	m.modes.WithLabelValues(md.String()).Inc()
}

func (m *Metrics) TriggerPublished(_ string, res trigger.Result) {
	m.cards.WithLabelValues("published").Add(float64(len(res.Published)))
	m.cards.WithLabelValues("not_found").Add(float64(len(res.NotFound)))
	m.cards.WithLabelValues("failed").Add(float64(len(res.Failed)))
}
