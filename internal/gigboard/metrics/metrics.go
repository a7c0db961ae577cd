// Package metrics exposes session lifecycle counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the session controller and the identity provider bridge
// report to.
type Recorder interface {
	RecordAuthAttempt(method, outcome string)
	RecordTransition(from, to string)
	RecordForcedLogout()
	RecordBridgeOutcome(outcome string)
}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	authAttempts  *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	forcedLogouts prometheus.Counter
	bridge        *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gigboard_auth_attempts_total",
			Help: "Credential exchanges by method and outcome.",
		}, []string{"method", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gigboard_session_transitions_total",
			Help: "Session state transitions.",
		}, []string{"from", "to"}),
		forcedLogouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gigboard_forced_logouts_total",
			Help: "Sessions cleared because the backend rejected the access token.",
		}),
		bridge: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gigboard_idp_bridge_outcomes_total",
			Help: "Identity provider bridge terminal states.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.transitions,
		c.forcedLogouts,
		c.bridge,
	)

	return c
}

func (c *Collector) RecordAuthAttempt(method, outcome string) {
	c.authAttempts.WithLabelValues(method, outcome).Inc()
}

func (c *Collector) RecordTransition(from, to string) {
	c.transitions.WithLabelValues(from, to).Inc()
}

func (c *Collector) RecordForcedLogout() {
	c.forcedLogouts.Inc()
}

func (c *Collector) RecordBridgeOutcome(outcome string) {
	c.bridge.WithLabelValues(outcome).Inc()
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordAuthAttempt(string, string) {}
func (Nop) RecordTransition(string, string)  {}
func (Nop) RecordForcedLogout()              {}
func (Nop) RecordBridgeOutcome(string)       {}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NewRouter serves gatherer on /metrics.
func NewRouter(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", Handler(gatherer))
	return r
}
