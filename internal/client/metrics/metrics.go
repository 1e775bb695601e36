// Package metrics exposes Prometheus counters for the session core.
package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the gateway, controller and monitor report to.
type Recorder interface {
	RecordRequest(outcome string)
	RecordRefresh()
	RecordRefreshFailure()
	RecordReplay()
	RecordTransition(state string)
	RecordMonitorEvent(event string)
	RecordReconnect()
}

type Collector struct {
	Requests        *prometheus.CounterVec
	Refreshes       prometheus.Counter
	RefreshFailures prometheus.Counter
	Replays         prometheus.Counter
	Transitions     *prometheus.CounterVec
	MonitorEvents   *prometheus.CounterVec
	Reconnects      prometheus.Counter
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gophclass_gateway_requests_total",
			Help: "Gateway requests by final outcome.",
		}, []string{"outcome"}),
		Refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gophclass_token_refresh_total",
			Help: "Refresh calls sent to the server.",
		}),
		RefreshFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gophclass_token_refresh_failures_total",
			Help: "Refresh calls that did not yield a new access token.",
		}),
		Replays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gophclass_request_replays_total",
			Help: "Requests replayed after a refresh.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gophclass_session_transitions_total",
			Help: "Session state transitions by target state.",
		}, []string{"state"}),
		MonitorEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gophclass_monitor_events_total",
			Help: "Live session monitor events by type.",
		}, []string{"type"}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gophclass_monitor_reconnects_total",
			Help: "Reconnect attempts of the live session monitor.",
		}),
	}

	reg.MustRegister(
		c.Requests,
		c.Refreshes,
		c.RefreshFailures,
		c.Replays,
		c.Transitions,
		c.MonitorEvents,
		c.Reconnects,
	)
	return c
}

func (c *Collector) RecordRequest(outcome string)    { c.Requests.WithLabelValues(outcome).Inc() }
func (c *Collector) RecordRefresh()                  { c.Refreshes.Inc() }
func (c *Collector) RecordRefreshFailure()           { c.RefreshFailures.Inc() }
func (c *Collector) RecordReplay()                   { c.Replays.Inc() }
func (c *Collector) RecordTransition(state string)   { c.Transitions.WithLabelValues(state).Inc() }
func (c *Collector) RecordMonitorEvent(event string) { c.MonitorEvents.WithLabelValues(event).Inc() }
func (c *Collector) RecordReconnect()                { c.Reconnects.Inc() }

type nop struct{}

// Nop discards everything.
func Nop() Recorder { return nop{} }

func (nop) RecordRequest(string)      {}
func (nop) RecordRefresh()            {}
func (nop) RecordRefreshFailure()     {}
func (nop) RecordReplay()             {}
func (nop) RecordTransition(string)   {}
func (nop) RecordMonitorEvent(string) {}
func (nop) RecordReconnect()          {}

// Router serves /metrics from gatherer.
func Router(gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}
