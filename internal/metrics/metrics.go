package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pleasantbot/pleasantdash/internal/botapi"
)

// Request outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeStatus = "status" // bot answered non-2xx
	OutcomeError  = "error"  // no answer
)

// Collector holds all Prometheus metrics for the dashboard.
type Collector struct {
	Registry *prometheus.Registry

	botRequests     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	botUp           *prometheus.GaugeVec
	viewLoaded      *prometheus.GaugeVec
	tokensForwarded *prometheus.CounterVec
}

// New creates the metrics on a fresh registry that also carries the Go and
// process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, "pleasantdash")
}

// NewWithRegistry creates the metrics under namespace and registers them on reg.
func NewWithRegistry(reg *prometheus.Registry, namespace string) *Collector {
	c := &Collector{
		Registry: reg,
		botRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bot_requests_total",
				Help:      "Bot API requests by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bot_request_duration_seconds",
				Help:      "Duration of bot API requests in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"endpoint"},
		),
		botUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "bot_up",
				Help:      "Whether the bot API is reachable (1=up, 0=down)",
			},
			[]string{"target"},
		),
		viewLoaded: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "view_loaded",
				Help:      "Whether the last fetch of a view succeeded (1=loaded, 0=error)",
			},
			[]string{"view"},
		),
		tokensForwarded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "oauth_tokens_forwarded_total",
				Help:      "OAuth tokens handed to the bot, by outcome",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(
		c.botRequests,
		c.requestDuration,
		c.botUp,
		c.viewLoaded,
		c.tokensForwarded,
	)

	return c
}

// Outcome classifies a bot API error.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	var se *botapi.StatusError
	if errors.As(err, &se) {
		return OutcomeStatus
	}
	return OutcomeError
}

// ObserveRequest records one bot API call.
func (c *Collector) ObserveRequest(endpoint string, d time.Duration, err error) {
	c.botRequests.WithLabelValues(endpoint, Outcome(err)).Inc()
	c.requestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// SetViewLoaded sets the loaded gauge for a view.
func (c *Collector) SetViewLoaded(view string, loaded bool) {
	c.viewLoaded.WithLabelValues(view).Set(boolToFloat(loaded))
}

// SetBotUp sets the reachability gauge for a bot API target.
func (c *Collector) SetBotUp(target string, up bool) {
	c.botUp.WithLabelValues(target).Set(boolToFloat(up))
}

// RemoveTarget drops the reachability gauge of a target no longer checked.
func (c *Collector) RemoveTarget(target string) {
	c.botUp.DeleteLabelValues(target)
}

// TokenForwarded counts one attempt to hand a token to the bot.
func (c *Collector) TokenForwarded(err error) {
	c.tokensForwarded.WithLabelValues(Outcome(err)).Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
