// Package metrics records account activity and HTTP requests with Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/goliatone/go-accounts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "accounts"

// Collector implements accounts.ActivitySink and accounts.RequestObserver.
type Collector struct {
	gatherer prometheus.Gatherer

	events          *prometheus.CounterVec
	syncProcessed   prometheus.Counter
	syncUpdated     prometheus.Counter
	syncErrors      prometheus.Counter
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

var (
	_ accounts.ActivitySink    = (*Collector)(nil)
	_ accounts.RequestObserver = (*Collector)(nil)
)

// New registers the collectors on a fresh registry.
func New() (*Collector, error) {
	registry := prometheus.NewRegistry()
	return NewWithRegistry(registry, registry)
}

// NewWithRegistry registers the collectors on reg and exposes gatherer.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) (*Collector, error) {
	c := &Collector{
		gatherer: gatherer,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_events_total",
			Help:      "Account activity events by type.",
		}, []string{"event"}),
		syncProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_users_processed_total",
			Help:      "Users processed by group reconciliation.",
		}),
		syncUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_users_updated_total",
			Help:      "Profiles updated by group reconciliation.",
		}),
		syncErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_errors_total",
			Help:      "Errors recorded by group reconciliation.",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Handled account actions by action and status.",
		}, []string{"action", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Account action latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
	}

	for _, col := range []prometheus.Collector{
		c.events,
		c.syncProcessed,
		c.syncUpdated,
		c.syncErrors,
		c.requestsTotal,
		c.requestDuration,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Record implements accounts.ActivitySink.
func (c *Collector) Record(_ context.Context, event accounts.ActivityEvent) error {
	c.events.WithLabelValues(string(event.EventType)).Inc()

	if event.EventType == accounts.ActivityEventSyncCompleted {
		c.syncProcessed.Add(metadataFloat(event.Metadata, "processed"))
		c.syncUpdated.Add(metadataFloat(event.Metadata, "updated"))
		c.syncErrors.Add(metadataFloat(event.Metadata, "errors"))
	}
	return nil
}

// ObserveRequest implements accounts.RequestObserver.
func (c *Collector) ObserveRequest(action string, status int, elapsed time.Duration) {
	if action == "" {
		action = "unknown"
	}
	c.requestsTotal.WithLabelValues(action, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

func metadataFloat(metadata map[string]any, key string) float64 {
	switch v := metadata[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return 0
}
