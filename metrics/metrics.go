package metrics

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	accounts "github.com/goliatone/go-accounts"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "accounts"

// ActivityCollector counts lifecycle events by type. It is an
// accounts.ActivitySink.
type ActivityCollector struct {
	events *prometheus.CounterVec
}

// NewActivityCollector registers its counters on reg
func NewActivityCollector(reg prometheus.Registerer) (*ActivityCollector, error) {
	c := &ActivityCollector{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "activity_events_total",
				Help:      "Account lifecycle events by type.",
			},
			[]string{"event"},
		),
	}

	if reg != nil {
		if err := reg.Register(c.events); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *ActivityCollector) Record(_ context.Context, event accounts.ActivityEvent) error {
	c.events.WithLabelValues(string(event.EventType)).Inc()
	return nil
}

// Handler exposes the registry in the Prometheus text format
func Handler(gatherer prometheus.Gatherer) fiber.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
