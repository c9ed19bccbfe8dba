// Package metrics exposes the fleet's runtime state as Prometheus
// metrics. The lifecycle manager is the single writer; the registry is
// served on an optional /metrics listener during orchestration.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jihwankim/fleet-utils/pkg/fleet"
)

// Collector implements the lifecycle observer over a dedicated Prometheus
// registry.
type Collector struct {
	registry *prometheus.Registry

	state          *prometheus.GaugeVec
	lastTransition *prometheus.GaugeVec
	restarts       *prometheus.CounterVec
}

// New creates a collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleet_instance_state",
			Help: "Instance state as one-hot gauge per state label.",
		}, []string{"instance", "state"}),
		lastTransition: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleet_instance_last_transition_timestamp_seconds",
			Help: "Unix timestamp of the instance's last state transition.",
		}, []string{"instance"}),
		restarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_instance_restarts_total",
			Help: "Number of times the instance was rescheduled after a failure.",
		}, []string{"instance"}),
	}

	c.registry.MustRegister(c.state, c.lastTransition, c.restarts)
	c.registry.MustRegister(collectors.NewGoCollector())
	return c
}

// ObserveState records a state transition.
func (c *Collector) ObserveState(id fleet.InstanceID, state fleet.State, at time.Time) {
	for _, s := range []fleet.State{
		fleet.StatePending, fleet.StateStarting, fleet.StateRunning,
		fleet.StateFailed, fleet.StateStopped,
	} {
		value := 0.0
		if s == state {
			value = 1.0
		}
		c.state.WithLabelValues(id.String(), s.String()).Set(value)
	}
	c.lastTransition.WithLabelValues(id.String()).Set(float64(at.Unix()))
}

// ObserveRestart counts one restart of the instance.
func (c *Collector) ObserveRestart(id fleet.InstanceID) {
	c.restarts.WithLabelValues(id.String()).Inc()
}

// Handler returns the /metrics HTTP handler for the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve runs a metrics HTTP server on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, c *Collector) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
