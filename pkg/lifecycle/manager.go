// Package lifecycle drives fleet instances through their runtime states:
// Pending -> Starting -> Running, with always-restart supervision and
// bounded backoff on failure.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jihwankim/fleet-utils/pkg/fleet"
	"github.com/jihwankim/fleet-utils/pkg/graph"
	"github.com/jihwankim/fleet-utils/pkg/reporting"
	"github.com/jihwankim/fleet-utils/pkg/statedir"
)

// Config contains the manager's supervision settings.
type Config struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	HealthyReset   time.Duration
	StartTimeout   time.Duration
	StopTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 1 * time.Second
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = 1 * time.Minute
	}
	if c.HealthyReset <= 0 {
		c.HealthyReset = 2 * time.Minute
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = 2 * time.Minute
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 30 * time.Second
	}
	return c
}

// Observer receives state transition notifications, e.g. for metrics.
type Observer interface {
	ObserveState(id fleet.InstanceID, state fleet.State, at time.Time)
	ObserveRestart(id fleet.InstanceID)
}

// record tracks one instance's runtime state. Mutated only under the
// manager's mutex.
type record struct {
	inst     *fleet.Instance
	state    fleet.State
	since    time.Time
	reason   string
	handle   string
	restarts int
	bo       *backoff
	claimed  bool
}

// Manager starts, supervises, and stops the instances of one fleet plan.
// The orchestration loop is the single writer of instance state; status
// queries read a snapshot and may run concurrently.
type Manager struct {
	cfg     Config
	runtime Runtime
	states  *statedir.Allocator
	log     *reporting.Logger

	observer Observer

	mu      sync.Mutex
	records map[fleet.InstanceID]*record
	order   []fleet.InstanceID
	notify  chan struct{}
}

// New creates a manager.
func New(cfg Config, rt Runtime, states *statedir.Allocator, log *reporting.Logger) *Manager {
	return &Manager{
		cfg:     cfg.withDefaults(),
		runtime: rt,
		states:  states,
		log:     log,
		records: make(map[fleet.InstanceID]*record),
		notify:  make(chan struct{}),
	}
}

// SetObserver attaches a state observer. Must be called before Run.
func (m *Manager) SetObserver(o Observer) {
	m.observer = o
}

// Run starts every instance in dependency order and supervises the fleet
// until ctx is cancelled, then stops all instances in reverse start order.
// Instances with no ordering constraint between them start concurrently;
// an instance enters Starting only once all its dependencies are Running.
//
// Cancellation never interrupts an in-flight start: the attempt runs to
// completion (or failure) and the instance is then stopped during
// teardown.
func (m *Manager) Run(ctx context.Context, instances []*fleet.Instance, g *graph.Graph) error {
	m.mu.Lock()
	m.order = g.TopoOrder()
	now := time.Now()
	for _, inst := range instances {
		m.records[inst.ID] = &record{
			inst:  inst,
			state: fleet.StatePending,
			since: now,
			bo:    newBackoff(m.cfg.InitialBackoff, m.cfg.MaxBackoff, m.cfg.HealthyReset),
		}
	}
	m.mu.Unlock()

	eg, egCtx := errgroup.WithContext(ctx)
	for _, inst := range instances {
		rec := m.records[inst.ID]
		eg.Go(func() error {
			m.supervise(egCtx, rec)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	// Teardown runs with a fresh context so a cancelled run still stops
	// cleanly.
	stopCtx, cancel := context.WithTimeout(context.Background(), m.cfg.StopTimeout*time.Duration(len(instances)+1))
	defer cancel()
	m.StopAll(stopCtx)
	return nil
}

// supervise is the per-instance restart loop. It exits only when ctx is
// cancelled or the instance hits an unrecoverable local error (state
// directory ownership conflict).
func (m *Manager) supervise(ctx context.Context, rec *record) {
	log := m.log.WithInstance(rec.inst.ID)

	for {
		if err := m.awaitDependencies(ctx, rec); err != nil {
			return
		}

		if !rec.claimed {
			if _, err := m.states.Claim(rec.inst.ID); err != nil {
				log.Error("State directory claim failed, not restarting", "error", err)
				m.setState(rec, fleet.StateFailed, err.Error())
				return
			}
			rec.claimed = true
		}

		m.setState(rec, fleet.StateStarting, "")
		log.Info("Starting instance", "image", rec.inst.Image)

		// The start attempt is detached from the run context so
		// cancellation cannot leave the instance mid-transition.
		startCtx, cancel := context.WithTimeout(context.Background(), m.cfg.StartTimeout)
		handle, err := m.runtime.Start(startCtx, rec.inst)
		cancel()

		if err != nil {
			reason := fmt.Sprintf("start failed: %v", err)
			log.Error("Instance failed to start", "error", err)
			m.setState(rec, fleet.StateFailed, reason)
			if !m.backoffAndReschedule(ctx, rec, reason) {
				return
			}
			continue
		}

		m.mu.Lock()
		rec.handle = handle
		m.mu.Unlock()
		m.setState(rec, fleet.StateRunning, "")
		log.Info("Instance running", "handle", handle)
		healthyAt := time.Now()

		code, err := m.runtime.Wait(ctx, handle)
		if ctx.Err() != nil {
			// Run teardown will stop the still-running instance.
			return
		}

		rec.bo.observeRun(time.Since(healthyAt))

		reason := fmt.Sprintf("exited with code %d", code)
		if err != nil {
			reason = fmt.Sprintf("wait failed: %v", err)
		}
		log.Warn("Instance terminated unexpectedly", "reason", reason)
		m.setState(rec, fleet.StateFailed, reason)
		if !m.backoffAndReschedule(ctx, rec, reason) {
			return
		}
	}
}

// backoffAndReschedule applies the restart delay and moves the instance
// back to Pending. Returns false when ctx was cancelled during the delay.
func (m *Manager) backoffAndReschedule(ctx context.Context, rec *record, cause string) bool {
	delay := rec.bo.next()
	m.setState(rec, fleet.StatePending, fmt.Sprintf("restarting in %s after: %s", delay, cause))
	if !sleep(ctx, delay) {
		return false
	}

	m.mu.Lock()
	rec.restarts++
	m.mu.Unlock()
	if m.observer != nil {
		m.observer.ObserveRestart(rec.inst.ID)
	}
	return true
}

// awaitDependencies blocks until every dependency of rec is Running,
// recording the blocking reason while waiting. A crash-looping dependency
// keeps the instance Pending, never Failed.
func (m *Manager) awaitDependencies(ctx context.Context, rec *record) error {
	for {
		m.mu.Lock()
		blocked := ""
		for _, dep := range rec.inst.DependsOn {
			depRec, ok := m.records[dep]
			if !ok {
				// Graph construction guarantees declared deps; treat a
				// missing record as permanently blocking.
				blocked = fmt.Sprintf("waiting for dependency %s (unknown)", dep)
				break
			}
			if depRec.state != fleet.StateRunning {
				blocked = fmt.Sprintf("waiting for dependency %s (%s)", dep, depRec.state)
				break
			}
		}
		if blocked == "" {
			m.mu.Unlock()
			return nil
		}
		if rec.reason != blocked {
			rec.reason = blocked
		}
		ch := m.notify
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// setState records a transition and wakes every supervisor waiting on a
// dependency change.
func (m *Manager) setState(rec *record, state fleet.State, reason string) {
	m.mu.Lock()
	rec.state = state
	rec.since = time.Now()
	rec.reason = reason
	close(m.notify)
	m.notify = make(chan struct{})
	at := rec.since
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.ObserveState(rec.inst.ID, state, at)
	}
}

// StopAll stops every instance in reverse start order: dependents are
// stopped before their dependencies.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	order := make([]fleet.InstanceID, len(m.order))
	copy(order, m.order)
	m.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		m.mu.Lock()
		rec, ok := m.records[order[i]]
		if !ok {
			m.mu.Unlock()
			continue
		}
		handle := rec.handle
		running := rec.state == fleet.StateRunning || rec.state == fleet.StateStarting
		m.mu.Unlock()

		if running && handle != "" {
			if err := m.runtime.Stop(ctx, handle, m.cfg.StopTimeout); err != nil {
				m.log.WithInstance(rec.inst.ID).Warn("Failed to stop instance", "error", err)
			}
		}
		m.setState(rec, fleet.StateStopped, "")
	}
}

// Status returns a snapshot of every instance's state in start order.
func (m *Manager) Status() []fleet.Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make([]fleet.Status, 0, len(m.order))
	for _, id := range m.order {
		rec, ok := m.records[id]
		if !ok {
			continue
		}
		statuses = append(statuses, fleet.Status{
			ID:       rec.inst.ID,
			Role:     rec.inst.Role,
			Chain:    rec.inst.Chain.Name,
			State:    rec.state,
			StateStr: rec.state.String(),
			Since:    rec.since,
			Reason:   rec.reason,
			Restarts: rec.restarts,
		})
	}
	return statuses
}

// sleep waits for d or until ctx is cancelled. Returns false on
// cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
