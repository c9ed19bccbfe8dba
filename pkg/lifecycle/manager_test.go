package lifecycle

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jihwankim/fleet-utils/pkg/fleet"
	"github.com/jihwankim/fleet-utils/pkg/graph"
	"github.com/jihwankim/fleet-utils/pkg/reporting"
	"github.com/jihwankim/fleet-utils/pkg/statedir"
)

// fakeRuntime is an in-memory Runtime. Instances run until the context is
// cancelled unless an exit code was queued for them.
type fakeRuntime struct {
	mu        sync.Mutex
	starts    []fleet.InstanceID
	stops     []fleet.InstanceID
	failStart map[fleet.InstanceID]error
	exits     map[fleet.InstanceID]chan int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		failStart: make(map[fleet.InstanceID]error),
		exits:     make(map[fleet.InstanceID]chan int),
	}
}

func (f *fakeRuntime) Start(ctx context.Context, inst *fleet.Instance) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failStart[inst.ID]; err != nil {
		return "", err
	}
	f.starts = append(f.starts, inst.ID)
	return string(inst.ID), nil
}

func (f *fakeRuntime) Wait(ctx context.Context, handle string) (int, error) {
	f.mu.Lock()
	ch := f.exits[fleet.InstanceID(handle)]
	f.mu.Unlock()

	if ch == nil {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	select {
	case code := <-ch:
		return code, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (f *fakeRuntime) Stop(ctx context.Context, handle string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, fleet.InstanceID(handle))
	return nil
}

func (f *fakeRuntime) started() []fleet.InstanceID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fleet.InstanceID(nil), f.starts...)
}

func (f *fakeRuntime) stopped() []fleet.InstanceID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fleet.InstanceID(nil), f.stops...)
}

func testLogger() *reporting.Logger {
	return reporting.NewLogger(reporting.LoggerConfig{
		Level:  reporting.LogLevelError,
		Format: reporting.LogFormatJSON,
		Output: io.Discard,
	})
}

func testInstances(t *testing.T, specs ...*fleet.Instance) ([]*fleet.Instance, *graph.Graph) {
	t.Helper()
	g, err := graph.Build(specs)
	require.NoError(t, err)
	return specs, g
}

func makeInst(role fleet.Role, chain string) *fleet.Instance {
	return &fleet.Instance{
		ID:    fleet.MakeID(role, chain, 0),
		Role:  role,
		Chain: fleet.Chain{Name: chain},
		Image: "raidennetwork/raiden-services:stable",
	}
}

func stateByID(statuses []fleet.Status) map[fleet.InstanceID]fleet.Status {
	m := make(map[fleet.InstanceID]fleet.Status, len(statuses))
	for _, st := range statuses {
		m[st.ID] = st
	}
	return m
}

func TestRunStartsDependenciesFirst(t *testing.T) {
	rt := newFakeRuntime()
	instances, g := testInstances(t,
		makeInst(fleet.RoleMonitoring, "ropsten"),
		makeInst(fleet.RoleRequestCollector, "ropsten"),
	)

	m := New(Config{}, rt, statedir.New(t.TempDir()), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, instances, g) }()

	require.Eventually(t, func() bool {
		return len(rt.started()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	starts := rt.started()
	assert.Equal(t, []fleet.InstanceID{"ms-ropsten", "msrc-ropsten"}, starts)

	cancel()
	require.NoError(t, <-done)
}

func TestRunStopsInReverseOrder(t *testing.T) {
	rt := newFakeRuntime()
	instances, g := testInstances(t,
		makeInst(fleet.RoleMonitoring, "ropsten"),
		makeInst(fleet.RoleRequestCollector, "ropsten"),
	)

	m := New(Config{}, rt, statedir.New(t.TempDir()), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, instances, g) }()

	require.Eventually(t, func() bool {
		return len(rt.started()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []fleet.InstanceID{"msrc-ropsten", "ms-ropsten"}, rt.stopped(),
		"dependents stop before their dependencies")

	for _, st := range m.Status() {
		assert.Equal(t, fleet.StateStopped, st.State, "instance %s", st.ID)
	}
}

func TestRunIndependentInstancesAllStart(t *testing.T) {
	rt := newFakeRuntime()
	instances, g := testInstances(t,
		makeInst(fleet.RolePathfinding, "ropsten"),
		makeInst(fleet.RolePathfinding, "goerli"),
		makeInst(fleet.RoleMonitoring, "ropsten"),
	)

	m := New(Config{}, rt, statedir.New(t.TempDir()), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, instances, g) }()

	require.Eventually(t, func() bool {
		return len(rt.started()) == 3
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestCrashLoopingDependencyKeepsDependentPending(t *testing.T) {
	rt := newFakeRuntime()
	rt.failStart["ms-ropsten"] = errors.New("image pull failed")

	instances, g := testInstances(t,
		makeInst(fleet.RoleMonitoring, "ropsten"),
		makeInst(fleet.RoleRequestCollector, "ropsten"),
	)

	// Long backoff keeps the failed dependency parked for the whole test.
	m := New(Config{InitialBackoff: time.Hour, MaxBackoff: time.Hour}, rt, statedir.New(t.TempDir()), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, instances, g) }()

	require.Eventually(t, func() bool {
		st := stateByID(m.Status())
		msrc, ok := st["msrc-ropsten"]
		return ok && strings.Contains(msrc.Reason, "waiting for dependency ms-ropsten")
	}, 5*time.Second, 10*time.Millisecond)

	st := stateByID(m.Status())
	assert.Equal(t, fleet.StatePending, st["msrc-ropsten"].State,
		"a blocked dependent stays Pending, never Failed")
	assert.Empty(t, rt.started())

	cancel()
	require.NoError(t, <-done)
}

func TestInstanceRestartsAfterExit(t *testing.T) {
	rt := newFakeRuntime()
	inst := makeInst(fleet.RolePathfinding, "ropsten")
	exits := make(chan int, 1)
	exits <- 1
	rt.exits[inst.ID] = exits

	instances, g := testInstances(t, inst)

	m := New(Config{InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}, rt, statedir.New(t.TempDir()), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, instances, g) }()

	// First run exits with code 1, the supervisor backs off and starts it
	// again; the second run blocks until cancellation.
	require.Eventually(t, func() bool {
		return len(rt.started()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		st := stateByID(m.Status())
		return st[inst.ID].State == fleet.StateRunning && st[inst.ID].Restarts == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestFailedStartIsRetried(t *testing.T) {
	rt := newFakeRuntime()
	inst := makeInst(fleet.RoleMonitoring, "ropsten")
	rt.failStart[inst.ID] = errors.New("no such image")

	instances, g := testInstances(t, inst)

	m := New(Config{InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}, rt, statedir.New(t.TempDir()), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, instances, g) }()

	require.Eventually(t, func() bool {
		st := stateByID(m.Status())
		return st[inst.ID].Restarts >= 2
	}, 5*time.Second, 10*time.Millisecond)

	// Let it recover and reach Running.
	rt.mu.Lock()
	delete(rt.failStart, inst.ID)
	rt.mu.Unlock()

	require.Eventually(t, func() bool {
		return stateByID(m.Status())[inst.ID].State == fleet.StateRunning
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestStateClaimConflictIsPermanent(t *testing.T) {
	rt := newFakeRuntime()
	inst := makeInst(fleet.RolePathfinding, "ropsten")
	instances, g := testInstances(t, inst)

	states := statedir.New(t.TempDir())
	// Poison the state directory with a foreign owner.
	_, err := states.Claim("someone-else")
	require.NoError(t, err)
	require.NoError(t, os.Rename(states.Dir("someone-else"), states.Dir(inst.ID)))

	m := New(Config{InitialBackoff: time.Millisecond}, rt, states, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, instances, g) }()

	require.Eventually(t, func() bool {
		return stateByID(m.Status())[inst.ID].State == fleet.StateFailed
	}, 5*time.Second, 10*time.Millisecond)

	// No restart: the ownership conflict needs operator intervention.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rt.started())

	cancel()
	require.NoError(t, <-done)
}

func TestStatusKeepsStartOrder(t *testing.T) {
	rt := newFakeRuntime()
	instances, g := testInstances(t,
		makeInst(fleet.RoleMonitoring, "ropsten"),
		makeInst(fleet.RoleRequestCollector, "ropsten"),
		makeInst(fleet.RolePathfinding, "ropsten"),
	)

	m := New(Config{}, rt, statedir.New(t.TempDir()), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, instances, g) }()

	require.Eventually(t, func() bool {
		return len(m.Status()) == 3
	}, 5*time.Second, 10*time.Millisecond)

	var got []fleet.InstanceID
	for _, st := range m.Status() {
		got = append(got, st.ID)
	}
	assert.Equal(t, g.TopoOrder(), got)

	cancel()
	require.NoError(t, <-done)
}
