package testutil_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kbukum/dbscope/component"
	"github.com/kbukum/dbscope/testutil"
)

type mockComponent struct {
	name     string
	startErr error
	stopErr  error
	resetErr error

	started bool
	starts  int
	stops   int
	resets  int
	state   int
	stopped *[]string
}

func newMockComponent(name string) *mockComponent {
	return &mockComponent{name: name}
}

func (m *mockComponent) Name() string { return m.name }

func (m *mockComponent) Start(context.Context) error {
	m.starts++
	if m.startErr != nil {
		return m.startErr
	}
	m.started = true
	return nil
}

func (m *mockComponent) Stop(context.Context) error {
	m.stops++
	m.started = false
	if m.stopped != nil {
		*m.stopped = append(*m.stopped, m.name)
	}
	return m.stopErr
}

func (m *mockComponent) Health(context.Context) component.Health {
	status := component.StatusUnhealthy
	if m.started {
		status = component.StatusHealthy
	}
	return component.Health{Name: m.name, Status: status}
}

func (m *mockComponent) Reset(context.Context) error {
	m.resets++
	if m.resetErr != nil {
		return m.resetErr
	}
	m.state = 0
	return nil
}

func (m *mockComponent) Snapshot(context.Context) (interface{}, error) {
	return m.state, nil
}

func (m *mockComponent) Restore(_ context.Context, snapshot interface{}) error {
	v, ok := snapshot.(int)
	if !ok {
		return errors.New("bad snapshot")
	}
	m.state = v
	return nil
}

func TestSetup(t *testing.T) {
	comp := newMockComponent("db")
	cleanup, err := testutil.Setup(context.Background(), comp)
	if err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}
	if !comp.Health(context.Background()).Healthy() {
		t.Error("component should be healthy after Setup")
	}
	if err := cleanup(); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if comp.stops != 1 {
		t.Errorf("expected 1 stop, got %d", comp.stops)
	}
}

func TestSetupStartError(t *testing.T) {
	comp := newMockComponent("db")
	comp.startErr = errors.New("no server")

	cleanup, err := testutil.Setup(context.Background(), comp)
	if err == nil {
		t.Fatal("expected start error")
	}
	if cleanup != nil {
		t.Error("cleanup must be nil when start fails")
	}
}

func TestTHelperSetupRegistersCleanup(t *testing.T) {
	comp := newMockComponent("db")

	t.Run("inner", func(t *testing.T) {
		testutil.T(t).Setup(comp)
		if comp.stops != 0 {
			t.Fatal("component stopped too early")
		}
	})

	if comp.stops != 1 {
		t.Errorf("expected cleanup to stop the component once, got %d", comp.stops)
	}
}

func TestTHelperSnapshotRestoreReset(t *testing.T) {
	comp := newMockComponent("db")
	h := testutil.T(t)
	h.Setup(comp)

	comp.state = 5
	snap := h.Snapshot(comp)
	comp.state = 9
	h.Restore(comp, snap)
	if comp.state != 5 {
		t.Errorf("expected restored state 5, got %d", comp.state)
	}

	h.Reset(comp)
	if comp.state != 0 || comp.resets != 1 {
		t.Errorf("expected reset to clear state, got state=%d resets=%d", comp.state, comp.resets)
	}
}

func TestManagerStartStopOrder(t *testing.T) {
	ctx := context.Background()
	var order []string
	manager := testutil.NewManager()
	for _, name := range []string{"primary", "replica", "cache"} {
		c := newMockComponent(name)
		c.stopped = &order
		manager.Add(c)
	}

	if err := manager.StartAll(ctx); err != nil {
		t.Fatalf("StartAll() failed: %v", err)
	}
	if len(manager.Components()) != 3 {
		t.Fatalf("expected 3 components, got %d", len(manager.Components()))
	}
	if err := manager.StopAll(ctx); err != nil {
		t.Fatalf("StopAll() failed: %v", err)
	}

	want := "cache,replica,primary"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("stop order = %s, want %s", got, want)
	}

	if err := manager.StopAll(ctx); err != nil {
		t.Fatalf("second StopAll() failed: %v", err)
	}
	if len(order) != 3 {
		t.Errorf("second StopAll must not stop anything again, got %v", order)
	}
}

func TestManagerStartFailureStopsStarted(t *testing.T) {
	ctx := context.Background()
	var order []string
	first := newMockComponent("first")
	first.stopped = &order
	broken := newMockComponent("broken")
	broken.startErr = errors.New("create failed")
	never := newMockComponent("never")

	manager := testutil.NewManager()
	manager.Add(first)
	manager.Add(broken)
	manager.Add(never)

	err := manager.StartAll(ctx)
	if err == nil || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("expected start error naming the component, got %v", err)
	}
	if !errors.Is(err, broken.startErr) {
		t.Error("start error should wrap the component error")
	}
	if first.stops != 1 {
		t.Errorf("started component should be stopped, stops=%d", first.stops)
	}
	if never.starts != 0 {
		t.Error("components after the failure must not start")
	}
}

func TestManagerStopAllJoinsErrors(t *testing.T) {
	ctx := context.Background()
	a := newMockComponent("a")
	a.stopErr = errors.New("a failed")
	b := newMockComponent("b")
	b.stopErr = errors.New("b failed")

	manager := testutil.NewManager()
	manager.Add(a)
	manager.Add(b)
	if err := manager.StartAll(ctx); err != nil {
		t.Fatalf("StartAll() failed: %v", err)
	}

	err := manager.StopAll(ctx)
	if !errors.Is(err, a.stopErr) || !errors.Is(err, b.stopErr) {
		t.Errorf("expected both stop errors, got %v", err)
	}
	if a.stops != 1 || b.stops != 1 {
		t.Error("every component must be stopped")
	}
}

func TestManagerGetAndResetAll(t *testing.T) {
	ctx := context.Background()
	a := newMockComponent("a")
	manager := testutil.NewManager()
	manager.Add(a)

	if manager.Get("a") != a {
		t.Error("Get should find the component")
	}
	if manager.Get("missing") != nil {
		t.Error("Get should return nil for unknown names")
	}

	if err := manager.ResetAll(ctx); err != nil {
		t.Fatalf("ResetAll() failed: %v", err)
	}
	if a.resets != 0 {
		t.Error("components that are not started are not reset")
	}

	if err := manager.StartAll(ctx); err != nil {
		t.Fatalf("StartAll() failed: %v", err)
	}
	a.resetErr = errors.New("truncate failed")
	if err := manager.ResetAll(ctx); err == nil {
		t.Error("expected reset error")
	}
}
