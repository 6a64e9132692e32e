package testutil

import (
	"context"
	"testing"
)

// CleanupFunc stops a component started by Setup.
type CleanupFunc func() error

// Setup starts a test component and returns a cleanup function.
//
//	cleanup, err := testutil.Setup(ctx, scope)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer cleanup()
func Setup(ctx context.Context, component TestComponent) (CleanupFunc, error) {
	if err := component.Start(ctx); err != nil {
		return nil, err
	}

	return func() error {
		return component.Stop(ctx)
	}, nil
}

// THelper binds component operations to a test, failing it on error.
type THelper struct {
	tb  testing.TB
	ctx context.Context
}

// T wraps a testing.TB to provide helper methods.
func T(tb testing.TB) *THelper {
	return &THelper{
		tb:  tb,
		ctx: context.Background(),
	}
}

// WithContext sets a custom context for the helper.
func (h *THelper) WithContext(ctx context.Context) *THelper {
	h.ctx = ctx
	return h
}

// Setup starts a component and registers its Stop with tb.Cleanup.
// A Stop error at cleanup fails the test without aborting other cleanups.
func (h *THelper) Setup(component TestComponent) {
	h.tb.Helper()
	if err := component.Start(h.ctx); err != nil {
		h.tb.Fatalf("failed to start component %s: %v", component.Name(), err)
	}

	h.tb.Cleanup(func() {
		if err := component.Stop(context.WithoutCancel(h.ctx)); err != nil {
			h.tb.Errorf("failed to stop component %s: %v", component.Name(), err)
		}
	})
}

// Reset resets a component to its initial state.
func (h *THelper) Reset(component TestComponent) {
	h.tb.Helper()
	if err := component.Reset(h.ctx); err != nil {
		h.tb.Fatalf("failed to reset component %s: %v", component.Name(), err)
	}
}

// Snapshot captures the current state of a component.
func (h *THelper) Snapshot(component TestComponent) interface{} {
	h.tb.Helper()
	snapshot, err := component.Snapshot(h.ctx)
	if err != nil {
		h.tb.Fatalf("failed to snapshot component %s: %v", component.Name(), err)
	}
	return snapshot
}

// Restore restores a component to a previously captured state.
func (h *THelper) Restore(component TestComponent, snapshot interface{}) {
	h.tb.Helper()
	if err := component.Restore(h.ctx, snapshot); err != nil {
		h.tb.Fatalf("failed to restore component %s: %v", component.Name(), err)
	}
}
