// Package testutil extends the component lifecycle with the hooks test
// suites need: reset between cases, snapshot and restore.
//
// Basic usage with automatic cleanup:
//
//	func TestStore(t *testing.T) {
//	    testutil.T(t).Setup(scope)
//	    // scope is stopped when the test ends
//	}
//
// Managing several scopes together:
//
//	manager := testutil.NewManager()
//	manager.Add(primary)
//	manager.Add(replica)
//	if err := manager.StartAll(ctx); err != nil {
//	    t.Fatal(err)
//	}
//	defer manager.StopAll(ctx)
//
// Manager operations are safe for concurrent use. Individual components are
// not required to be.
package testutil
