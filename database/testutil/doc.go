// Package testutil provides database scopes for tests.
//
// A TemporaryDatabase creates a fresh database next to the one each of its
// aliases points at, points the aliases (and every alias mirroring them) at
// the new databases, migrates them and loads fixtures. Aliases that reach the
// same database share one temporary database, and databases are created in
// the order Dependencies requires. Stopping it drops the databases in reverse
// order and restores the aliases exactly.
//
// A Transactionless scope runs test code inside a transaction that is
// always rolled back. Opened on a handle that is already inside a
// transaction, it uses a savepoint, so scopes nest.
// To roll back several databases together, open one scope per handle, for
// example per TemporaryDatabase.DBFor alias, and stop them through a
// testutil.Manager.
//
// Both implement component.Component and testutil.TestComponent, and each
// comes in three forms:
//
//	// explicit
//	tdb := testutil.NewTemporaryDatabase(opts)
//	if err := tdb.Start(ctx); err != nil { ... }
//	defer tdb.Stop(ctx)
//
//	// scoped
//	err := testutil.WithTemporaryDatabase(ctx, opts, func(ctx context.Context, tdb *testutil.TemporaryDatabase) error {
//	    return run(tdb.DB())
//	})
//
//	// bound to a test
//	tx := testutil.TransactionlessT(t, testutil.TemporaryDatabaseT(t, opts).DB(), testutil.TransactionlessOptions{
//	    Fixtures: []string{"users"},
//	})
//
// # Configuration
//
// LoadConfig reads dbscope.yml (see FileConfig) and the environment;
// FileConfig.Apply registers the configured aliases in a database.Settings.
//
// Neither scope guards against being nested inside the other. Running a
// TemporaryDatabase inside a Transactionless scope, or the reverse, works
// on separate connections and is not coordinated.
package testutil
