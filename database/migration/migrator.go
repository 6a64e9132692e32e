// Package migration brings a database schema up to date before a test
// scope loads its fixtures.
//
// Three Migrator implementations are provided:
//
//   - GolangMigrate applies versioned SQL files through golang-migrate.
//   - Goose applies goose-annotated SQL files through a goose Provider.
//   - Runner applies programmatic GORM migrations tracked in schema_migrations.
//
// Apply runs any of them the same way: it refuses to continue when the
// database holds a migration the source does not know, applies what is
// outstanding, and reports which migrations were already applied and which
// were applied now.
package migration

import (
	"context"

	"gorm.io/gorm"

	"github.com/kbukum/dbscope/errors"
	"github.com/kbukum/dbscope/logger"
)

// Status describes one migration as seen by a Migrator.
type Status struct {
	ID      string
	Applied bool

	// Missing is set for a migration recorded as applied in the database
	// but absent from the migration source.
	Missing bool
}

// Migrator reads and advances the migration state of a database.
type Migrator interface {
	// Status lists every migration known to the source, in order, followed
	// by applied migrations the source does not know.
	Status(ctx context.Context, db *gorm.DB) ([]Status, error)

	// Up applies every outstanding migration and returns their IDs in the
	// order they were applied.
	Up(ctx context.Context, db *gorm.DB) ([]string, error)
}

// Bookkeeper is implemented by migrators that keep their state in tables
// of the migrated database.
type Bookkeeper interface {
	BookkeepingTables() []string
}

// BookkeepingTables returns the tables m keeps its own state in. Such tables
// must survive a data reset.
func BookkeepingTables(m Migrator) []string {
	if b, ok := m.(Bookkeeper); ok {
		return b.BookkeepingTables()
	}
	return nil
}

// Record reports what happened to one migration during Apply.
type Record struct {
	ID             string
	AlreadyApplied bool
	NewlyApplied   bool
}

// Apply brings db up to date with m. It fails with MIGRATION_FAILED, before
// applying anything, when db holds migrations m does not know.
func Apply(ctx context.Context, db *gorm.DB, m Migrator, log *logger.Logger) ([]Record, error) {
	if log == nil {
		log = logger.Get("migration")
	}

	statuses, err := m.Status(ctx, db)
	if err != nil {
		return nil, errors.MigrationFailed("read migration status", err)
	}

	var missing []string
	for _, s := range statuses {
		if s.Missing {
			missing = append(missing, s.ID)
		}
	}
	if len(missing) > 0 {
		return nil, errors.MigrationFailed("database has migrations unknown to the migration source", nil).
			WithDetail("migrations", missing)
	}

	applied, err := m.Up(ctx, db)
	if err != nil {
		return nil, errors.MigrationFailed("apply migrations", err)
	}

	newly := make(map[string]bool, len(applied))
	for _, id := range applied {
		newly[id] = true
	}

	records := make([]Record, 0, len(statuses))
	seen := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		seen[s.ID] = true
		records = append(records, Record{ID: s.ID, AlreadyApplied: s.Applied, NewlyApplied: newly[s.ID]})
	}
	for _, id := range applied {
		if !seen[id] {
			records = append(records, Record{ID: id, NewlyApplied: true})
		}
	}

	log.Debug("Migrations applied", logger.Fields(
		"already_applied", len(records)-len(applied),
		"newly_applied", len(applied),
	))
	return records, nil
}
