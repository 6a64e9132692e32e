package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/kbukum/dbscope/database"
	"github.com/kbukum/dbscope/database/fixture"
	"github.com/kbukum/dbscope/database/migration"
	"github.com/kbukum/dbscope/logger"
)

// schema creates the tables the fixtures in testdata/fixtures need.
func schema() *migration.Runner {
	return migration.NewRunner(logger.Nop(),
		migration.Migration{ID: "0001_users", Up: func(tx *gorm.DB) error {
			return tx.Exec(`CREATE TABLE users (
				id INTEGER PRIMARY KEY,
				email VARCHAR(255) NOT NULL UNIQUE,
				name VARCHAR(255) NOT NULL DEFAULT ''
			)`).Error
		}},
		migration.Migration{ID: "0002_posts", Up: func(tx *gorm.DB) error {
			return tx.Exec(`CREATE TABLE posts (
				id INTEGER PRIMARY KEY,
				user_id INTEGER NOT NULL REFERENCES users (id),
				title VARCHAR(255) NOT NULL
			)`).Error
		}},
	)
}

func testLoader() *fixture.Loader {
	return &fixture.Loader{Dirs: []string{"testdata/fixtures"}, Logger: logger.Nop()}
}

// sqliteSettings returns settings with a "default" sqlite alias in a fresh
// directory and a "replica" alias mirroring it.
func sqliteSettings(t *testing.T) (*database.Settings, string) {
	t.Helper()
	dir := t.TempDir()
	base := database.Config{Driver: database.DriverSQLite, Name: filepath.Join(dir, "app.db"), LogLevel: "silent"}
	replica := base
	replica.Mirror = "default"
	return database.NewSettings(map[string]database.Config{
		"default": base,
		"replica": replica,
	}), dir
}

// openSchemaDB opens a migrated sqlite database that is not managed by any
// scope.
func openSchemaDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()
	cfg := database.Config{Driver: database.DriverSQLite, Name: filepath.Join(t.TempDir(), "tx.db"), LogLevel: "silent"}
	db, err := database.Open(ctx, cfg, database.NewSQLiteDriver(), logger.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := migration.Apply(ctx, db.GormDB, schema(), logger.Nop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db.GormDB
}

func countRows(t *testing.T, db *gorm.DB, table string) int64 {
	t.Helper()
	n, err := database.CountRows(context.Background(), db, table)
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
