package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kbukum/dbscope/errors"
)

// sqliteSidecars are the files SQLite keeps next to a database file.
var sqliteSidecars = []string{"-wal", "-shm", "-journal"}

// SQLiteDriver treats every database file as a separate database.
type SQLiteDriver struct{}

// NewSQLiteDriver returns the sqlite driver.
func NewSQLiteDriver() *SQLiteDriver {
	return &SQLiteDriver{}
}

// Name implements Driver.
func (d *SQLiteDriver) Name() string { return DriverSQLite }

// Dialector implements Driver.
func (d *SQLiteDriver) Dialector(cfg Config) gorm.Dialector {
	return sqlite.Open(SQLiteDSN(cfg.Name))
}

// TemporaryConfig implements Driver. The temporary file is placed next to
// the base database file, or in the OS temp dir for in-memory bases.
func (d *SQLiteDriver) TemporaryConfig(base Config, name string) Config {
	dir := os.TempDir()
	if path, memory := sqlitePath(base.Name); !memory {
		dir = filepath.Dir(path)
	}
	tmp := base
	tmp.Name = filepath.Join(dir, name+".db")
	tmp.Mirror = ""
	return tmp
}

// CreateDatabase implements Driver. An empty file is a valid empty SQLite
// database.
func (d *SQLiteDriver) CreateDatabase(_ context.Context, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Name), 0o755); err != nil {
		return errors.DatabaseError(err).WithDetail("database", cfg.Name)
	}
	f, err := os.OpenFile(cfg.Name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return errors.AlreadyExists("database " + cfg.Name).WithCause(err)
		}
		return errors.DatabaseError(err).WithDetail("database", cfg.Name)
	}
	return f.Close()
}

// DropDatabase implements Driver.
func (d *SQLiteDriver) DropDatabase(_ context.Context, cfg Config) error {
	if err := os.Remove(cfg.Name); err != nil {
		if os.IsNotExist(err) {
			return errors.NotFound("database", cfg.Name).WithCause(err)
		}
		return errors.DatabaseError(err).WithDetail("database", cfg.Name)
	}
	for _, suffix := range sqliteSidecars {
		if err := os.Remove(cfg.Name + suffix); err != nil && !os.IsNotExist(err) {
			return errors.DatabaseError(err).WithDetail("database", cfg.Name+suffix)
		}
	}
	return nil
}

// sqlitePath returns the file behind a database name, which may be a plain
// path or a "file:" URI. memory is true for in-memory databases.
func sqlitePath(name string) (path string, memory bool) {
	if name == "" || strings.Contains(name, ":memory:") || strings.Contains(name, "mode=memory") {
		return "", true
	}
	path = strings.TrimPrefix(name, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path, false
}

// SQLiteDSN returns the connection string for the database file at path.
// In-memory names and "file:" URIs are used as given.
func SQLiteDSN(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL", path)
}
