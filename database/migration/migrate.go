package migration

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

// migrateTable is the version table golang-migrate keeps by default.
const migrateTable = "schema_migrations"

// DriverFunc creates a golang-migrate database driver on top of an open
// sql.DB.
type DriverFunc func(*sql.DB) (migratedb.Driver, error)

// SQLiteDriver returns a DriverFunc for SQLite databases.
func SQLiteDriver() DriverFunc {
	return func(db *sql.DB) (migratedb.Driver, error) {
		return sqlite3.WithInstance(db, &sqlite3.Config{})
	}
}

// PostgresDriver returns a DriverFunc for PostgreSQL databases.
func PostgresDriver() DriverFunc {
	return func(db *sql.DB) (migratedb.Driver, error) {
		return migratepgx.WithInstance(db, &migratepgx.Config{})
	}
}

// DriverFor returns the DriverFunc matching a GORM dialector name.
func DriverFor(dialect string) (DriverFunc, error) {
	switch dialect {
	case "sqlite":
		return SQLiteDriver(), nil
	case "postgres":
		return PostgresDriver(), nil
	}
	return nil, fmt.Errorf("no golang-migrate driver for dialect %q", dialect)
}

// GolangMigrate applies versioned SQL migrations with golang-migrate.
// Files follow golang-migrate naming: VERSION_name.up.sql and
// VERSION_name.down.sql. Migration IDs are the decimal versions.
type GolangMigrate struct {
	fsys   fs.FS
	path   string
	driver DriverFunc
}

// NewGolangMigrate reads migrations from path inside fsys. A nil driver is
// chosen from the dialect of the database being migrated.
func NewGolangMigrate(fsys fs.FS, path string, driver DriverFunc) *GolangMigrate {
	return &GolangMigrate{fsys: fsys, path: path, driver: driver}
}

// BookkeepingTables implements Bookkeeper.
func (g *GolangMigrate) BookkeepingTables() []string {
	return []string{migrateTable}
}

// Status implements Migrator. golang-migrate only records the current
// version, so every source version up to it counts as applied.
func (g *GolangMigrate) Status(_ context.Context, db *gorm.DB) ([]Status, error) {
	m, src, err := g.open(db)
	if err != nil {
		return nil, err
	}

	versions, err := sourceVersions(src)
	if err != nil {
		return nil, err
	}
	current, err := currentVersion(m)
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, 0, len(versions)+1)
	known := false
	for _, v := range versions {
		applied := current >= 0 && v <= uint(current)
		statuses = append(statuses, Status{ID: formatVersion(v), Applied: applied})
		if current >= 0 && v == uint(current) {
			known = true
		}
	}
	if current >= 0 && !known {
		statuses = append(statuses, Status{ID: formatVersion(uint(current)), Applied: true, Missing: true})
	}
	return statuses, nil
}

// Up implements Migrator.
func (g *GolangMigrate) Up(_ context.Context, db *gorm.DB) ([]string, error) {
	m, src, err := g.open(db)
	if err != nil {
		return nil, err
	}

	before, err := currentVersion(m)
	if err != nil {
		return nil, err
	}
	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("migrate up: %w", err)
	}
	after, err := currentVersion(m)
	if err != nil {
		return nil, err
	}

	versions, err := sourceVersions(src)
	if err != nil {
		return nil, err
	}
	var applied []string
	for _, v := range versions {
		if int64(v) > before && int64(v) <= after {
			applied = append(applied, formatVersion(v))
		}
	}
	return applied, nil
}

// open creates a golang-migrate instance on the sql.DB behind db. The
// instance is never closed: closing it would close the shared sql.DB.
func (g *GolangMigrate) open(db *gorm.DB) (*migrate.Migrate, source.Driver, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("get sql.DB: %w", err)
	}

	driverFunc := g.driver
	if driverFunc == nil {
		if driverFunc, err = DriverFor(db.Dialector.Name()); err != nil {
			return nil, nil, err
		}
	}
	driver, err := driverFunc(sqlDB)
	if err != nil {
		return nil, nil, fmt.Errorf("create database driver: %w", err)
	}

	src, err := iofs.New(g.fsys, g.path)
	if err != nil {
		return nil, nil, fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, db.Dialector.Name(), driver)
	if err != nil {
		return nil, nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, src, nil
}

// currentVersion returns the applied version, or -1 when nothing is applied.
func currentVersion(m *migrate.Migrate) (int64, error) {
	v, dirty, err := m.Version()
	if stderrors.Is(err, migrate.ErrNilVersion) {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return 0, fmt.Errorf("database is dirty at migration version %d", v)
	}
	return int64(v), nil
}

func sourceVersions(src source.Driver) ([]uint, error) {
	v, err := src.First()
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read migration source: %w", err)
	}

	versions := []uint{v}
	for {
		next, err := src.Next(v)
		if stderrors.Is(err, fs.ErrNotExist) {
			return versions, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read migration source: %w", err)
		}
		versions = append(versions, next)
		v = next
	}
}

func formatVersion(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
