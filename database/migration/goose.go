package migration

import (
	"context"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

// gooseTable is the version table goose keeps by default.
const gooseTable = "goose_db_version"

// Goose applies goose-annotated SQL migrations found at the root of fsys.
// Migration IDs are the decimal versions.
type Goose struct {
	dialect goose.Dialect
	fsys    fs.FS
}

// NewGoose reads migrations from fsys. An empty dialect is chosen from the
// database being migrated.
func NewGoose(dialect goose.Dialect, fsys fs.FS) *Goose {
	return &Goose{dialect: dialect, fsys: fsys}
}

// BookkeepingTables implements Bookkeeper.
func (g *Goose) BookkeepingTables() []string {
	return []string{gooseTable}
}

// Status implements Migrator.
func (g *Goose) Status(ctx context.Context, db *gorm.DB) ([]Status, error) {
	p, err := g.provider(db)
	if err != nil {
		return nil, err
	}

	results, err := p.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose status: %w", err)
	}
	current, err := p.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose version: %w", err)
	}

	statuses := make([]Status, 0, len(results)+1)
	known := current == 0
	for _, r := range results {
		statuses = append(statuses, Status{
			ID:      formatGooseVersion(r.Source.Version),
			Applied: r.State == goose.StateApplied,
		})
		if r.Source.Version == current {
			known = true
		}
	}
	if !known {
		statuses = append(statuses, Status{ID: formatGooseVersion(current), Applied: true, Missing: true})
	}
	return statuses, nil
}

// Up implements Migrator.
func (g *Goose) Up(ctx context.Context, db *gorm.DB) ([]string, error) {
	p, err := g.provider(db)
	if err != nil {
		return nil, err
	}

	results, err := p.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("goose up: %w", err)
	}
	applied := make([]string, 0, len(results))
	for _, r := range results {
		applied = append(applied, formatGooseVersion(r.Source.Version))
	}
	return applied, nil
}

// provider builds a goose Provider on the sql.DB behind db. The provider is
// never closed: closing it would close the shared sql.DB.
func (g *Goose) provider(db *gorm.DB) (*goose.Provider, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	dialect := g.dialect
	if dialect == "" {
		if dialect, err = gooseDialect(db.Dialector.Name()); err != nil {
			return nil, err
		}
	}

	p, err := goose.NewProvider(dialect, sqlDB, g.fsys)
	if err != nil {
		return nil, fmt.Errorf("create goose provider: %w", err)
	}
	return p, nil
}

func gooseDialect(name string) (goose.Dialect, error) {
	switch name {
	case "sqlite":
		return goose.DialectSQLite3, nil
	case "postgres":
		return goose.DialectPostgres, nil
	}
	return "", fmt.Errorf("no goose dialect for %q", name)
}

func formatGooseVersion(v int64) string {
	return strconv.FormatInt(v, 10)
}
