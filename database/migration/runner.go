package migration

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kbukum/dbscope/logger"
)

// runnerTable records the migrations a Runner has applied.
const runnerTable = "schema_migrations"

// Migration describes a single GORM-based schema migration.
type Migration struct {
	ID          string
	Description string
	Up          func(*gorm.DB) error
}

type appliedMigration struct {
	ID        string `gorm:"primaryKey;size:255"`
	AppliedAt time.Time
}

func (appliedMigration) TableName() string { return runnerTable }

// Runner applies GORM-based migrations in registration order, each in its
// own transaction together with its schema_migrations row.
type Runner struct {
	log        *logger.Logger
	migrations []Migration
}

// NewRunner creates a runner for the given migrations.
func NewRunner(log *logger.Logger, migrations ...Migration) *Runner {
	if log == nil {
		log = logger.Get("migration")
	}
	return &Runner{log: log, migrations: migrations}
}

// Add registers a migration to be applied after the existing ones.
func (r *Runner) Add(m Migration) {
	r.migrations = append(r.migrations, m)
}

// BookkeepingTables implements Bookkeeper.
func (r *Runner) BookkeepingTables() []string {
	return []string{runnerTable}
}

// Status implements Migrator.
func (r *Runner) Status(ctx context.Context, db *gorm.DB) ([]Status, error) {
	applied, err := r.applied(ctx, db)
	if err != nil {
		return nil, err
	}

	statuses := make([]Status, 0, len(r.migrations))
	known := make(map[string]bool, len(r.migrations))
	for _, m := range r.migrations {
		known[m.ID] = true
		statuses = append(statuses, Status{ID: m.ID, Applied: applied[m.ID]})
	}
	var rows []appliedMigration
	if len(applied) > 0 {
		if err := db.WithContext(ctx).Order("applied_at, id").Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("read applied migrations: %w", err)
		}
	}
	for _, row := range rows {
		if !known[row.ID] {
			statuses = append(statuses, Status{ID: row.ID, Applied: true, Missing: true})
		}
	}
	return statuses, nil
}

// Up implements Migrator.
func (r *Runner) Up(ctx context.Context, db *gorm.DB) ([]string, error) {
	db = db.WithContext(ctx)
	if err := db.AutoMigrate(&appliedMigration{}); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := r.applied(ctx, db)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, m := range r.migrations {
		if applied[m.ID] {
			r.log.Debug("Migration already applied", logger.Fields(logger.FieldMigration, m.ID))
			continue
		}

		r.log.Info("Applying migration", logger.Fields(
			logger.FieldMigration, m.ID,
			"description", m.Description,
		))

		if err := db.Transaction(func(tx *gorm.DB) error {
			if m.Up != nil {
				if err := m.Up(tx); err != nil {
					return err
				}
			}
			return tx.Create(&appliedMigration{ID: m.ID, AppliedAt: time.Now().UTC()}).Error
		}); err != nil {
			return ids, fmt.Errorf("failed to apply migration %s: %w", m.ID, err)
		}
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (r *Runner) applied(ctx context.Context, db *gorm.DB) (map[string]bool, error) {
	applied := make(map[string]bool)
	if !db.WithContext(ctx).Migrator().HasTable(runnerTable) {
		return applied, nil
	}
	var ids []string
	if err := db.WithContext(ctx).Model(&appliedMigration{}).Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to check migration status: %w", err)
	}
	for _, id := range ids {
		applied[id] = true
	}
	return applied, nil
}

// CreateIndexIfNotExists creates the index named name declared on model's
// struct tags unless it already exists.
func CreateIndexIfNotExists(tx *gorm.DB, model interface{}, name string) error {
	if tx.Migrator().HasIndex(model, name) {
		return nil
	}
	return tx.Migrator().CreateIndex(model, name)
}

// AddColumnIfNotExists adds the column for field of model unless it already
// exists.
func AddColumnIfNotExists(tx *gorm.DB, model interface{}, field string) error {
	if tx.Migrator().HasColumn(model, field) {
		return nil
	}
	return tx.Migrator().AddColumn(model, field)
}
