package database

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/kbukum/dbscope/component"
	"github.com/kbukum/dbscope/errors"
	"github.com/kbukum/dbscope/logger"
)

// DB wraps a GORM connection together with the Config it was opened from.
type DB struct {
	GormDB *gorm.DB
	log    *logger.Logger
	cfg    Config
	closed bool
	mu     sync.Mutex
}

// Open connects to cfg through driver and configures the connection pool.
// It does not retry: an unreachable database is reported at once.
func Open(ctx context.Context, cfg Config, driver Driver, log *logger.Logger) (*DB, error) {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Get("database")
	}

	lifetime, idle, slow := cfg.durations()
	gormCfg := &gorm.Config{
		Logger: newGormLogger(log, slow, parseLogLevel(cfg.LogLevel)),
	}

	db, err := gorm.Open(driver.Dialector(cfg), gormCfg)
	if err != nil {
		return nil, errors.DatabaseError(err).WithDetail("database", cfg.Name)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.DatabaseError(err).WithDetail("database", cfg.Name)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, FromDatabase(err, "database "+cfg.Name)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	if lifetime > 0 {
		sqlDB.SetConnMaxLifetime(lifetime)
	}
	if idle > 0 {
		sqlDB.SetConnMaxIdleTime(idle)
	}

	log.Debug("Database connection established", logger.Fields(
		logger.FieldDriver, cfg.Driver,
		logger.FieldDatabase, cfg.Name,
	))
	return &DB{GormDB: db, log: log, cfg: cfg}, nil
}

// Config returns the configuration the connection was opened with.
func (d *DB) Config() Config {
	return d.cfg
}

// Close closes the underlying sql.DB connection pool. Safe to call multiple times.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	sqlDB, err := d.GormDB.DB()
	if err != nil {
		return err
	}
	d.log.Debug("Closing database connection", logger.Fields(logger.FieldDatabase, d.cfg.Name))
	return sqlDB.Close()
}

// Closed reports whether Close has been called.
func (d *DB) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// PingContext verifies the database connection is alive.
func (d *DB) PingContext(ctx context.Context) error {
	sqlDB, err := d.GormDB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Health reports the connection state under name.
func (d *DB) Health(ctx context.Context, name string) component.Health {
	if d == nil || d.Closed() {
		return component.Health{Name: name, Status: component.StatusUnhealthy, Message: "database not open"}
	}
	if err := d.PingContext(ctx); err != nil {
		return component.Health{Name: name, Status: component.StatusUnhealthy, Message: fmt.Sprintf("ping failed: %v", err)}
	}
	return component.Health{Name: name, Status: component.StatusHealthy}
}

// WithContext returns a GORM session scoped to the given context.
func (d *DB) WithContext(ctx context.Context) *gorm.DB {
	return d.GormDB.WithContext(ctx)
}

// AutoMigrate runs GORM auto-migration for the given models.
func (d *DB) AutoMigrate(ctx context.Context, models ...interface{}) error {
	if len(models) == 0 {
		return nil
	}
	d.log.Debug("Running auto-migration", logger.Fields("models", len(models)))
	for _, model := range models {
		if err := d.GormDB.WithContext(ctx).AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}
	return nil
}

// TransactionFunc defines a function that runs within a transaction.
type TransactionFunc func(tx *gorm.DB) error

// WithTransaction executes fn within a transaction that commits when fn
// returns nil. A panic in fn rolls back and is re-raised.
func (d *DB) WithTransaction(ctx context.Context, fn TransactionFunc) error {
	tx := d.GormDB.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			d.log.Error("Transaction rolled back due to panic", map[string]interface{}{
				"panic": fmt.Sprintf("%v", r),
			})
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			return fmt.Errorf("transaction failed: %w, rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InTransaction reports whether db is bound to an open transaction.
func InTransaction(db *gorm.DB) bool {
	if db == nil || db.Statement == nil {
		return false
	}
	_, ok := db.Statement.ConnPool.(gorm.TxCommitter)
	return ok
}
