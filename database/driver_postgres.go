package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/kbukum/dbscope/errors"
)

// PostgresDriver manages databases on a PostgreSQL server. CREATE and DROP
// DATABASE are issued over a pgx connection to the admin database because
// they cannot run inside the pooled connection of the database itself.
//
// Connecting to the admin database and dropping a database are retried per
// Retry while the failure looks transient.
type PostgresDriver struct {
	Retry RetryPolicy
}

// NewPostgresDriver returns the postgres driver with DefaultRetryPolicy.
func NewPostgresDriver() *PostgresDriver {
	return &PostgresDriver{Retry: DefaultRetryPolicy()}
}

// Name implements Driver.
func (d *PostgresDriver) Name() string { return DriverPostgres }

// Dialector implements Driver.
func (d *PostgresDriver) Dialector(cfg Config) gorm.Dialector {
	return postgres.New(postgres.Config{DSN: PostgresDSN(cfg, cfg.Name)})
}

// TemporaryConfig implements Driver.
func (d *PostgresDriver) TemporaryConfig(base Config, name string) Config {
	tmp := base
	tmp.Name = name
	tmp.Mirror = ""
	return tmp
}

// CreateDatabase implements Driver.
func (d *PostgresDriver) CreateDatabase(ctx context.Context, cfg Config) error {
	conn, err := d.admin(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close(context.WithoutCancel(ctx))

	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{cfg.Name}.Sanitize()); err != nil {
		return FromDatabase(err, "database "+cfg.Name)
	}
	return nil
}

// DropDatabase implements Driver. Sessions still connected to the database
// are terminated first so a leaked connection cannot block the drop. A
// terminated backend may linger for a moment, so a drop rejected as in use
// is repeated.
func (d *PostgresDriver) DropDatabase(ctx context.Context, cfg Config) error {
	conn, err := d.admin(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close(context.WithoutCancel(ctx))

	err = d.Retry.do(ctx, transientAdminError, func() error {
		if _, err := conn.Exec(ctx,
			`SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE datname = $1 AND pid <> pg_backend_pid()`,
			cfg.Name,
		); err != nil {
			return err
		}
		_, err := conn.Exec(ctx, "DROP DATABASE "+pgx.Identifier{cfg.Name}.Sanitize())
		return err
	})
	if err != nil {
		return FromDatabase(err, "database "+cfg.Name)
	}
	return nil
}

func (d *PostgresDriver) admin(ctx context.Context, cfg Config) (*pgx.Conn, error) {
	adminDB := cfg.AdminDatabase
	if adminDB == "" {
		adminDB = "postgres"
	}
	var conn *pgx.Conn
	err := d.Retry.do(ctx, transientAdminError, func() error {
		var err error
		conn, err = pgx.Connect(ctx, PostgresDSN(cfg, adminDB))
		return err
	})
	if err != nil {
		return nil, errors.DatabaseError(err).
			WithDetail("database", adminDB).
			WithDetail("host", cfg.Host)
	}
	return conn, nil
}

// PostgresDSN renders cfg as a libpq keyword/value connection string for
// database dbname.
func PostgresDSN(cfg Config, dbname string) string {
	parts := []string{
		"host=" + dsnValue(cfg.Host),
		fmt.Sprintf("port=%d", cfg.Port),
		"dbname=" + dsnValue(dbname),
	}
	if cfg.User != "" {
		parts = append(parts, "user="+dsnValue(cfg.User))
	}
	if cfg.Password != "" {
		parts = append(parts, "password="+dsnValue(cfg.Password))
	}
	if cfg.SSLMode != "" {
		parts = append(parts, "sslmode="+dsnValue(cfg.SSLMode))
	}
	return strings.Join(parts, " ")
}

// dsnValue quotes v when it is empty or contains characters the keyword/value
// format treats specially.
func dsnValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}
