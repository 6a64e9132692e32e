package database

import (
	"fmt"
	"time"

	"github.com/kbukum/dbscope/validation"
)

// Config describes how to reach one database. Every field is comparable so
// two Configs can be checked for equality with ==.
type Config struct {
	// Driver selects the registered Driver ("postgres", "sqlite").
	Driver string `yaml:"driver" mapstructure:"driver"`

	// Name is the database name. For sqlite it is the database file path.
	Name string `yaml:"name" mapstructure:"name"`

	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	SSLMode  string `yaml:"sslmode" mapstructure:"sslmode"`

	// AdminDatabase is the maintenance database used to issue CREATE and
	// DROP DATABASE (postgres only).
	AdminDatabase string `yaml:"admin_database" mapstructure:"admin_database"`

	// Mirror names the alias this alias mirrors. A mirror follows its
	// primary onto temporary databases.
	Mirror string `yaml:"mirror" mapstructure:"mirror"`

	// MaxOpenConns sets the maximum number of open connections to the database.
	MaxOpenConns int `yaml:"max_open_conns" mapstructure:"max_open_conns"`

	// MaxIdleConns sets the maximum number of idle connections in the pool.
	MaxIdleConns int `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`

	// ConnMaxLifetime is the maximum time a connection may be reused (e.g. "1h", "30m").
	ConnMaxLifetime string `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`

	// ConnMaxIdleTime is the maximum time a connection may sit idle (e.g. "5m").
	ConnMaxIdleTime string `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`

	// LogLevel is the GORM log level: silent, error, warn or info.
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`

	// SlowQueryThreshold is the duration above which queries are logged as slow (e.g. "200ms").
	SlowQueryThreshold string `yaml:"slow_query_threshold" mapstructure:"slow_query_threshold"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Driver == DriverPostgres {
		if c.Host == "" {
			c.Host = "localhost"
		}
		if c.Port == 0 {
			c.Port = 5432
		}
		if c.SSLMode == "" {
			c.SSLMode = "disable"
		}
		if c.AdminDatabase == "" {
			c.AdminDatabase = "postgres"
		}
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == "" {
		c.ConnMaxLifetime = "1h"
	}
	if c.ConnMaxIdleTime == "" {
		c.ConnMaxIdleTime = "5m"
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.SlowQueryThreshold == "" {
		c.SlowQueryThreshold = "200ms"
	}
}

// Validate checks that required fields are present and parseable. It
// returns an INVALID_CONFIG error listing every problem.
func (c *Config) Validate() error {
	v := validation.New().
		Required("driver", c.Driver).
		OneOf("driver", c.Driver, Drivers()).
		Required("name", c.Name).
		OneOf("log_level", c.LogLevel, []string{"silent", "error", "warn", "info"}).
		Min("max_open_conns", c.MaxOpenConns, 1).
		Min("max_idle_conns", c.MaxIdleConns, 0).
		Custom(c.MaxIdleConns <= c.MaxOpenConns, "max_idle_conns",
			fmt.Sprintf("must be <= max_open_conns (%d)", c.MaxOpenConns))

	if c.Driver == DriverPostgres {
		v.Required("host", c.Host).
			Range("port", c.Port, 1, 65535).
			Required("user", c.User).
			OneOf("sslmode", c.SSLMode, []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"})
	}

	for field, value := range map[string]string{
		"conn_max_lifetime":    c.ConnMaxLifetime,
		"conn_max_idle_time":   c.ConnMaxIdleTime,
		"slow_query_threshold": c.SlowQueryThreshold,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			v.AddError(field, fmt.Sprintf("invalid duration %q", value))
		}
	}

	return v.Validate()
}

// Redacted returns a one-line description of c without the password,
// suitable for logs.
func (c Config) Redacted() string {
	if c.Driver == DriverSQLite {
		return fmt.Sprintf("sqlite %s", c.Name)
	}
	return fmt.Sprintf("%s %s@%s:%d/%s", c.Driver, c.User, c.Host, c.Port, c.Name)
}

// Signature identifies the database c points at. Configs with the same
// signature reach the same database on the same server, whatever their
// credentials or pool settings.
func (c Config) Signature() string {
	c.ApplyDefaults()
	if c.Driver == DriverSQLite {
		return c.Driver + ":" + c.Name
	}
	return fmt.Sprintf("%s://%s:%d/%s", c.Driver, c.Host, c.Port, c.Name)
}

func (c Config) durations() (lifetime, idle, slow time.Duration) {
	lifetime, _ = time.ParseDuration(c.ConnMaxLifetime)
	idle, _ = time.ParseDuration(c.ConnMaxIdleTime)
	slow, _ = time.ParseDuration(c.SlowQueryThreshold)
	return lifetime, idle, slow
}
