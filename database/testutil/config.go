package testutil

import (
	"context"
	"fmt"
	"sort"

	"github.com/kbukum/dbscope/config"
	"github.com/kbukum/dbscope/database"
	"github.com/kbukum/dbscope/logger"
	"github.com/kbukum/dbscope/observability"
)

// ConfigName is the base name of the config file LoadConfig looks for
// (dbscope.yml, testdata/dbscope.yml, config.yml, ...).
const ConfigName = "dbscope"

// FileConfig is the configuration file of a test suite.
//
//	databases:
//	  default:
//	    driver: postgres
//	    name: app
//	    user: app
//	  replica:
//	    driver: postgres
//	    name: app
//	    user: app_ro
//	    mirror: default
//	  analytics:
//	    driver: postgres
//	    name: analytics
//	    user: app
//	temporary_database:
//	  db_prefix: test
//	  fixtures: [users, posts]
//	  dependencies:
//	    analytics: [default]
//	transactionless:
//	  fixtures: [users]
//
// Every key can be overridden from the environment, for example
// DBSCOPE_DATABASES_DEFAULT_HOST or DBSCOPE_TEMPORARY_DATABASE_DB_PREFIX.
type FileConfig struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Databases         map[string]database.Config `yaml:"databases" mapstructure:"databases"`
	TemporaryDatabase TemporaryDatabaseOptions   `yaml:"temporary_database" mapstructure:"temporary_database"`
	Transactionless   TransactionlessOptions     `yaml:"transactionless" mapstructure:"transactionless"`
}

// LoadConfig reads, defaults and validates the suite configuration.
func LoadConfig(opts ...config.LoaderOption) (*FileConfig, error) {
	defaults := config.WithDefaults(map[string]any{
		"temporary_database.db_prefix":   DefaultDBPrefix,
		"temporary_database.alias":       DefaultAlias,
		"temporary_database.automigrate": true,
		"logging.level":                  "info",
		"logging.format":                 "console",
	})

	var cfg FileConfig
	if err := config.LoadConfig(ConfigName, &cfg, append([]config.LoaderOption{defaults}, opts...)...); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills defaults in every section.
func (c *FileConfig) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	for alias, db := range c.Databases {
		db.ApplyDefaults()
		c.Databases[alias] = db
	}
	if c.TemporaryDatabase.DBPrefix == "" {
		c.TemporaryDatabase.DBPrefix = DefaultDBPrefix
	}
	if c.TemporaryDatabase.Alias == "" {
		c.TemporaryDatabase.Alias = DefaultAlias
	}
	if c.TemporaryDatabase.Automigrate == nil {
		c.TemporaryDatabase.Automigrate = Bool(true)
	}
}

// Validate checks every section.
func (c *FileConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}

	aliases := make([]string, 0, len(c.Databases))
	for alias := range c.Databases {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		db := c.Databases[alias]
		if err := db.Validate(); err != nil {
			return fmt.Errorf("databases.%s: %w", alias, err)
		}
		if db.Mirror != "" {
			if _, ok := c.Databases[db.Mirror]; !ok || db.Mirror == alias {
				return fmt.Errorf("databases.%s: mirror %q is not another configured alias", alias, db.Mirror)
			}
		}
	}

	if err := c.TemporaryDatabase.Validate(); err != nil {
		return fmt.Errorf("temporary_database: %w", err)
	}
	if err := c.Transactionless.Validate(); err != nil {
		return fmt.Errorf("transactionless: %w", err)
	}
	return nil
}

// Apply registers every configured database in settings.
func (c *FileConfig) Apply(settings *database.Settings) {
	for alias, db := range c.Databases {
		settings.Set(alias, db)
	}
}

// Setup initializes the global logger and, when enabled, tracing and
// metrics export. The returned function flushes the exporters.
func (c *FileConfig) Setup(ctx context.Context) (func(context.Context) error, error) {
	logger.Init(c.Logging)
	return observability.Setup(ctx, c.Tracing)
}

// TemporaryDatabaseOptions returns the temporary_database section bound to
// settings.
func (c *FileConfig) TemporaryDatabaseOptions(settings *database.Settings) TemporaryDatabaseOptions {
	opts := c.TemporaryDatabase
	opts.Fixtures = append([]string(nil), opts.Fixtures...)
	opts.Aliases = append([]string(nil), opts.Aliases...)
	opts.Settings = settings
	return opts
}
