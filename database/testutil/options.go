package testutil

import (
	"github.com/kbukum/dbscope/database"
	"github.com/kbukum/dbscope/database/fixture"
	"github.com/kbukum/dbscope/database/migration"
	"github.com/kbukum/dbscope/logger"
	"github.com/kbukum/dbscope/observability"
	"github.com/kbukum/dbscope/validation"
)

// Option defaults.
const (
	DefaultDBPrefix = "test"
	DefaultAlias    = "default"
)

// TemporaryDatabaseOptions configures a TemporaryDatabase. The tagged
// fields can be read from the temporary_database section of a config file.
type TemporaryDatabaseOptions struct {
	// Fixtures are loaded in order after migrations.
	Fixtures []string `yaml:"fixtures" mapstructure:"fixtures" validate:"dive,required"`

	// DBPrefix starts the generated database name.
	DBPrefix string `yaml:"db_prefix" mapstructure:"db_prefix" validate:"required,max=32,dbident"`

	// Alias is the primary alias: DB, Config and Session describe its
	// temporary database and Fixtures are loaded into it.
	Alias string `yaml:"alias" mapstructure:"alias" validate:"required"`

	// Aliases lists every alias that gets a temporary database. Empty means
	// every alias in Settings that is not a mirror. Alias is always
	// included. Aliases whose configs reach the same database share one
	// temporary database, and the mirrors of every listed alias follow it.
	Aliases []string `yaml:"aliases" mapstructure:"aliases" validate:"dive,required"`

	// Dependencies maps an alias to the aliases whose databases must be
	// created before its own. An alias without an entry depends on
	// "default" when that alias is provisioned. Databases are dropped in
	// reverse order.
	Dependencies map[string][]string `yaml:"dependencies" mapstructure:"dependencies"`

	// Automigrate runs Migrator, or auto-migrates Models when there is no
	// Migrator. Nil means true.
	Automigrate *bool `yaml:"automigrate" mapstructure:"automigrate"`

	// Migrator migrates every temporary database unless Migrators holds
	// one for an alias pointed at it.
	Migrator  migration.Migrator            `yaml:"-" mapstructure:"-" validate:"-"`
	Migrators map[string]migration.Migrator `yaml:"-" mapstructure:"-" validate:"-"`

	Models   []interface{}          `yaml:"-" mapstructure:"-" validate:"-"`
	Settings *database.Settings     `yaml:"-" mapstructure:"-" validate:"-"`
	Driver   database.Driver        `yaml:"-" mapstructure:"-" validate:"-"`
	Loader   *fixture.Loader        `yaml:"-" mapstructure:"-" validate:"-"`
	Logger   *logger.Logger         `yaml:"-" mapstructure:"-" validate:"-"`
	Metrics  *observability.Metrics `yaml:"-" mapstructure:"-" validate:"-"`
}

// ApplyDefaults fills zero-valued fields.
func (o *TemporaryDatabaseOptions) ApplyDefaults() {
	if o.DBPrefix == "" {
		o.DBPrefix = DefaultDBPrefix
	}
	if o.Alias == "" {
		o.Alias = DefaultAlias
	}
	if o.Automigrate == nil {
		o.Automigrate = Bool(true)
	}
	if o.Settings == nil {
		o.Settings = database.Global()
	}
	if o.Loader == nil {
		o.Loader = fixture.NewLoader()
	}
	if o.Logger == nil {
		o.Logger = logger.Get("tempdb")
	}
	if o.Metrics == nil {
		o.Metrics = observability.DefaultMetrics()
	}
}

// Validate checks the options. It returns an INVALID_CONFIG error.
func (o *TemporaryDatabaseOptions) Validate() error {
	return validation.Validate(o)
}

func (o *TemporaryDatabaseOptions) automigrate() bool {
	return o.Automigrate == nil || *o.Automigrate
}

// TransactionlessOptions configures a Transactionless scope. Fixtures can be
// read from the transactionless section of a config file.
type TransactionlessOptions struct {
	Fixtures []string `yaml:"fixtures" mapstructure:"fixtures" validate:"dive,required"`

	Loader  *fixture.Loader        `yaml:"-" mapstructure:"-" validate:"-"`
	Logger  *logger.Logger         `yaml:"-" mapstructure:"-" validate:"-"`
	Metrics *observability.Metrics `yaml:"-" mapstructure:"-" validate:"-"`
}

// ApplyDefaults fills zero-valued fields.
func (o *TransactionlessOptions) ApplyDefaults() {
	if o.Loader == nil {
		o.Loader = fixture.NewLoader()
	}
	if o.Logger == nil {
		o.Logger = logger.Get("transactionless")
	}
	if o.Metrics == nil {
		o.Metrics = observability.DefaultMetrics()
	}
}

// Validate checks the options. It returns an INVALID_CONFIG error.
func (o *TransactionlessOptions) Validate() error {
	return validation.Validate(o)
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}
