package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/kbukum/dbscope/component"
	"github.com/kbukum/dbscope/database"
	"github.com/kbukum/dbscope/database/migration"
	"github.com/kbukum/dbscope/errors"
	"github.com/kbukum/dbscope/logger"
	"github.com/kbukum/dbscope/observability"
	basetestutil "github.com/kbukum/dbscope/testutil"
)

// Session describes a started TemporaryDatabase. Name, Alias, Fixtures and
// Migrations describe the primary alias's database.
type Session struct {
	Name       string
	Alias      string
	CreatedAt  time.Time
	Fixtures   []string
	Migrations []migration.Record
	Databases  []DatabaseSession
}

// DatabaseSession describes one temporary database, in creation order.
type DatabaseSession struct {
	Name       string
	Aliases    []string
	Mirrors    []string
	Migrations []migration.Record
}

// TemporaryDatabase creates a fresh database for every alias it manages,
// next to the one the alias points at. It points the aliases and their
// mirrors at the new databases, migrates them and loads fixtures. Stop
// drops the databases and puts the aliases back.
//
// It implements both component.Component and testutil.TestComponent.
type TemporaryDatabase struct {
	opts TemporaryDatabaseOptions
	log  *logger.Logger

	mu        sync.Mutex
	started   bool
	primary   *provisioned
	databases []*provisioned
	override  *database.Override
	session   Session
}

var (
	_ component.Component        = (*TemporaryDatabase)(nil)
	_ component.Describable      = (*TemporaryDatabase)(nil)
	_ basetestutil.TestComponent = (*TemporaryDatabase)(nil)
)

// NewTemporaryDatabase creates an unstarted TemporaryDatabase.
func NewTemporaryDatabase(opts TemporaryDatabaseOptions) *TemporaryDatabase {
	opts.ApplyDefaults()
	return &TemporaryDatabase{
		opts: opts,
		log:  opts.Logger.WithComponent("tempdb"),
	}
}

// Name returns the primary database name once started, "tempdb" before.
func (t *TemporaryDatabase) Name() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session.Name == "" {
		return "tempdb"
	}
	return t.session.Name
}

// Describe implements component.Describable.
func (t *TemporaryDatabase) Describe() component.Description {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := component.Description{Name: "tempdb:" + t.opts.Alias, Type: "database"}
	if t.primary != nil {
		d.Details = t.primary.cfg.Redacted()
		if n := len(t.databases); n > 1 {
			d.Details += fmt.Sprintf(" (+%d more)", n-1)
		}
	}
	return d
}

// Start creates, migrates and seeds the temporary databases in dependency
// order. When a step fails or panics, everything done so far is undone
// before the error is returned or the panic continues.
func (t *TemporaryDatabase) Start(ctx context.Context) (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return errors.InvalidState("temporary database already started")
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanTempDBStart,
		attribute.String(observability.AttrAlias, t.opts.Alias))
	defer func() { observability.EndSpan(span, err) }()

	if err := t.opts.Validate(); err != nil {
		return err
	}
	plan, err := planDatabases(&t.opts)
	if err != nil {
		return err
	}
	for _, p := range plan {
		if p.has(t.opts.Alias) {
			t.primary = p
		}
	}
	span.SetAttributes(
		attribute.String(observability.AttrDatabase, t.primary.name),
		attribute.String(observability.AttrDriver, t.primary.driver.Name()),
	)

	log := t.log.WithContext(ctx).WithFields(logger.Fields(
		logger.FieldDatabase, t.primary.name,
		logger.FieldAlias, t.opts.Alias,
	))

	t.session = Session{Name: t.primary.name, Alias: t.opts.Alias, CreatedAt: time.Now()}
	t.override = t.opts.Settings.NewOverride()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Temporary database setup panicked", logger.Fields("panic", fmt.Sprint(r)))
			t.teardown(context.WithoutCancel(ctx), log)
			panic(r)
		}
	}()
	if err := t.setup(ctx, plan); err != nil {
		t.teardown(context.WithoutCancel(ctx), log)
		return err
	}

	t.started = true
	t.session.Migrations = t.primary.migrations
	log.Info("Temporary database ready", logger.Fields(
		logger.FieldDriver, t.primary.driver.Name(),
		"databases", len(t.databases),
		"fixtures", len(t.session.Fixtures),
		"migrations", len(t.session.Migrations),
	))
	return nil
}

func (t *TemporaryDatabase) setup(ctx context.Context, plan []*provisioned) error {
	planned := make(map[string]bool)
	for _, p := range plan {
		for _, alias := range p.aliases {
			planned[alias] = true
		}
	}

	for _, p := range plan {
		dlog := t.log.WithContext(ctx).WithFields(logger.Fields(logger.FieldDatabase, p.name, "aliases", p.aliases))
		if err := p.driver.CreateDatabase(ctx, p.cfg); err != nil {
			dlog.WithError(err).Error("Failed to create temporary database")
			return errors.ResourceCreationFailed("database "+p.name, err)
		}
		t.databases = append(t.databases, p)
		t.opts.Metrics.DatabaseCreated(ctx, p.driver.Name())

		t.point(p, planned)

		db, err := database.Open(ctx, p.cfg, p.driver, dlog)
		if err != nil {
			return errors.ResourceCreationFailed("connection to "+p.name, err)
		}
		p.db = db

		if t.opts.automigrate() {
			if err := t.migrate(ctx, p, dlog); err != nil {
				return err
			}
		}
	}

	if len(t.opts.Fixtures) > 0 {
		n, err := t.opts.Loader.Load(ctx, t.primary.db.GormDB, t.opts.Fixtures...)
		if err != nil {
			return err
		}
		t.session.Fixtures = append([]string(nil), t.opts.Fixtures...)
		t.opts.Metrics.FixturesLoaded(ctx, "tempdb", n)
	}
	return nil
}

// point swaps p's aliases, and the mirrors of those aliases that are not
// planned a database of their own, over to p.
func (t *TemporaryDatabase) point(p *provisioned, planned map[string]bool) {
	for _, alias := range p.aliases {
		t.override.Swap(alias, p.configs[alias])
		for _, mirror := range t.opts.Settings.MirrorsOf(alias) {
			if planned[mirror] {
				continue
			}
			mirrored := p.configs[alias]
			mirrored.Mirror = alias
			t.override.Swap(mirror, mirrored)
			p.mirrors = append(p.mirrors, mirror)
		}
	}
}

func (t *TemporaryDatabase) migrate(ctx context.Context, p *provisioned, log *logger.Logger) error {
	if migrator := t.migratorFor(p); migrator != nil {
		records, err := migration.Apply(ctx, p.db.GormDB, migrator, log)
		if err != nil {
			return err
		}
		p.migrations = records
		t.opts.Metrics.MigrationsApplied(ctx, countNewlyApplied(records))
		return nil
	}
	if len(t.opts.Models) > 0 {
		if err := p.db.AutoMigrate(ctx, t.opts.Models...); err != nil {
			return errors.MigrationFailed("auto-migrate models", err)
		}
	}
	return nil
}

func (t *TemporaryDatabase) migratorFor(p *provisioned) migration.Migrator {
	for _, alias := range p.aliases {
		if m, ok := t.opts.Migrators[alias]; ok {
			return m
		}
	}
	return t.opts.Migrator
}

// Stop closes the connections, restores the aliases and drops the
// databases in reverse creation order. A failed drop is logged and
// otherwise ignored: Stop always returns nil.
func (t *TemporaryDatabase) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.started {
		return nil
	}
	t.started = false

	ctx, span := observability.StartSpan(ctx, observability.SpanTempDBStop,
		attribute.String(observability.AttrAlias, t.opts.Alias),
		attribute.String(observability.AttrDatabase, t.session.Name))
	defer observability.EndSpan(span, nil)

	t.teardown(ctx, t.log.WithContext(ctx).WithFields(logger.Fields(
		logger.FieldDatabase, t.session.Name,
		logger.FieldAlias, t.opts.Alias,
	)))
	return nil
}

// teardown undoes whatever part of setup ran.
func (t *TemporaryDatabase) teardown(ctx context.Context, log *logger.Logger) {
	start := time.Now()
	for _, p := range t.databases {
		if p.db == nil {
			continue
		}
		if err := p.db.Close(); err != nil {
			t.log.WithContext(ctx).WithError(err).Warn("Failed to close temporary database connection", logger.Fields(logger.FieldDatabase, p.name))
		}
		p.db = nil
	}
	if t.override != nil {
		t.override.Restore()
	}

	dropped := 0
	for i := len(t.databases) - 1; i >= 0; i-- {
		p := t.databases[i]
		err := p.driver.DropDatabase(ctx, p.cfg)
		t.opts.Metrics.DatabaseDropped(ctx, p.driver.Name(), err == nil)
		if err != nil {
			t.log.WithContext(ctx).WithError(err).Warn("Failed to drop temporary database", logger.Fields(logger.FieldDatabase, p.name))
			continue
		}
		dropped++
	}
	t.databases = nil
	log.Debug("Temporary databases dropped", logger.DurationFields("teardown", time.Since(start)), logger.Fields("dropped", dropped))
}

// DB returns the connection to the primary temporary database, or nil when
// not started.
func (t *TemporaryDatabase) DB() *gorm.DB {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.primary == nil || t.primary.db == nil {
		return nil
	}
	return t.primary.db.GormDB
}

// DBFor returns the connection to the temporary database alias or the
// alias it mirrors points at, or nil when there is none.
func (t *TemporaryDatabase) DBFor(alias string) *gorm.DB {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.databases {
		if p.db == nil {
			continue
		}
		if p.has(alias) {
			return p.db.GormDB
		}
		for _, m := range p.mirrors {
			if m == alias {
				return p.db.GormDB
			}
		}
	}
	return nil
}

// Config returns the configuration of the primary temporary database.
func (t *TemporaryDatabase) Config() database.Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.primary == nil {
		return database.Config{}
	}
	return t.primary.configs[t.opts.Alias]
}

// Session returns what Start did.
func (t *TemporaryDatabase) Session() Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.session
	s.Fixtures = append([]string(nil), s.Fixtures...)
	s.Migrations = append([]migration.Record(nil), s.Migrations...)
	s.Databases = make([]DatabaseSession, 0, len(t.databases))
	for _, p := range t.databases {
		s.Databases = append(s.Databases, DatabaseSession{
			Name:       p.name,
			Aliases:    append([]string(nil), p.aliases...),
			Mirrors:    append([]string(nil), p.mirrors...),
			Migrations: append([]migration.Record(nil), p.migrations...),
		})
	}
	return s
}

// Health implements component.Component. It reports the first temporary
// database that is not healthy.
func (t *TemporaryDatabase) Health(ctx context.Context) component.Health {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return component.Health{Name: "tempdb", Status: component.StatusUnhealthy, Message: "temporary database not started"}
	}
	for _, p := range t.databases {
		if h := p.db.Health(ctx, p.name); !h.Healthy() {
			return h
		}
	}
	return component.Health{Name: t.session.Name, Status: component.StatusHealthy}
}

// Reset empties every table except migration bookkeeping in every
// temporary database and reloads the fixtures.
func (t *TemporaryDatabase) Reset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return errors.InvalidState("temporary database not started")
	}

	for _, p := range t.databases {
		tables, err := database.Tables(ctx, p.db.GormDB, migration.BookkeepingTables(t.migratorFor(p))...)
		if err != nil {
			return database.FromDatabase(err, "database "+p.name)
		}
		if err := database.TruncateTables(ctx, p.db.GormDB, tables); err != nil {
			return database.FromDatabase(err, "database "+p.name)
		}
	}
	if _, err := t.opts.Loader.Load(ctx, t.primary.db.GormDB, t.session.Fixtures...); err != nil {
		return err
	}
	return nil
}

// Snapshot captures the rows of every table except migration bookkeeping
// in every temporary database. The result maps database names to
// *database.TableSnapshot.
func (t *TemporaryDatabase) Snapshot(ctx context.Context) (interface{}, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return nil, errors.InvalidState("temporary database not started")
	}
	snaps := make(map[string]*database.TableSnapshot, len(t.databases))
	for _, p := range t.databases {
		snap, err := database.SnapshotTables(ctx, p.db.GormDB, migration.BookkeepingTables(t.migratorFor(p))...)
		if err != nil {
			return nil, err
		}
		snaps[p.name] = snap
	}
	return snaps, nil
}

// Restore puts back rows captured by Snapshot.
func (t *TemporaryDatabase) Restore(ctx context.Context, snapshot interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return errors.InvalidState("temporary database not started")
	}
	snaps, ok := snapshot.(map[string]*database.TableSnapshot)
	if !ok {
		return errors.InvalidState(fmt.Sprintf("invalid snapshot type %T", snapshot))
	}
	for _, p := range t.databases {
		snap, ok := snaps[p.name]
		if !ok {
			return errors.InvalidState("snapshot does not cover database " + p.name)
		}
		if err := database.RestoreTables(ctx, p.db.GormDB, snap); err != nil {
			return err
		}
	}
	return nil
}

// WithTemporaryDatabase runs fn against a started TemporaryDatabase and
// tears it down afterwards, also when fn panics. A Start error is returned
// as is and fn is not called.
func WithTemporaryDatabase(ctx context.Context, opts TemporaryDatabaseOptions, fn func(ctx context.Context, tdb *TemporaryDatabase) error) error {
	tdb := NewTemporaryDatabase(opts)
	if err := tdb.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = tdb.Stop(context.WithoutCancel(ctx)) }()

	return fn(ctx, tdb)
}

// TemporaryDatabaseT starts a TemporaryDatabase for tb, failing the test
// when it cannot start, and stops it during tb's cleanup.
func TemporaryDatabaseT(tb testing.TB, opts TemporaryDatabaseOptions) *TemporaryDatabase {
	tb.Helper()
	tdb := NewTemporaryDatabase(opts)
	basetestutil.T(tb).Setup(tdb)
	return tdb
}

func countNewlyApplied(records []migration.Record) int {
	n := 0
	for _, r := range records {
		if r.NewlyApplied {
			n++
		}
	}
	return n
}
