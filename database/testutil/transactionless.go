package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/kbukum/dbscope/component"
	"github.com/kbukum/dbscope/database"
	"github.com/kbukum/dbscope/errors"
	"github.com/kbukum/dbscope/logger"
	"github.com/kbukum/dbscope/observability"
	basetestutil "github.com/kbukum/dbscope/testutil"
)

// Transactionless runs a block of work inside a transaction that is always
// rolled back. On a handle that is already inside a transaction it uses a
// savepoint instead, so scopes nest.
//
// The handle returned by DB must be used for all work in the scope. Calls to
// Transaction on it become savepoints and never commit the scope.
type Transactionless struct {
	parent *gorm.DB
	opts   TransactionlessOptions
	log    *logger.Logger

	mu        sync.Mutex
	started   bool
	nested    bool
	savepoint string
	tx        *gorm.DB
}

var (
	_ component.Component        = (*Transactionless)(nil)
	_ component.Describable      = (*Transactionless)(nil)
	_ basetestutil.TestComponent = (*Transactionless)(nil)
)

// NewTransactionless creates an unstarted scope on db.
func NewTransactionless(db *gorm.DB, opts TransactionlessOptions) *Transactionless {
	opts.ApplyDefaults()
	return &Transactionless{
		parent: db,
		opts:   opts,
		log:    opts.Logger.WithComponent("transactionless"),
	}
}

// Name implements component.Component.
func (s *Transactionless) Name() string {
	return "transactionless"
}

// Describe implements component.Describable.
func (s *Transactionless) Describe() component.Description {
	s.mu.Lock()
	defer s.mu.Unlock()
	details := "transaction"
	if s.nested {
		details = "savepoint " + s.savepoint
	}
	return component.Description{Type: "transaction", Details: details}
}

// Start opens the scope and loads the fixtures inside it. If loading fails
// the scope is rolled back before the error is returned. ctx bounds Start
// only: the transaction or savepoint outlives it until Stop.
func (s *Transactionless) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.InvalidState("transactionless scope already started")
	}
	if err := s.opts.Validate(); err != nil {
		return err
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanTransactionlessStart)
	defer func() { observability.EndSpan(span, err) }()

	if err := s.begin(ctx); err != nil {
		return err
	}
	span.SetAttributes(attribute.Bool(observability.AttrNested, s.nested))
	if s.nested {
		span.SetAttributes(attribute.String(observability.AttrSavepoint, s.savepoint))
	}

	if len(s.opts.Fixtures) > 0 {
		n, err := s.opts.Loader.Load(ctx, s.tx, s.opts.Fixtures...)
		if err != nil {
			if rbErr := s.rollback(context.WithoutCancel(ctx)); rbErr != nil {
				s.scopeLog(ctx).WithError(rbErr).Error("Rollback after fixture failure failed")
			}
			return err
		}
		s.opts.Metrics.FixturesLoaded(ctx, "transactionless", n)
	}

	s.started = true
	s.scopeLog(ctx).Debug("Transactionless scope started", logger.Fields("fixtures", len(s.opts.Fixtures)))
	return nil
}

func (s *Transactionless) begin(ctx context.Context) error {
	// database/sql rolls a transaction back when its context is cancelled
	ctx = context.WithoutCancel(ctx)
	if database.InTransaction(s.parent) {
		name := savepointName()
		tx := s.parent.WithContext(ctx)
		if err := tx.SavePoint(name).Error; err != nil {
			return errors.ResourceCreationFailed("savepoint "+name, err)
		}
		s.nested = true
		s.savepoint = name
		s.tx = tx
		return nil
	}

	tx := s.parent.WithContext(ctx).Begin()
	if tx.Error != nil {
		return errors.ResourceCreationFailed("transaction", tx.Error)
	}
	s.nested = false
	s.savepoint = ""
	s.tx = tx
	return nil
}

func (s *Transactionless) rollback(ctx context.Context) error {
	tx := s.tx.WithContext(ctx)
	if s.nested {
		if err := tx.RollbackTo(s.savepoint).Error; err != nil {
			return err
		}
		return tx.Exec("RELEASE SAVEPOINT " + s.savepoint).Error
	}
	return tx.Rollback().Error
}

// Stop rolls the scope back. A failed rollback is returned as
// TEARDOWN_FAILED; the scope counts as stopped either way.
func (s *Transactionless) Stop(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false

	ctx, span := observability.StartSpan(ctx, observability.SpanTransactionlessStop,
		attribute.Bool(observability.AttrNested, s.nested))
	defer func() { observability.EndSpan(span, err) }()

	rbErr := s.rollback(ctx)
	s.opts.Metrics.Rollback(ctx, s.nested, rbErr == nil)
	if rbErr != nil {
		s.scopeLog(ctx).WithError(rbErr).Error("Rollback failed")
		resource := "transaction"
		if s.nested {
			resource = "savepoint " + s.savepoint
		}
		return errors.TeardownFailed(resource, rbErr)
	}
	s.scopeLog(ctx).Debug("Transactionless scope rolled back")
	return nil
}

func (s *Transactionless) scopeLog(ctx context.Context) *logger.Logger {
	log := s.log.WithContext(ctx)
	if s.nested {
		return log.WithFields(logger.Fields(logger.FieldSavepoint, s.savepoint))
	}
	return log
}

// DB returns the handle to use inside the scope, or nil when not started.
func (s *Transactionless) DB() *gorm.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	return s.tx
}

// Nested reports whether the scope is a savepoint inside an outer
// transaction.
func (s *Transactionless) Nested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nested
}

// Health implements component.Component.
func (s *Transactionless) Health(ctx context.Context) component.Health {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return component.Health{Name: s.Name(), Status: component.StatusUnhealthy, Message: "scope not started"}
	}
	if err := s.tx.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		return component.Health{Name: s.Name(), Status: component.StatusUnhealthy, Message: fmt.Sprintf("query failed: %v", err)}
	}
	return component.Health{Name: s.Name(), Status: component.StatusHealthy}
}

// Reset discards everything done in the scope, opens it again and reloads
// the fixtures. Snapshots taken before Reset are no longer valid.
func (s *Transactionless) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return errors.InvalidState("transactionless scope not started")
	}

	if err := s.rollback(ctx); err != nil {
		s.started = false
		return errors.TeardownFailed("transactionless scope", err)
	}
	if err := s.begin(ctx); err != nil {
		s.started = false
		return err
	}
	if _, err := s.opts.Loader.Load(ctx, s.tx, s.opts.Fixtures...); err != nil {
		if rbErr := s.rollback(context.WithoutCancel(ctx)); rbErr != nil {
			s.scopeLog(ctx).WithError(rbErr).Error("Rollback after fixture failure failed")
		}
		s.started = false
		return err
	}
	return nil
}

// Snapshot creates a savepoint inside the scope and returns its name.
func (s *Transactionless) Snapshot(ctx context.Context) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, errors.InvalidState("transactionless scope not started")
	}
	name := savepointName()
	if err := s.tx.WithContext(ctx).SavePoint(name).Error; err != nil {
		return nil, database.FromDatabase(err, "savepoint "+name)
	}
	return name, nil
}

// Restore rolls the scope back to a savepoint returned by Snapshot. The
// savepoint stays valid, so Restore can be repeated.
func (s *Transactionless) Restore(ctx context.Context, snapshot interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return errors.InvalidState("transactionless scope not started")
	}
	name, ok := snapshot.(string)
	if !ok {
		return errors.InvalidState(fmt.Sprintf("invalid snapshot type %T", snapshot))
	}
	if err := s.tx.WithContext(ctx).RollbackTo(name).Error; err != nil {
		return database.FromDatabase(err, "savepoint "+name)
	}
	return nil
}

// WithTransactionless runs fn inside a Transactionless scope on db and rolls
// it back afterwards, also when fn panics. fn's error takes precedence over
// a rollback error; when both fail they are combined.
func WithTransactionless(ctx context.Context, db *gorm.DB, opts TransactionlessOptions, fn func(tx *gorm.DB) error) error {
	scope := NewTransactionless(db, opts)
	if err := scope.Start(ctx); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if err := scope.Stop(context.WithoutCancel(ctx)); err != nil {
				scope.log.Error("Rollback after panic failed", logger.ErrorFields("rollback", err))
			}
			panic(r)
		}
	}()

	fnErr := fn(scope.DB())
	stopErr := scope.Stop(context.WithoutCancel(ctx))
	if fnErr != nil {
		if stopErr != nil {
			return fmt.Errorf("%w, rollback failed: %v", fnErr, stopErr)
		}
		return fnErr
	}
	return stopErr
}

// TransactionlessT opens a Transactionless scope for tb and returns the
// handle to use in the test. The scope is rolled back during tb's cleanup;
// a failed rollback fails the test.
func TransactionlessT(tb testing.TB, db *gorm.DB, opts TransactionlessOptions) *gorm.DB {
	tb.Helper()
	scope := NewTransactionless(db, opts)
	basetestutil.T(tb).Setup(scope)
	return scope.DB()
}
