//go:build integration

package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kbukum/dbscope/database"
	"github.com/kbukum/dbscope/database/migration"
	"github.com/kbukum/dbscope/errors"
	"github.com/kbukum/dbscope/internal/pgtest"
	"github.com/kbukum/dbscope/logger"
)

// postgresSettings starts a container and registers it as the "default"
// alias with a "replica" mirror.
func postgresSettings(t *testing.T) (*database.Settings, database.Config) {
	t.Helper()
	base := pgtest.SetupPostgres(t)
	replica := base
	replica.Mirror = "default"
	return database.NewSettings(map[string]database.Config{
		"default": base,
		"replica": replica,
	}), base
}

func TestPostgres_TemporaryDatabase(t *testing.T) {
	ctx := context.Background()
	settings, base := postgresSettings(t)

	tdb := NewTemporaryDatabase(TemporaryDatabaseOptions{
		Settings: settings,
		Migrator: schema(),
		Loader:   testLoader(),
		Fixtures: []string{"users", "posts"},
		Logger:   logger.Nop(),
	})
	require.NoError(t, tdb.Start(ctx))
	t.Cleanup(func() { _ = tdb.Stop(context.Background()) })

	cfg, ok := settings.Get("default")
	require.True(t, ok)
	assert.Equal(t, tdb.Session().Name, cfg.Name)
	assert.Equal(t, base.Host, cfg.Host)

	mirror, ok := settings.Get("replica")
	require.True(t, ok)
	assert.Equal(t, cfg.Name, mirror.Name)
	assert.Equal(t, "default", mirror.Mirror)

	AssertRowCount(t, tdb.DB(), "users", 2)
	AssertRowCount(t, tdb.DB(), "posts", 1)

	// A second temporary database with the same name cannot be created.
	driver := database.NewPostgresDriver()
	err := driver.CreateDatabase(ctx, cfg)
	assert.True(t, errors.HasCode(err, errors.ErrCodeAlreadyExists), "got %v", err)

	require.NoError(t, tdb.Stop(ctx))
	AssertAliasRestored(t, settings, "default", base, true)

	err = driver.DropDatabase(ctx, cfg)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound), "got %v", err)
}

func TestPostgres_TemporaryDatabaseDropsWithOpenConnections(t *testing.T) {
	ctx := context.Background()
	settings, _ := postgresSettings(t)

	var cfg database.Config
	err := WithTemporaryDatabase(ctx, TemporaryDatabaseOptions{
		Settings: settings,
		Migrator: schema(),
		Logger:   logger.Nop(),
	}, func(ctx context.Context, tdb *TemporaryDatabase) error {
		cfg = tdb.Config()
		// A connection the scope does not own stays open past teardown.
		other, err := database.Open(ctx, cfg, database.NewPostgresDriver(), logger.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = other.Close() })
		return other.PingContext(ctx)
	})
	require.NoError(t, err)

	err = database.NewPostgresDriver().DropDatabase(ctx, cfg)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound), "got %v", err)
}

func TestPostgres_Migrators(t *testing.T) {
	settings, _ := postgresSettings(t)
	migrationData := filepath.Join("..", "migration", "testdata")

	migrators := map[string]migration.Migrator{
		"golang-migrate": migration.NewGolangMigrate(os.DirFS(filepath.Join(migrationData, "migrate")), ".", nil),
		"goose":          migration.NewGoose("", os.DirFS(filepath.Join(migrationData, "goose"))),
		"runner":         schema(),
	}
	for name, m := range migrators {
		t.Run(name, func(t *testing.T) {
			tdb := TemporaryDatabaseT(t, TemporaryDatabaseOptions{
				Settings: settings,
				Migrator: m,
				Logger:   logger.Nop(),
			})

			records := tdb.Session().Migrations
			require.Len(t, records, 2)
			for _, r := range records {
				assert.True(t, r.NewlyApplied, "migration %s", r.ID)
			}
			assert.True(t, database.TableExists(context.Background(), tdb.DB(), "users"))
			assert.True(t, database.TableExists(context.Background(), tdb.DB(), "posts"))

			tables, err := database.Tables(context.Background(), tdb.DB(), migration.BookkeepingTables(m)...)
			require.NoError(t, err)
			assert.Equal(t, []string{"posts", "users"}, tables)
		})
	}
}

type serialUser struct {
	ID    uint   `gorm:"primaryKey"`
	Email string `gorm:"size:255;not null"`
}

func (serialUser) TableName() string { return "serial_users" }

func TestPostgres_ResetRestartsIdentity(t *testing.T) {
	ctx := context.Background()
	settings, _ := postgresSettings(t)

	tdb := TemporaryDatabaseT(t, TemporaryDatabaseOptions{
		Settings: settings,
		Models:   []interface{}{&serialUser{}},
		Logger:   logger.Nop(),
	})
	db := tdb.DB()

	require.NoError(t, db.Create(&serialUser{Email: "a@example.com"}).Error)
	require.NoError(t, db.Create(&serialUser{Email: "b@example.com"}).Error)
	snap, err := tdb.Snapshot(ctx)
	require.NoError(t, err)

	require.NoError(t, tdb.Reset(ctx))
	AssertTableEmpty(t, db, "serial_users")
	u := serialUser{Email: "c@example.com"}
	require.NoError(t, db.Create(&u).Error)
	assert.EqualValues(t, 1, u.ID)

	require.NoError(t, tdb.Restore(ctx, snap))
	AssertRowCount(t, db, "serial_users", 2)
	next := serialUser{Email: "d@example.com"}
	require.NoError(t, db.Create(&next).Error)
	assert.EqualValues(t, 3, next.ID)
}

func TestPostgres_Transactionless(t *testing.T) {
	ctx := context.Background()
	settings, _ := postgresSettings(t)
	tdb := TemporaryDatabaseT(t, TemporaryDatabaseOptions{
		Settings: settings,
		Migrator: schema(),
		Logger:   logger.Nop(),
	})
	db := tdb.DB()

	t.Run("rolls back", func(t *testing.T) {
		err := WithTransactionless(ctx, db, TransactionlessOptions{
			Loader:   testLoader(),
			Fixtures: []string{"users", "posts"},
			Logger:   logger.Nop(),
		}, func(tx *gorm.DB) error {
			assert.EqualValues(t, 2, countRows(t, tx, "users"))
			return tx.Transaction(func(inner *gorm.DB) error {
				return inner.Exec(`INSERT INTO users (id, email) VALUES (3, 'linus@example.com')`).Error
			})
		})
		require.NoError(t, err)
		AssertTableEmpty(t, db, "users")
		AssertTableEmpty(t, db, "posts")
	})

	t.Run("nested", func(t *testing.T) {
		err := db.Transaction(func(outer *gorm.DB) error {
			require.NoError(t, outer.Exec(`INSERT INTO users (id, email) VALUES (1, 'ada@example.com')`).Error)

			scope := NewTransactionless(outer, TransactionlessOptions{Logger: logger.Nop()})
			require.NoError(t, scope.Start(ctx))
			assert.True(t, scope.Nested())
			require.NoError(t, scope.DB().Exec(`INSERT INTO users (id, email) VALUES (2, 'grace@example.com')`).Error)
			require.NoError(t, scope.Stop(ctx))

			assert.EqualValues(t, 1, countRows(t, outer, "users"))
			return nil
		})
		require.NoError(t, err)
		AssertRowCount(t, db, "users", 1)
		require.NoError(t, database.TruncateTables(ctx, db, []string{"posts", "users"}))
	})

	t.Run("fixture violation", func(t *testing.T) {
		// posts references a user that the scope never loads.
		scope := NewTransactionless(db, TransactionlessOptions{
			Loader:   testLoader(),
			Fixtures: []string{"posts"},
			Logger:   logger.Nop(),
		})
		err := scope.Start(ctx)
		assert.True(t, errors.HasCode(err, errors.ErrCodeFixtureLoadFailed), "got %v", err)
		assert.Nil(t, scope.DB())
		AssertTableEmpty(t, db, "posts")
	})
}
