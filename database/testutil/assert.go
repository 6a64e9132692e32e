package testutil

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/kbukum/dbscope/database"
	"github.com/kbukum/dbscope/database/fixture"
)

// MustLoadFixtures loads fixture references through loader and fails the
// test on error.
func MustLoadFixtures(tb testing.TB, db *gorm.DB, loader *fixture.Loader, refs ...string) {
	tb.Helper()
	if loader == nil {
		loader = fixture.NewLoader()
	}
	if _, err := loader.Load(context.Background(), db, refs...); err != nil {
		tb.Fatalf("failed to load fixtures %v: %v", refs, err)
	}
}

// AssertTableEmpty fails the test if the table is not empty.
func AssertTableEmpty(tb testing.TB, db *gorm.DB, table string) {
	tb.Helper()
	AssertRowCount(tb, db, table, 0)
}

// AssertRowCount fails the test if the table doesn't have the expected row count.
func AssertRowCount(tb testing.TB, db *gorm.DB, table string, expected int64) {
	tb.Helper()
	count, err := database.CountRows(context.Background(), db, table)
	if err != nil {
		tb.Fatalf("failed to count rows in %s: %v", table, err)
	}
	if count != expected {
		tb.Errorf("table %s row count = %d, want %d", table, count, expected)
	}
}

// AssertAliasRestored fails the test unless alias holds want in settings,
// or is absent when existed is false.
func AssertAliasRestored(tb testing.TB, settings *database.Settings, alias string, want database.Config, existed bool) {
	tb.Helper()
	got, ok := settings.Get(alias)
	if ok != existed {
		tb.Errorf("alias %s present = %v, want %v", alias, ok, existed)
		return
	}
	if ok && got != want {
		tb.Errorf("alias %s = %+v, want %+v", alias, got, want)
	}
}
