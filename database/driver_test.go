package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kbukum/dbscope/errors"
)

func TestLookupDriver(t *testing.T) {
	for _, name := range []string{DriverPostgres, DriverSQLite} {
		d, err := LookupDriver(name)
		if err != nil {
			t.Fatalf("LookupDriver(%q): %v", name, err)
		}
		if d.Name() != name {
			t.Errorf("expected %q, got %q", name, d.Name())
		}
	}
	if _, err := LookupDriver("mysql"); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND for unknown driver, got %v", err)
	}
}

func TestSQLiteDriver_TemporaryConfig(t *testing.T) {
	d := NewSQLiteDriver()
	base := Config{Driver: DriverSQLite, Name: "/var/data/app.db", Mirror: "default", LogLevel: "info"}

	tmp := d.TemporaryConfig(base, "test_abc")
	if tmp.Name != "/var/data/test_abc.db" {
		t.Errorf("expected file next to base, got %q", tmp.Name)
	}
	if tmp.Mirror != "" || tmp.LogLevel != "info" {
		t.Errorf("unexpected derived config %+v", tmp)
	}
	if base.Name != "/var/data/app.db" {
		t.Error("base must not be modified")
	}

	for _, name := range []string{":memory:", "file::memory:?cache=shared", "file:shared?mode=memory&cache=shared", ""} {
		mem := d.TemporaryConfig(Config{Driver: DriverSQLite, Name: name}, "test_abc")
		if filepath.Dir(mem.Name) != filepath.Clean(os.TempDir()) {
			t.Errorf("expected in-memory base %q to use temp dir, got %q", name, mem.Name)
		}
	}

	uri := d.TemporaryConfig(Config{Driver: DriverSQLite, Name: "file:/var/data/app.db?cache=shared"}, "test_abc")
	if uri.Name != "/var/data/test_abc.db" {
		t.Errorf("expected file next to URI base, got %q", uri.Name)
	}
}

func TestSQLiteDriver_CreateDrop(t *testing.T) {
	ctx := context.Background()
	d := NewSQLiteDriver()
	cfg := Config{Driver: DriverSQLite, Name: filepath.Join(t.TempDir(), "nested", "tmp.db")}

	if err := d.CreateDatabase(ctx, cfg); err != nil {
		t.Fatalf("CreateDatabase: %v", err)
	}
	if err := d.CreateDatabase(ctx, cfg); !errors.HasCode(err, errors.ErrCodeAlreadyExists) {
		t.Errorf("expected ALREADY_EXISTS on second create, got %v", err)
	}

	if err := os.WriteFile(cfg.Name+"-wal", nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := d.DropDatabase(ctx, cfg); err != nil {
		t.Fatalf("DropDatabase: %v", err)
	}
	for _, p := range []string{cfg.Name, cfg.Name + "-wal"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("expected %s removed", p)
		}
	}
	if err := d.DropDatabase(ctx, cfg); !errors.HasCode(err, errors.ErrCodeNotFound) {
		t.Errorf("expected NOT_FOUND on second drop, got %v", err)
	}
}

func TestPostgresDriver_TemporaryConfig(t *testing.T) {
	base := Config{Driver: DriverPostgres, Name: "app", Host: "db", Port: 5432, User: "u", Mirror: "default"}
	tmp := NewPostgresDriver().TemporaryConfig(base, "test_0123456789ab")
	if tmp.Name != "test_0123456789ab" || tmp.Host != "db" || tmp.Mirror != "" {
		t.Errorf("unexpected derived config %+v", tmp)
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := Config{Host: "localhost", Port: 5432, User: "app", Password: "it's secret", SSLMode: "disable"}
	got := PostgresDSN(cfg, "app_test")
	want := `host=localhost port=5432 dbname=app_test user=app password='it\'s secret' sslmode=disable`
	if got != want {
		t.Errorf("PostgresDSN:\n got %s\nwant %s", got, want)
	}
	if !strings.Contains(PostgresDSN(Config{Port: 1}, ""), "dbname=''") {
		t.Error("expected empty value to be quoted")
	}
}

func TestSQLiteDSN(t *testing.T) {
	if SQLiteDSN(":memory:") != ":memory:" {
		t.Error("in-memory DSN must be passed through")
	}
	if uri := "file::memory:?cache=shared"; SQLiteDSN(uri) != uri {
		t.Error("file: URIs must be passed through")
	}
	if got := SQLiteDSN("/tmp/a.db"); !strings.HasPrefix(got, "file:/tmp/a.db?") || !strings.Contains(got, "_foreign_keys=on") {
		t.Errorf("unexpected DSN %q", got)
	}
}
