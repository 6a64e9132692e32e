package database

import (
	"context"
	"sort"
	"sync"

	"gorm.io/gorm"

	"github.com/kbukum/dbscope/errors"
)

// Registered driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Driver connects GORM to one kind of database server and manages whole
// databases on it.
type Driver interface {
	// Name returns the name Config.Driver refers to.
	Name() string

	// Dialector returns a GORM dialector connecting to cfg.
	Dialector(cfg Config) gorm.Dialector

	// TemporaryConfig derives the configuration of a database called name
	// on the same server as base.
	TemporaryConfig(base Config, name string) Config

	// CreateDatabase creates the database cfg points at. It fails with
	// ALREADY_EXISTS when the database is already there.
	CreateDatabase(ctx context.Context, cfg Config) error

	// DropDatabase drops the database cfg points at. It fails with
	// NOT_FOUND when there is nothing to drop.
	DropDatabase(ctx context.Context, cfg Config) error
}

var driverRegistry = struct {
	mu      sync.RWMutex
	drivers map[string]Driver
}{drivers: make(map[string]Driver)}

func init() {
	RegisterDriver(NewPostgresDriver())
	RegisterDriver(NewSQLiteDriver())
}

// RegisterDriver makes d available under d.Name(), replacing any driver
// registered under the same name.
func RegisterDriver(d Driver) {
	driverRegistry.mu.Lock()
	defer driverRegistry.mu.Unlock()
	driverRegistry.drivers[d.Name()] = d
}

// LookupDriver returns the driver registered under name.
func LookupDriver(name string) (Driver, error) {
	driverRegistry.mu.RLock()
	defer driverRegistry.mu.RUnlock()
	d, ok := driverRegistry.drivers[name]
	if !ok {
		return nil, errors.NotFound("database driver", name)
	}
	return d, nil
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	driverRegistry.mu.RLock()
	defer driverRegistry.mu.RUnlock()
	names := make([]string, 0, len(driverRegistry.drivers))
	for name := range driverRegistry.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
