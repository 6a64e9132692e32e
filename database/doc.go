// Package database provides the GORM plumbing shared by dbscope's scopes:
// connection configuration, the alias registry, database drivers that can
// create and drop whole databases, and table-level helpers.
//
// # Configuration
//
// A Config describes one database. Settings maps aliases to Configs and is
// the registry application code reads its connection details from; scopes
// swap entries in and out of it.
//
//	settings := database.Global()
//	settings.Set("default", database.Config{Driver: "postgres", Name: "app", Host: "localhost"})
//
// # Drivers
//
// A Driver knows how to build a GORM dialector for a Config and how to
// create and drop databases on its server. "postgres" (pgx) and "sqlite"
// (file per database) are registered by default. The postgres driver retries
// its admin connection and DROP DATABASE per PostgresDriver.Retry while the
// server is starting or the database still has sessions.
//
//	drv, err := database.LookupDriver(cfg.Driver)
//	err = drv.CreateDatabase(ctx, drv.TemporaryConfig(cfg, "test_0f3a"))
//
// # Connections
//
// Open connects a DB without retrying; a database that is not reachable is
// reported immediately.
package database
