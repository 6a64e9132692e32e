// Package logger provides structured logging for dbscope using zerolog.
//
// Every scope (temporary database, transactionless block, migrator, fixture
// loader) logs through a component-tagged Logger so that lifecycle events of
// a test run can be filtered by component and database name.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "console"
//
// # Usage
//
//	log := logger.Get("tempdb")
//	log.Info("database created", logger.Fields(logger.FieldDatabase, name))
package logger
