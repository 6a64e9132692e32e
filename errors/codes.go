package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Scope lifecycle errors
const (
	// ErrCodeResourceCreationFailed indicates a database or transaction could not be created.
	ErrCodeResourceCreationFailed ErrorCode = "RESOURCE_CREATION_FAILED"
	// ErrCodeFixtureLoadFailed indicates a fixture was missing, malformed or rejected.
	ErrCodeFixtureLoadFailed ErrorCode = "FIXTURE_LOAD_FAILED"
	// ErrCodeMigrationFailed indicates a migration could not be read or applied.
	ErrCodeMigrationFailed ErrorCode = "MIGRATION_FAILED"
	// ErrCodeTeardownFailed indicates a rollback or drop failed.
	ErrCodeTeardownFailed ErrorCode = "TEARDOWN_FAILED"
)

// Resource errors
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeAlreadyExists indicates the resource already exists.
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
)

// Caller errors
const (
	// ErrCodeInvalidConfig indicates configuration or options failed validation.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	// ErrCodeInvalidState indicates an operation was called in the wrong lifecycle state.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
)

// Internal errors
const (
	// ErrCodeInternal indicates an unexpected error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrCodeDatabaseError indicates a database error.
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
)
