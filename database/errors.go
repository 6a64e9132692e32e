package database

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/kbukum/dbscope/errors"
)

// PostgreSQL SQLSTATE codes the scopes care about.
const (
	pgUniqueViolation   = "23505"
	pgDuplicateDatabase = "42P04"
	pgInvalidCatalog    = "3D000"
	pgObjectInUse       = "55006"
)

// IsConnectionError checks if a database error means the server could not
// be reached or the connection broke.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	patterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"no route to host",
		"network is unreachable",
		"connection closed",
		"driver: bad connection",
		"sql: database is closed",
	}
	for _, p := range patterns {
		if strings.Contains(errStr, p) {
			return true
		}
	}
	return false
}

// IsDuplicateError checks if the error is a duplicate-key violation.
func IsDuplicateError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return pgCode(err) == pgUniqueViolation
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// FromDatabase converts a database error about resource to an AppError.
func FromDatabase(err error, resource string) *apperrors.AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr
	}

	switch code := pgCode(err); code {
	case pgDuplicateDatabase, pgUniqueViolation:
		return apperrors.AlreadyExists(resource).WithCause(err)
	case pgInvalidCatalog:
		return apperrors.NotFound(resource, "").WithCause(err)
	case pgObjectInUse:
		return apperrors.DatabaseError(err).WithDetail("reason", "in use").WithDetail("resource", resource)
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.NotFound(resource, "").WithCause(err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.AlreadyExists(resource).WithCause(err)
	case IsConnectionError(err):
		return apperrors.DatabaseError(err).WithDetail("reason", "unreachable").WithDetail("resource", resource)
	}

	return apperrors.DatabaseError(err).WithDetail("resource", resource)
}
