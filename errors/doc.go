// Package errors provides the structured error type shared by every dbscope
// package. Errors carry a machine-readable code so callers can tell a failed
// database creation from a failed fixture load or rollback without parsing
// messages.
package errors
