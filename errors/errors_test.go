package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppError_New(t *testing.T) {
	err := New(ErrCodeInvalidState, "scope not started")
	if err.Code != ErrCodeInvalidState {
		t.Errorf("expected code %s, got %s", ErrCodeInvalidState, err.Code)
	}
	if err.Error() != "INVALID_STATE: scope not started" {
		t.Errorf("unexpected Error() %q", err.Error())
	}

	f := Newf(ErrCodeNotFound, "alias %q", "replica")
	if f.Message != `alias "replica"` {
		t.Errorf("unexpected message %q", f.Message)
	}
}

func TestAppError_NotFound_EmptyID(t *testing.T) {
	err := NotFound("alias", "")
	if _, ok := err.Details["id"]; ok {
		t.Error("expected no 'id' key in details when id is empty")
	}
	if err.Details["resource"] != "alias" {
		t.Errorf("expected resource=alias, got %v", err.Details["resource"])
	}
}

func TestAppError_WithCause_Chain(t *testing.T) {
	cause := fmt.Errorf("permission denied to create database")
	err := ResourceCreationFailed("database", nil).WithCause(cause)
	if err.Cause != cause {
		t.Error("expected cause to be set via WithCause")
	}
	if !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("Error() should contain cause, got %q", err.Error())
	}
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should see the cause")
	}
}

func TestAppError_WithDetails_Merge(t *testing.T) {
	err := FixtureLoadFailed("users", nil).WithDetails(map[string]any{"record": 3})
	if err.Details["record"] != 3 {
		t.Errorf("expected record=3 in details")
	}
	if err.Details["fixture"] != "users" {
		t.Error("expected original details to be preserved")
	}

	err.WithDetail("record", 4)
	if err.Details["record"] != 4 {
		t.Errorf("expected record=4 after overwrite")
	}
}

func TestAppError_WithDetail_NilMap(t *testing.T) {
	err := &AppError{}
	err.WithDetail("key", "value")
	if err.Details["key"] != "value" {
		t.Errorf("expected key=value, got %v", err.Details["key"])
	}
}

func TestAppError_Constructors_Table(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code ErrorCode
	}{
		{"ResourceCreationFailed", ResourceCreationFailed("database", nil), ErrCodeResourceCreationFailed},
		{"FixtureLoadFailed", FixtureLoadFailed("users.json", nil), ErrCodeFixtureLoadFailed},
		{"MigrationFailed", MigrationFailed("unknown migration", nil), ErrCodeMigrationFailed},
		{"TeardownFailed", TeardownFailed("transaction", nil), ErrCodeTeardownFailed},
		{"InvalidConfig", InvalidConfig("db_prefix", "too long"), ErrCodeInvalidConfig},
		{"Validation", Validation("bad input"), ErrCodeInvalidConfig},
		{"InvalidState", InvalidState("not started"), ErrCodeInvalidState},
		{"AlreadyExists", AlreadyExists("database"), ErrCodeAlreadyExists},
		{"Internal", Internal(nil), ErrCodeInternal},
		{"DatabaseError", DatabaseError(nil), ErrCodeDatabaseError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Code != tc.code {
				t.Errorf("expected code %s, got %s", tc.code, tc.err.Code)
			}
			if tc.err.Message == "" {
				t.Error("expected a message")
			}
		})
	}
}

func TestHasCode(t *testing.T) {
	base := TeardownFailed("transaction", fmt.Errorf("conn closed"))

	if !HasCode(base, ErrCodeTeardownFailed) {
		t.Error("expected direct match")
	}
	if !HasCode(fmt.Errorf("outer: %w", base), ErrCodeTeardownFailed) {
		t.Error("expected match through fmt wrapping")
	}
	if HasCode(base, ErrCodeFixtureLoadFailed) {
		t.Error("unexpected match for a different code")
	}
	if HasCode(nil, ErrCodeInternal) {
		t.Error("nil never has a code")
	}

	joined := stderrors.Join(fmt.Errorf("block failed"), base)
	if !HasCode(joined, ErrCodeTeardownFailed) {
		t.Error("expected match inside errors.Join")
	}

	nested := FixtureLoadFailed("users", MigrationFailed("inner", nil))
	if !HasCode(nested, ErrCodeMigrationFailed) {
		t.Error("expected match on a nested AppError cause")
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(fmt.Errorf("wrap: %w", InvalidState("x"))) != ErrCodeInvalidState {
		t.Error("expected INVALID_STATE")
	}
	if CodeOf(fmt.Errorf("plain")) != "" {
		t.Error("expected empty code for plain error")
	}
}

func TestAsAppError(t *testing.T) {
	appErr := Internal(nil)
	got, ok := AsAppError(fmt.Errorf("wrap: %w", appErr))
	if !ok || got != appErr {
		t.Fatal("expected AsAppError to succeed for wrapped AppError")
	}
	if _, ok := AsAppError(fmt.Errorf("not an app error")); ok {
		t.Error("expected AsAppError to return false for non-AppError")
	}
	if !IsAppError(appErr) {
		t.Error("expected IsAppError true")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil) != nil {
		t.Error("Wrap(nil) should return nil")
	}

	orig := NotFound("alias", "default")
	if Wrap(fmt.Errorf("outer: %w", orig)) != orig {
		t.Error("Wrap should return the original AppError")
	}

	plain := fmt.Errorf("something broke")
	got := Wrap(plain)
	if got.Code != ErrCodeInternal || got.Cause != plain {
		t.Errorf("expected INTERNAL_ERROR wrapping the plain error, got %v", got)
	}
}
