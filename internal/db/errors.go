package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey is returned on a unique constraint violation.
	ErrDuplicateKey = errors.New("duplicate key violation")

	// ErrForeignKeyViolation is returned when a history row references an unknown video.
	ErrForeignKeyViolation = errors.New("foreign key violation")

	// ErrConflict is returned when the transaction lost a serialization or
	// deadlock race with a concurrent one. Retrying later may succeed.
	ErrConflict = errors.New("concurrent transaction conflict")
)

// sqlStates maps the Postgres error codes callers branch on to sentinels.
var sqlStates = map[string]error{
	"23505": ErrDuplicateKey,        // unique_violation
	"23503": ErrForeignKeyViolation, // foreign_key_violation
	"40001": ErrConflict,            // serialization_failure
	"40P01": ErrConflict,            // deadlock_detected
}

// WrapError prefixes err with the operation name and maps pgx and Postgres
// errors to the sentinels above. Unmapped Postgres errors keep their code.
func WrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", operation, ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", operation, err)
	}

	if sentinel, ok := sqlStates[pgErr.Code]; ok {
		if pgErr.ConstraintName != "" {
			return fmt.Errorf("%s: %w (constraint: %s)", operation, sentinel, pgErr.ConstraintName)
		}
		return fmt.Errorf("%s: %w [%s]", operation, sentinel, pgErr.Code)
	}

	return fmt.Errorf("%s: database error [%s]: %w", operation, pgErr.Code, err)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateKey reports whether err wraps ErrDuplicateKey.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}

// IsForeignKeyViolation reports whether err wraps ErrForeignKeyViolation.
func IsForeignKeyViolation(err error) bool {
	return errors.Is(err, ErrForeignKeyViolation)
}

// IsConflict reports whether err wraps ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
