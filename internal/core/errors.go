package core

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Error classes returned by the engine. Test with errors.Is; anything else is internal.
var (
	// ErrValidation covers malformed dates and enums, bad quantities and unresolved references.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a keyed entity (sale, ledger entry, product, ...) does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned when an operation is not allowed from the entity's current status.
	ErrInvalidState = errors.New("invalid state")
)

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func notFoundErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func invalidStateErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// dbErr wraps a driver error for operation op, reclassifying constraint violations
// as validation errors. The original *pgconn.PgError stays reachable via errors.As.
func dbErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503":
			return fmt.Errorf("%w: %s: referenced row does not exist (%s): %w", ErrValidation, op, pgErr.ConstraintName, err)
		case "23505":
			return fmt.Errorf("%w: %s: duplicate value (%s): %w", ErrValidation, op, pgErr.ConstraintName, err)
		case "23514":
			return fmt.Errorf("%w: %s: %s: %w", ErrValidation, op, pgErr.Message, err)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
