package schema

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/juju/errors"
)

// ErrPartialFailure marks a multi-step mutation that succeeded on some
// stores but not others. The engine does not compensate or retry; it
// reports the inconsistency to the caller, who can check for it with
// errors.Is.
const ErrPartialFailure = errors.ConstError("schema mutation partially applied")

// PostgreSQL error codes worth mapping into domain errors
const (
	pgUndefinedTable  = "42P01"
	pgUndefinedColumn = "42703"
	pgDuplicateTable  = "42P07"
	pgDuplicateColumn = "42701"
)

// mapStoreError translates a raw store error into a domain-level message
// naming the offending object. Unrecognized errors pass through with the
// scope as annotation.
func mapStoreError(err error, format string, args ...interface{}) error {
	scope := fmt.Sprintf(format, args...)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUndefinedTable, pgUndefinedColumn:
			return errors.NotFoundf("%s", scope)
		case pgDuplicateTable, pgDuplicateColumn:
			return errors.AlreadyExistsf("%s", scope)
		}
	}
	return errors.Annotatef(err, "%s", scope)
}

// partialFailure wraps a store error in ErrPartialFailure, naming the
// step that left the stores inconsistent.
func partialFailure(cause error, format string, args ...interface{}) error {
	return errors.Annotatef(fmt.Errorf("%w: %v", ErrPartialFailure, cause), format, args...)
}
