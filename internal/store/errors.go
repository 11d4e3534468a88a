package store

import (
	"context"
	"database/sql/driver"
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// IsTxFailure reports whether err leaves the enclosing transaction unable to
// commit a consistent result: constraint violations, deadlocks, serialization
// and lock conflicts, lost connections and cancelled contexts. Callers roll
// back and retry the whole unit of work instead of skipping past it.
func IsTxFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrConstraint, sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrFull:
			return true
		}
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "23", // integrity constraint violation
			"40", // transaction rollback: serialization_failure, deadlock_detected
			"08", // connection exception
			"53", // insufficient resources
			"57": // operator intervention, query_canceled
			return true
		}
		return pqErr.Code == "55P03" // lock_not_available
	}
	return false
}
