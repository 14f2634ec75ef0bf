// Package repository holds the hand written SQL data access layer. Every
// repository takes the shared *sql.DB pool; mutations that feed the
// notification pipeline set changed_time explicitly so the caller can publish
// a matching check task.
package repository

import (
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("repository: not found")

// notFound translates sql.ErrNoRows into ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
