// Package repository holds the persistence adapters of the reservation
// service.  MySQL-backed repositories live next to in-memory ones that
// satisfy the same contracts; the latter serve single-process
// deployments and double as test fakes.
package repository

import (
	"database/sql"
	"errors"
	"strings"
)

// ErrConflict is returned when a write cannot proceed because of
// existing state, such as a room name that is already taken.  Handlers
// translate it into HTTP 409.
var ErrConflict = errors.New("conflict")

// isDuplicateKey reports whether err is MySQL error 1062.
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "1062")
}

// notFound maps sql.ErrNoRows to the given domain sentinel and leaves
// other errors untouched.
func notFound(err, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return err
}
