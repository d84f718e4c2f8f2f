// Package repository holds the data access layer.  The sentinel values
// below let higher layers distinguish store outcomes without inspecting
// driver errors.  ErrNotFound is returned when a lookup matches no row;
// ErrDuplicateActive when the one-active-ticket-per-owner index rejects
// an insert.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateActive is returned when an owner already holds an active
// ticket.  Handlers should translate this into an HTTP 409 response.
var ErrDuplicateActive = errors.New("owner already holds an active ticket")

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("transaction already finished")

// mysqlDuplicateEntry is the server error number for a UNIQUE violation.
const mysqlDuplicateEntry = 1062

// isDuplicate reports whether err is a MySQL duplicate-key error.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
