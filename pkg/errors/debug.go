package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const (
	sqlStateUnique        = "23505"
	sqlStateSerialization = "40001"
	sqlStateDeadlock      = "40P01"
)

// DriverError is what postgres (pgx or lib/pq) or sqlite reported for a
// failed statement.
type DriverError struct {
	SQLState   string `json:"pg_code,omitempty"`
	Constraint string `json:"pg_constraint,omitempty"`
	Table      string `json:"pg_table,omitempty"`
	Column     string `json:"pg_column,omitempty"`
	Detail     string `json:"pg_detail,omitempty"`
	Message    string `json:"pg_message,omitempty"`

	SQLiteCode     int `json:"sqlite_code,omitempty"`
	SQLiteExtended int `json:"sqlite_extended,omitempty"`
}

// Driver finds the first driver error in err's chain.
func Driver(err error) (DriverError, bool) {
	if err == nil {
		return DriverError{}, false
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return DriverError{
			SQLState:   pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}, true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return DriverError{
			SQLState:   string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}, true
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return DriverError{
			Message:        liteErr.Error(),
			SQLiteCode:     int(liteErr.Code),
			SQLiteExtended: int(liteErr.ExtendedCode),
		}, true
	}
	return DriverError{}, false
}

func (d DriverError) UniqueViolation() bool {
	return d.SQLState == sqlStateUnique ||
		d.SQLiteExtended == int(sqlite3.ErrConstraintUnique) ||
		d.SQLiteExtended == int(sqlite3.ErrConstraintPrimaryKey)
}

// Concurrency reports an abort the whole transaction may be retried after.
func (d DriverError) Concurrency() bool {
	switch {
	case d.SQLState == sqlStateSerialization, d.SQLState == sqlStateDeadlock:
		return true
	case d.SQLiteCode == int(sqlite3.ErrBusy), d.SQLiteCode == int(sqlite3.ErrLocked):
		return true
	}
	return false
}

// ErrorDump is the log-only view of an error chain.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`
	DriverError
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}
	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	d.DriverError, _ = Driver(err)
	return d
}
