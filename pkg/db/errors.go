package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/millflow-backend/pkg/errors"
)

// IsUniqueViolation reports a unique constraint failure from postgres or
// sqlite. A non-empty constraint must appear in the constraint name or, for
// sqlite, in the "table.column" list of the message.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if d, ok := pkgerrors.Driver(err); ok {
		if !d.UniqueViolation() {
			return false
		}
		return constraint == "" ||
			strings.Contains(d.Constraint, constraint) ||
			strings.Contains(d.Message, constraint)
	}
	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	return constraint == "" || strings.Contains(msg, constraint)
}

// IsSerializationFailure reports a serialization failure, deadlock or busy
// database, after which the transaction can be rerun.
func IsSerializationFailure(err error) bool {
	if err == nil {
		return false
	}
	if d, ok := pkgerrors.Driver(err); ok {
		return d.Concurrency()
	}
	msg := err.Error()
	return strings.Contains(msg, "could not serialize access") ||
		strings.Contains(msg, "deadlock detected") ||
		strings.Contains(msg, "database is locked")
}
