package dbtypes

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// UUIDArray holds an order line's task ids. Postgres stores it as uuid[];
// sqlite keeps the same array literal in a text column.
type UUIDArray []uuid.UUID

func (UUIDArray) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "uuid[]"
	}
	return "text"
}

// Scan accepts an array literal such as {a,b} or {"a","b"}. NULL scans empty.
func (a *UUIDArray) Scan(src any) error {
	if src == nil {
		*a = UUIDArray{}
		return nil
	}
	var raw pq.StringArray
	if err := raw.Scan(src); err != nil {
		return fmt.Errorf("scan task ids: %w", err)
	}
	ids := make(UUIDArray, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("scan task ids: %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	*a = ids
	return nil
}

func (a UUIDArray) Value() (driver.Value, error) {
	raw := make(pq.StringArray, len(a))
	for i, id := range a {
		raw[i] = id.String()
	}
	return raw.Value()
}
