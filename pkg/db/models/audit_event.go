package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/millflow-backend/pkg/enums"
)

// AuditEvent is an append-only, human-readable business event.
type AuditEvent struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	SubjectID   uuid.UUID         `gorm:"column:subject_id;type:uuid;not null;index:idx_audit_events_subject_id"`
	ActionType  enums.AuditAction `gorm:"column:action_type;type:varchar(64);not null"`
	Description string            `gorm:"column:description;not null"`
	Actor       string            `gorm:"column:actor;not null"`
	Reason      *string           `gorm:"column:reason"`
	OccurredAt  time.Time         `gorm:"column:occurred_at;not null"`
}

func (e *AuditEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return nil
}
