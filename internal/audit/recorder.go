package audit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
)

const savepointName = "audit_event"

// Entry is one human-readable business event.
type Entry struct {
	SubjectID   uuid.UUID
	ActionType  enums.AuditAction
	Description string
	Actor       string
	Reason      string
	OccurredAt  time.Time
}

// Recorder appends audit events. Appends are best effort: a failed insert is
// rolled back to its own savepoint and logged, and the caller's transaction
// continues.
type Recorder struct {
	db   *gorm.DB
	logg *logger.Logger
}

func NewRecorder(db *gorm.DB, logg *logger.Logger) *Recorder {
	return &Recorder{db: db, logg: logg}
}

// Append writes entry inside tx and reports whether it was stored.
func (r *Recorder) Append(ctx context.Context, tx *gorm.DB, entry Entry) bool {
	if tx == nil {
		r.warn(ctx, entry, "audit append skipped: no transaction", nil)
		return false
	}
	row := models.AuditEvent{
		SubjectID:   entry.SubjectID,
		ActionType:  entry.ActionType,
		Description: entry.Description,
		Actor:       entry.Actor,
		OccurredAt:  entry.OccurredAt.UTC(),
	}
	if reason := strings.TrimSpace(entry.Reason); reason != "" {
		row.Reason = &reason
	}

	if err := tx.SavePoint(savepointName).Error; err != nil {
		r.warn(ctx, entry, "audit savepoint failed", err)
		return false
	}
	if err := tx.WithContext(ctx).Create(&row).Error; err != nil {
		if rbErr := tx.RollbackTo(savepointName).Error; rbErr != nil {
			r.warn(ctx, entry, "audit savepoint rollback failed", rbErr)
		}
		r.warn(ctx, entry, "audit append failed", err)
		return false
	}
	if err := tx.Exec("RELEASE SAVEPOINT " + savepointName).Error; err != nil {
		r.warn(ctx, entry, "audit savepoint release failed", err)
	}
	return true
}

// ListBySubject returns events for a subject, oldest first.
func (r *Recorder) ListBySubject(ctx context.Context, subjectID uuid.UUID) ([]models.AuditEvent, error) {
	var events []models.AuditEvent
	err := r.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("occurred_at ASC").
		Find(&events).Error
	return events, err
}

func (r *Recorder) warn(ctx context.Context, entry Entry, msg string, err error) {
	if r.logg == nil {
		return
	}
	fields := map[string]any{
		"subject_id":  entry.SubjectID.String(),
		"action_type": entry.ActionType,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	r.logg.Warn(r.logg.WithFields(ctx, fields), msg)
}
