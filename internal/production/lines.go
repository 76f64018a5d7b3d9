package production

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
)

// LineStore is the slice of order-line persistence production execution needs
// to advance a line as its tasks progress.
type LineStore interface {
	WithTx(tx *gorm.DB) LineStore
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.OrderLine, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderLineStatus) error
}

type lineStore struct {
	db *gorm.DB
}

func NewLineStore(db *gorm.DB) LineStore {
	return &lineStore{db: db}
}

func (s *lineStore) WithTx(tx *gorm.DB) LineStore {
	if tx == nil {
		return s
	}
	return &lineStore{db: tx}
}

func (s *lineStore) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.OrderLine, error) {
	var line models.OrderLine
	if err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&line, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

func (s *lineStore) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderLineStatus) error {
	return s.db.WithContext(ctx).
		Model(&models.OrderLine{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}
