package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateOrder inserts the header and its lines in one call.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		First(&order, "id = ?", orderID).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders pages order headers newest first.
func (r *repository) ListOrders(ctx context.Context, params pagination.Params) (*OrderList, error) {
	query, err := pagination.Newest(r.db.WithContext(ctx).Model(&models.Order{}), params)
	if err != nil {
		return nil, fmt.Errorf("parse cursor: %w", err)
	}

	var rows []models.Order
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	list := &OrderList{}
	list.Orders, list.NextCursor = pagination.Trim(rows, params.Limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return list, nil
}

func (r *repository) FindLine(ctx context.Context, lineID uuid.UUID) (*models.OrderLine, error) {
	var line models.OrderLine
	if err := r.db.WithContext(ctx).First(&line, "id = ?", lineID).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

// FindLineForUpdate reads the line under a row lock held until the transaction ends.
func (r *repository) FindLineForUpdate(ctx context.Context, lineID uuid.UUID) (*models.OrderLine, error) {
	var line models.OrderLine
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&line, "id = ?", lineID).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *repository) UpdateLine(ctx context.Context, lineID uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.OrderLine{}).
		Where("id = ?", lineID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
