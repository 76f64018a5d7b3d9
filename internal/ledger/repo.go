package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/pagination"
)

// Repository manages persistence for materials and their stock journal.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, material *models.Material) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Material, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Material, error)
	DecrementIfAvailable(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (int64, error)
	Increment(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (int64, error)
	ListBelowMinimum(ctx context.Context) ([]models.Material, error)
	CreateMovement(ctx context.Context, movement *models.StockMovement) error
	ListMovements(ctx context.Context, materialID uuid.UUID, params pagination.Params) ([]models.StockMovement, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, material *models.Material) error {
	return r.db.WithContext(ctx).Create(material).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Material, error) {
	var material models.Material
	if err := r.db.WithContext(ctx).First(&material, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &material, nil
}

// FindByIDForUpdate reads the row under SELECT ... FOR UPDATE. The lock is a
// no-op on sqlite, where the single writer already serializes transactions.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Material, error) {
	var material models.Material
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&material, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &material, nil
}

// DecrementIfAvailable subtracts amount only when enough stock remains.
// Zero affected rows means the row is missing or stock is short.
func (r *repository) DecrementIfAvailable(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE materials SET stock_quantity = stock_quantity - ?, updated_at = ? WHERE id = ? AND stock_quantity >= ?`,
		amount, time.Now().UTC(), id, amount,
	)
	return res.RowsAffected, res.Error
}

func (r *repository) Increment(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE materials SET stock_quantity = stock_quantity + ?, updated_at = ? WHERE id = ?`,
		amount, time.Now().UTC(), id,
	)
	return res.RowsAffected, res.Error
}

func (r *repository) ListBelowMinimum(ctx context.Context) ([]models.Material, error) {
	var materials []models.Material
	if err := r.db.WithContext(ctx).
		Where("stock_quantity < minimum_stock").
		Order("sku ASC").
		Find(&materials).Error; err != nil {
		return nil, err
	}
	return materials, nil
}

func (r *repository) CreateMovement(ctx context.Context, movement *models.StockMovement) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

// ListMovements returns newest-first movements with one extra row for next-page detection.
func (r *repository) ListMovements(ctx context.Context, materialID uuid.UUID, params pagination.Params) ([]models.StockMovement, error) {
	query, err := pagination.Newest(r.db.WithContext(ctx).Where("material_id = ?", materialID), params)
	if err != nil {
		return nil, err
	}
	var movements []models.StockMovement
	if err := query.Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}
