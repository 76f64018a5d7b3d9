package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/millflow-backend/pkg/db"
	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/millflow-backend/pkg/errors"
	"github.com/angelmondragon/millflow-backend/pkg/pagination"
)

// ErrInsufficientStock reports a guarded decrement that lost to available stock.
var ErrInsufficientStock = errors.New("insufficient stock")

// Reference ties a stock mutation to the business record that caused it.
type Reference struct {
	Movement enums.StockMovementType
	Type     string
	ID       uuid.UUID
	Actor    string
}

// Service is the material ledger: reads plus guarded stock mutations, each journaled.
type Service interface {
	WithTx(tx *gorm.DB) Service
	CreateMaterial(ctx context.Context, input CreateMaterialInput) (*models.Material, error)
	Get(ctx context.Context, materialID uuid.UUID) (*models.Material, error)
	GetForUpdate(ctx context.Context, materialID uuid.UUID) (*models.Material, error)
	Decrement(ctx context.Context, materialID uuid.UUID, amount decimal.Decimal, ref Reference) (*models.StockMovement, error)
	Increment(ctx context.Context, materialID uuid.UUID, amount decimal.Decimal, ref Reference) (*models.StockMovement, error)
	ListBelowMinimum(ctx context.Context) ([]models.Material, error)
	ListMovements(ctx context.Context, materialID uuid.UUID, params pagination.Params) (*MovementPage, error)
}

type CreateMaterialInput struct {
	SKU                  string
	Name                 string
	Kind                 enums.MaterialKind
	Unit                 string
	StockQuantity        decimal.Decimal
	MinimumStock         decimal.Decimal
	LinkedBaseMaterialID *uuid.UUID
}

type MovementPage struct {
	Movements  []models.StockMovement
	NextCursor string
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) CreateMaterial(ctx context.Context, input CreateMaterialInput) (*models.Material, error) {
	sku := strings.TrimSpace(input.SKU)
	if sku == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	}
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid material kind")
	}
	if input.StockQuantity.IsNegative() || input.MinimumStock.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock figures must not be negative")
	}
	if input.LinkedBaseMaterialID != nil {
		if input.Kind != enums.MaterialKindFinished {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "only finished goods may link a base material")
		}
		base, err := s.Get(ctx, *input.LinkedBaseMaterialID)
		if err != nil {
			return nil, err
		}
		if base.Kind != enums.MaterialKindBase {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "linked material must be a base material")
		}
	}

	material := &models.Material{
		SKU:                  sku,
		Name:                 strings.TrimSpace(input.Name),
		Kind:                 input.Kind,
		Unit:                 strings.TrimSpace(input.Unit),
		StockQuantity:        input.StockQuantity,
		MinimumStock:         input.MinimumStock,
		LinkedBaseMaterialID: input.LinkedBaseMaterialID,
	}
	if err := s.repo.Create(ctx, material); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "sku already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create material")
	}
	return material, nil
}

func (s *service) Get(ctx context.Context, materialID uuid.UUID) (*models.Material, error) {
	material, err := s.repo.FindByID(ctx, materialID)
	return material, mapReadError(err)
}

func (s *service) GetForUpdate(ctx context.Context, materialID uuid.UUID) (*models.Material, error) {
	material, err := s.repo.FindByIDForUpdate(ctx, materialID)
	return material, mapReadError(err)
}

func (s *service) Decrement(ctx context.Context, materialID uuid.UUID, amount decimal.Decimal, ref Reference) (*models.StockMovement, error) {
	if err := validateMutation(amount, ref); err != nil {
		return nil, err
	}
	rows, err := s.repo.DecrementIfAvailable(ctx, materialID, amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "decrement stock")
	}
	if rows == 0 {
		if _, err := s.Get(ctx, materialID); err != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, ErrInsufficientStock, "insufficient stock for material "+materialID.String())
	}
	return s.journal(ctx, materialID, amount.Neg(), ref)
}

func (s *service) Increment(ctx context.Context, materialID uuid.UUID, amount decimal.Decimal, ref Reference) (*models.StockMovement, error) {
	if err := validateMutation(amount, ref); err != nil {
		return nil, err
	}
	rows, err := s.repo.Increment(ctx, materialID, amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "increment stock")
	}
	if rows == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "material not found")
	}
	return s.journal(ctx, materialID, amount, ref)
}

// journal re-reads the mutated row and derives the before value from delta.
func (s *service) journal(ctx context.Context, materialID uuid.UUID, delta decimal.Decimal, ref Reference) (*models.StockMovement, error) {
	material, err := s.repo.FindByID(ctx, materialID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "read stock after mutation")
	}
	movement := &models.StockMovement{
		MaterialID:     materialID,
		MovementType:   ref.Movement,
		Quantity:       delta.Abs(),
		QuantityBefore: material.StockQuantity.Sub(delta),
		QuantityAfter:  material.StockQuantity,
		ReferenceType:  ref.Type,
		ReferenceID:    ref.ID,
		Actor:          ref.Actor,
	}
	if err := s.repo.CreateMovement(ctx, movement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "journal stock movement")
	}
	return movement, nil
}

func (s *service) ListBelowMinimum(ctx context.Context) ([]models.Material, error) {
	materials, err := s.repo.ListBelowMinimum(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list materials below minimum")
	}
	return materials, nil
}

func (s *service) ListMovements(ctx context.Context, materialID uuid.UUID, params pagination.Params) (*MovementPage, error) {
	if _, err := s.Get(ctx, materialID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListMovements(ctx, materialID, params)
	if err != nil {
		return nil, listError(err, "list stock movements")
	}
	page := &MovementPage{}
	page.Movements, page.NextCursor = pagination.Trim(rows, params.Limit, func(m models.StockMovement) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})
	return page, nil
}

// listError keeps a bad cursor a client error and treats everything else as
// a store failure.
func listError(err error, msg string) error {
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func validateMutation(amount decimal.Decimal, ref Reference) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !ref.Movement.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid stock movement type")
	}
	if ref.ID == uuid.Nil || strings.TrimSpace(ref.Type) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock movement reference is required")
	}
	return nil
}

func mapReadError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "material not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load material")
}
