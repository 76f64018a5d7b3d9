package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/millflow-backend/pkg/enums"
)

// StockMovement journals a single ledger mutation.
type StockMovement struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	MaterialID     uuid.UUID               `gorm:"column:material_id;type:uuid;not null;index:idx_stock_movements_material_created,priority:1"`
	MovementType   enums.StockMovementType `gorm:"column:movement_type;type:varchar(32);not null"`
	Quantity       decimal.Decimal         `gorm:"column:quantity;type:numeric(14,3);not null"`
	QuantityBefore decimal.Decimal         `gorm:"column:quantity_before;type:numeric(14,3);not null"`
	QuantityAfter  decimal.Decimal         `gorm:"column:quantity_after;type:numeric(14,3);not null"`
	ReferenceType  string                  `gorm:"column:reference_type;type:varchar(32);not null"`
	ReferenceID    uuid.UUID               `gorm:"column:reference_id;type:uuid;not null"`
	Actor          string                  `gorm:"column:actor;not null"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime;index:idx_stock_movements_material_created,priority:2"`
}

func (m *StockMovement) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
