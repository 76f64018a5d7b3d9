package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/millflow-backend/pkg/enums"
)

// Material is a catalog entry in either the base or the finished tier.
type Material struct {
	ID                   uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	SKU                  string             `gorm:"column:sku;not null;uniqueIndex:ux_materials_sku"`
	Name                 string             `gorm:"column:name;not null"`
	Kind                 enums.MaterialKind `gorm:"column:kind;type:varchar(32);not null"`
	Unit                 string             `gorm:"column:unit;type:varchar(16);not null;default:'m'"`
	StockQuantity        decimal.Decimal    `gorm:"column:stock_quantity;type:numeric(14,3);not null;check:chk_materials_stock_non_negative,stock_quantity >= 0"`
	MinimumStock         decimal.Decimal    `gorm:"column:minimum_stock;type:numeric(14,3);not null;check:chk_materials_minimum_non_negative,minimum_stock >= 0"`
	LinkedBaseMaterialID *uuid.UUID         `gorm:"column:linked_base_material_id;type:uuid"`
	CreatedAt            time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *Material) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Unit == "" {
		m.Unit = "m"
	}
	return nil
}

// BelowMinimum reports whether current stock is under the reorder threshold.
func (m Material) BelowMinimum() bool {
	return m.StockQuantity.LessThan(m.MinimumStock)
}
