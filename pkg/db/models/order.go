package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Order is the customer-facing header owning one or more lines.
type Order struct {
	ID           uuid.UUID   `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber  string      `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number"`
	CustomerName string      `gorm:"column:customer_name;not null"`
	Notes        *string     `gorm:"column:notes"`
	CreatedBy    string      `gorm:"column:created_by;not null"`
	Lines        []OrderLine `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt    time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
