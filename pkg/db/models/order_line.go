package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/millflow-backend/pkg/db/types"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
)

// OrderLine is the unit of allocation and production planning.
type OrderLine struct {
	ID                uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index:idx_order_lines_order_id"`
	FinishedGoodID    uuid.UUID             `gorm:"column:finished_good_id;type:uuid;not null;index:idx_order_lines_finished_good_id"`
	Color             string                `gorm:"column:color"`
	QuantityOrdered   decimal.Decimal       `gorm:"column:quantity_ordered;type:numeric(14,3);not null;check:chk_order_lines_quantity_positive,quantity_ordered > 0"`
	QuantityAllocated decimal.Decimal       `gorm:"column:quantity_allocated;type:numeric(14,3);not null;default:0"`
	DueDate           *time.Time            `gorm:"column:due_date"`
	Status            enums.OrderLineStatus `gorm:"column:status;type:varchar(32);not null;default:'pending'"`
	ConfirmationEpoch int                   `gorm:"column:confirmation_epoch;not null;default:0"`
	ConfirmationKey   *string               `gorm:"column:confirmation_key"`
	TaskIDs           dbtypes.UUIDArray     `gorm:"column:task_ids"`
	// Base snapshot taken at confirmation. BaseAvailable is null when the
	// finished good had no linked base material.
	BaseAvailable     decimal.NullDecimal   `gorm:"column:base_available;type:numeric(14,3)"`
	BaseShortage      decimal.Decimal       `gorm:"column:base_shortage;type:numeric(14,3);not null;default:0"`
	ConfirmedAt       *time.Time            `gorm:"column:confirmed_at"`
	ConfirmedBy       *string               `gorm:"column:confirmed_by"`
	CancelledAt       *time.Time            `gorm:"column:cancelled_at"`
	CancelReason      *string               `gorm:"column:cancel_reason"`
	CreatedAt         time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *OrderLine) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = enums.OrderLineStatusPending
	}
	if l.TaskIDs == nil {
		l.TaskIDs = dbtypes.UUIDArray{}
	}
	return nil
}
