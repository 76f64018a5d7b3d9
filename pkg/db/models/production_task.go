package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/millflow-backend/pkg/enums"
)

// ProductionTask is one stage of the weaving/coating chain for an order line.
type ProductionTask struct {
	ID               uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	TaskNumber       string                     `gorm:"column:task_number;not null;uniqueIndex:ux_production_tasks_task_number"`
	OrderLineID      uuid.UUID                  `gorm:"column:order_line_id;type:uuid;not null;index:idx_production_tasks_order_line_id"`
	Type             enums.ProductionTaskType   `gorm:"column:type;type:varchar(32);not null;uniqueIndex:ux_production_tasks_idempotency_key_type,priority:2"`
	MaterialID       uuid.UUID                  `gorm:"column:material_id;type:uuid;not null"`
	QuantityRequired decimal.Decimal            `gorm:"column:quantity_required;type:numeric(14,3);not null"`
	QuantityProduced decimal.Decimal            `gorm:"column:quantity_produced;type:numeric(14,3);not null;default:0"`
	Status           enums.ProductionTaskStatus `gorm:"column:status;type:varchar(32);not null"`
	Sequence         int                        `gorm:"column:sequence;not null"`
	LinkedTaskID     *uuid.UUID                 `gorm:"column:linked_task_id;type:uuid;index:idx_production_tasks_linked_task_id"`
	TargetDate       time.Time                  `gorm:"column:target_date;not null"`
	IdempotencyKey   string                     `gorm:"column:idempotency_key;not null;uniqueIndex:ux_production_tasks_idempotency_key_type,priority:1"`
	StartedAt        *time.Time                 `gorm:"column:started_at"`
	CompletedAt      *time.Time                 `gorm:"column:completed_at"`
	CreatedAt        time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

func (t *ProductionTask) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// TaskNumberSequence is the per-type counter behind human-readable task numbers.
type TaskNumberSequence struct {
	Type      enums.ProductionTaskType `gorm:"column:type;type:varchar(32);primaryKey"`
	LastValue int64                    `gorm:"column:last_value;not null;default:0"`
	UpdatedAt time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
