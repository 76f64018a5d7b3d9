package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLineConfirmedEvent is emitted once a line's allocation plan commits.
type OrderLineConfirmedEvent struct {
	OrderLineID        uuid.UUID       `json:"orderLineId"`
	OrderID            uuid.UUID       `json:"orderId"`
	FinishedGoodID     uuid.UUID       `json:"finishedGoodId"`
	Color              string          `json:"color,omitempty"`
	QuantityOrdered    decimal.Decimal `json:"quantityOrdered"`
	StockAllocated     decimal.Decimal `json:"stockAllocated"`
	ProductionRequired decimal.Decimal `json:"productionRequired"`
	NeedsWeaving       bool            `json:"needsWeaving"`
	NeedsCoating       bool            `json:"needsCoating"`
	TaskIDs            []uuid.UUID     `json:"taskIds"`
	DueDate            *time.Time      `json:"dueDate,omitempty"`
	ConfirmedBy        string          `json:"confirmedBy"`
	ConfirmedAt        time.Time       `json:"confirmedAt"`
}

// OrderLineCancelledEvent reports a cancellation and the quantity released.
type OrderLineCancelledEvent struct {
	OrderLineID      uuid.UUID       `json:"orderLineId"`
	OrderID          uuid.UUID       `json:"orderId"`
	PreviousStatus   string          `json:"previousStatus"`
	ReleasedQuantity decimal.Decimal `json:"releasedQuantity"`
	Reason           string          `json:"reason,omitempty"`
	CancelledBy      string          `json:"cancelledBy"`
	CancelledAt      time.Time       `json:"cancelledAt"`
}

type OrderLineStatusChangedEvent struct {
	OrderLineID uuid.UUID `json:"orderLineId"`
	OrderID     uuid.UUID `json:"orderId"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	ChangedBy   string    `json:"changedBy"`
	ChangedAt   time.Time `json:"changedAt"`
}

type ProductionTaskCreatedEvent struct {
	TaskID           uuid.UUID       `json:"taskId"`
	TaskNumber       string          `json:"taskNumber"`
	OrderLineID      uuid.UUID       `json:"orderLineId"`
	Type             string          `json:"type"`
	MaterialID       uuid.UUID       `json:"materialId"`
	QuantityRequired decimal.Decimal `json:"quantityRequired"`
	Status           string          `json:"status"`
	Sequence         int             `json:"sequence"`
	LinkedTaskID     *uuid.UUID      `json:"linkedTaskId,omitempty"`
	TargetDate       time.Time       `json:"targetDate"`
}

type ProductionTaskStatusChangedEvent struct {
	TaskID           uuid.UUID       `json:"taskId"`
	TaskNumber       string          `json:"taskNumber"`
	OrderLineID      uuid.UUID       `json:"orderLineId"`
	Type             string          `json:"type"`
	From             string          `json:"from"`
	To               string          `json:"to"`
	QuantityProduced decimal.Decimal `json:"quantityProduced"`
	ChangedBy        string          `json:"changedBy"`
	ChangedAt        time.Time       `json:"changedAt"`
}

// ProductionTaskReleasedEvent signals a dependent task left waiting_materials.
type ProductionTaskReleasedEvent struct {
	TaskID         uuid.UUID `json:"taskId"`
	TaskNumber     string    `json:"taskNumber"`
	OrderLineID    uuid.UUID `json:"orderLineId"`
	ReleasedByTask uuid.UUID `json:"releasedByTaskId"`
	ReleasedAt     time.Time `json:"releasedAt"`
}

type MaterialBelowMinimumEvent struct {
	MaterialID    uuid.UUID       `json:"materialId"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Kind          string          `json:"kind"`
	StockQuantity decimal.Decimal `json:"stockQuantity"`
	MinimumStock  decimal.Decimal `json:"minimumStock"`
	Shortfall     decimal.Decimal `json:"shortfall"`
	DetectedAt    time.Time       `json:"detectedAt"`
}
