// Package views holds the JSON shapes returned by the HTTP API.
package views

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/millflow-backend/internal/allocation"
	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
)

type Order struct {
	ID           uuid.UUID   `json:"id"`
	OrderNumber  string      `json:"order_number"`
	CustomerName string      `json:"customer_name"`
	Notes        *string     `json:"notes,omitempty"`
	CreatedBy    string      `json:"created_by"`
	Lines        []OrderLine `json:"lines,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

type OrderLine struct {
	ID                uuid.UUID             `json:"id"`
	OrderID           uuid.UUID             `json:"order_id"`
	FinishedGoodID    uuid.UUID             `json:"finished_good_id"`
	Color             string                `json:"color,omitempty"`
	QuantityOrdered   decimal.Decimal       `json:"quantity_ordered"`
	QuantityAllocated decimal.Decimal       `json:"quantity_allocated"`
	DueDate           *time.Time            `json:"due_date,omitempty"`
	Status            enums.OrderLineStatus `json:"status"`
	TaskIDs           []uuid.UUID           `json:"task_ids"`
	ConfirmedAt       *time.Time            `json:"confirmed_at,omitempty"`
	ConfirmedBy       *string               `json:"confirmed_by,omitempty"`
	CancelledAt       *time.Time            `json:"cancelled_at,omitempty"`
	CancelReason      *string               `json:"cancel_reason,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

type Task struct {
	ID               uuid.UUID                  `json:"id"`
	TaskNumber       string                     `json:"task_number,omitempty"`
	OrderLineID      uuid.UUID                  `json:"order_line_id"`
	Type             enums.ProductionTaskType   `json:"type"`
	MaterialID       uuid.UUID                  `json:"material_id"`
	QuantityRequired decimal.Decimal            `json:"quantity_required"`
	QuantityProduced decimal.Decimal            `json:"quantity_produced"`
	Status           enums.ProductionTaskStatus `json:"status"`
	Sequence         int                        `json:"sequence"`
	LinkedTaskID     *uuid.UUID                 `json:"linked_task_id,omitempty"`
	TargetDate       time.Time                  `json:"target_date"`
	StartedAt        *time.Time                 `json:"started_at,omitempty"`
	CompletedAt      *time.Time                 `json:"completed_at,omitempty"`
}

type Plan struct {
	QuantityOrdered    decimal.Decimal `json:"quantity_ordered"`
	StockAllocated     decimal.Decimal `json:"stock_allocated"`
	ProductionRequired decimal.Decimal `json:"production_required"`
	NeedsWeaving       bool            `json:"needs_weaving"`
	NeedsCoating       bool            `json:"needs_coating"`
	HasBaseMaterial    bool            `json:"has_base_material"`
	BaseAvailable      decimal.Decimal `json:"base_available"`
	BaseShortage       decimal.Decimal `json:"base_shortage"`
	Anomalies          []string        `json:"anomalies,omitempty"`
}

// Confirmation is returned by the confirm endpoint for both first runs and replays.
type Confirmation struct {
	Line     OrderLine `json:"line"`
	Plan     Plan      `json:"plan"`
	Tasks    []Task    `json:"tasks"`
	Replayed bool      `json:"replayed"`
}

type Preview struct {
	Plan  Plan   `json:"plan"`
	Tasks []Task `json:"tasks"`
}

type Material struct {
	ID                   uuid.UUID          `json:"id"`
	SKU                  string             `json:"sku"`
	Name                 string             `json:"name"`
	Kind                 enums.MaterialKind `json:"kind"`
	Unit                 string             `json:"unit"`
	StockQuantity        decimal.Decimal    `json:"stock_quantity"`
	MinimumStock         decimal.Decimal    `json:"minimum_stock"`
	BelowMinimum         bool               `json:"below_minimum"`
	LinkedBaseMaterialID *uuid.UUID         `json:"linked_base_material_id,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

type Movement struct {
	ID             uuid.UUID               `json:"id"`
	MaterialID     uuid.UUID               `json:"material_id"`
	MovementType   enums.StockMovementType `json:"movement_type"`
	Quantity       decimal.Decimal         `json:"quantity"`
	QuantityBefore decimal.Decimal         `json:"quantity_before"`
	QuantityAfter  decimal.Decimal         `json:"quantity_after"`
	ReferenceType  string                  `json:"reference_type"`
	ReferenceID    uuid.UUID               `json:"reference_id"`
	Actor          string                  `json:"actor"`
	CreatedAt      time.Time               `json:"created_at"`
}

func FromOrder(o *models.Order) Order {
	view := Order{
		ID:           o.ID,
		OrderNumber:  o.OrderNumber,
		CustomerName: o.CustomerName,
		Notes:        o.Notes,
		CreatedBy:    o.CreatedBy,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
	for i := range o.Lines {
		view.Lines = append(view.Lines, FromOrderLine(&o.Lines[i]))
	}
	return view
}

func FromOrders(orders []models.Order) []Order {
	out := make([]Order, 0, len(orders))
	for i := range orders {
		out = append(out, FromOrder(&orders[i]))
	}
	return out
}

func FromOrderLine(l *models.OrderLine) OrderLine {
	taskIDs := []uuid.UUID(l.TaskIDs)
	if taskIDs == nil {
		taskIDs = []uuid.UUID{}
	}
	return OrderLine{
		ID:                l.ID,
		OrderID:           l.OrderID,
		FinishedGoodID:    l.FinishedGoodID,
		Color:             l.Color,
		QuantityOrdered:   l.QuantityOrdered,
		QuantityAllocated: l.QuantityAllocated,
		DueDate:           l.DueDate,
		Status:            l.Status,
		TaskIDs:           taskIDs,
		ConfirmedAt:       l.ConfirmedAt,
		ConfirmedBy:       l.ConfirmedBy,
		CancelledAt:       l.CancelledAt,
		CancelReason:      l.CancelReason,
		CreatedAt:         l.CreatedAt,
		UpdatedAt:         l.UpdatedAt,
	}
}

func FromTask(t *models.ProductionTask) Task {
	return Task{
		ID:               t.ID,
		TaskNumber:       t.TaskNumber,
		OrderLineID:      t.OrderLineID,
		Type:             t.Type,
		MaterialID:       t.MaterialID,
		QuantityRequired: t.QuantityRequired,
		QuantityProduced: t.QuantityProduced,
		Status:           t.Status,
		Sequence:         t.Sequence,
		LinkedTaskID:     t.LinkedTaskID,
		TargetDate:       t.TargetDate,
		StartedAt:        t.StartedAt,
		CompletedAt:      t.CompletedAt,
	}
}

func FromTasks(tasks []models.ProductionTask) []Task {
	out := make([]Task, 0, len(tasks))
	for i := range tasks {
		out = append(out, FromTask(&tasks[i]))
	}
	return out
}

func FromPlan(p allocation.Plan) Plan {
	view := Plan{
		QuantityOrdered:    p.QuantityOrdered,
		StockAllocated:     p.StockAllocated,
		ProductionRequired: p.ProductionRequired,
		NeedsWeaving:       p.NeedsWeaving,
		NeedsCoating:       p.NeedsCoating,
		HasBaseMaterial:    p.HasBaseMaterial,
		BaseAvailable:      p.BaseAvailable,
		BaseShortage:       p.BaseShortage,
	}
	for _, anomaly := range p.Anomalies {
		view.Anomalies = append(view.Anomalies, string(anomaly))
	}
	return view
}

func FromMaterial(m *models.Material) Material {
	return Material{
		ID:                   m.ID,
		SKU:                  m.SKU,
		Name:                 m.Name,
		Kind:                 m.Kind,
		Unit:                 m.Unit,
		StockQuantity:        m.StockQuantity,
		MinimumStock:         m.MinimumStock,
		BelowMinimum:         m.BelowMinimum(),
		LinkedBaseMaterialID: m.LinkedBaseMaterialID,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}

func FromMaterials(materials []models.Material) []Material {
	out := make([]Material, 0, len(materials))
	for i := range materials {
		out = append(out, FromMaterial(&materials[i]))
	}
	return out
}

func FromMovements(movements []models.StockMovement) []Movement {
	out := make([]Movement, 0, len(movements))
	for _, m := range movements {
		out = append(out, Movement{
			ID:             m.ID,
			MaterialID:     m.MaterialID,
			MovementType:   m.MovementType,
			Quantity:       m.Quantity,
			QuantityBefore: m.QuantityBefore,
			QuantityAfter:  m.QuantityAfter,
			ReferenceType:  m.ReferenceType,
			ReferenceID:    m.ReferenceID,
			Actor:          m.Actor,
			CreatedAt:      m.CreatedAt,
		})
	}
	return out
}
