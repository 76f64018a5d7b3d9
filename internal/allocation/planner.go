package allocation

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/millflow-backend/pkg/errors"
)

// Anomaly flags input data that was corrected before planning.
type Anomaly string

const (
	AnomalyNegativeFinishedGoodStock Anomaly = "negative_finished_good_stock"
	AnomalyNegativeBaseMaterialStock Anomaly = "negative_base_material_stock"
)

// Plan splits an order-line quantity into stock allocation and production demand.
type Plan struct {
	QuantityOrdered    decimal.Decimal `json:"quantityOrdered"`
	StockAllocated     decimal.Decimal `json:"stockAllocated"`
	ProductionRequired decimal.Decimal `json:"productionRequired"`
	NeedsCoating       bool            `json:"needsCoating"`
	NeedsWeaving       bool            `json:"needsWeaving"`
	HasBaseMaterial    bool            `json:"hasBaseMaterial"`
	BaseAvailable      decimal.Decimal `json:"baseAvailable"`
	BaseShortage       decimal.Decimal `json:"baseShortage"`
	Anomalies          []Anomaly       `json:"anomalies,omitempty"`
}

// HasProduction reports whether any production task is needed.
func (p Plan) HasProduction() bool {
	return p.ProductionRequired.IsPositive()
}

// Compute derives the plan for quantityOrdered against the finished good stock
// and, when a base material is linked, its stock. baseStock is nil when the
// finished good has no linked base material.
func Compute(quantityOrdered, finishedGoodStock decimal.Decimal, baseStock *decimal.Decimal) (Plan, error) {
	if !quantityOrdered.IsPositive() {
		return Plan{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity ordered must be positive")
	}

	plan := Plan{
		QuantityOrdered: quantityOrdered,
		BaseAvailable:   decimal.Zero,
		BaseShortage:    decimal.Zero,
		HasBaseMaterial: baseStock != nil,
	}

	if finishedGoodStock.IsNegative() {
		plan.Anomalies = append(plan.Anomalies, AnomalyNegativeFinishedGoodStock)
		finishedGoodStock = decimal.Zero
	}

	plan.StockAllocated = decimal.Min(quantityOrdered, finishedGoodStock)
	plan.ProductionRequired = decimal.Max(decimal.Zero, quantityOrdered.Sub(finishedGoodStock))

	if !plan.ProductionRequired.IsPositive() {
		if baseStock != nil && baseStock.IsNegative() {
			plan.Anomalies = append(plan.Anomalies, AnomalyNegativeBaseMaterialStock)
		}
		return plan, nil
	}

	if baseStock != nil {
		available := *baseStock
		if available.IsNegative() {
			plan.Anomalies = append(plan.Anomalies, AnomalyNegativeBaseMaterialStock)
			available = decimal.Zero
		}
		plan.BaseAvailable = available
		plan.BaseShortage = decimal.Max(decimal.Zero, plan.ProductionRequired.Sub(available))
		plan.NeedsWeaving = plan.BaseShortage.IsPositive()
	} else {
		plan.BaseShortage = plan.ProductionRequired
		plan.NeedsWeaving = true
	}
	plan.NeedsCoating = true

	return plan, nil
}
