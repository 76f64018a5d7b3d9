package enums

import "fmt"

// StockMovementType classifies a ledger journal entry.
type StockMovementType string

const (
	StockMovementAllocation            StockMovementType = "allocation"
	StockMovementRelease               StockMovementType = "release"
	StockMovementProductionOutput      StockMovementType = "production_output"
	StockMovementProductionConsumption StockMovementType = "production_consumption"
)

var validStockMovementTypes = []StockMovementType{
	StockMovementAllocation,
	StockMovementRelease,
	StockMovementProductionOutput,
	StockMovementProductionConsumption,
}

// String implements fmt.Stringer.
func (t StockMovementType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known StockMovementType.
func (t StockMovementType) IsValid() bool {
	for _, candidate := range validStockMovementTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseStockMovementType converts raw input into a StockMovementType.
func ParseStockMovementType(value string) (StockMovementType, error) {
	for _, candidate := range validStockMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock movement type %q", value)
}
