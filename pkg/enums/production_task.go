package enums

import (
	"database/sql/driver"
	"fmt"
)

// ProductionTaskType identifies the manufacturing stage of a task.
type ProductionTaskType string

const (
	ProductionTaskTypeWeaving ProductionTaskType = "weaving"
	ProductionTaskTypeCoating ProductionTaskType = "coating"
)

var validProductionTaskTypes = []ProductionTaskType{
	ProductionTaskTypeWeaving,
	ProductionTaskTypeCoating,
}

// String implements fmt.Stringer.
func (t ProductionTaskType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known ProductionTaskType.
func (t ProductionTaskType) IsValid() bool {
	for _, candidate := range validProductionTaskTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// NumberPrefix returns the tag used in human-readable task numbers.
func (t ProductionTaskType) NumberPrefix() string {
	switch t {
	case ProductionTaskTypeWeaving:
		return "WV"
	case ProductionTaskTypeCoating:
		return "CT"
	default:
		return "PT"
	}
}

// ParseProductionTaskType converts raw input into a ProductionTaskType.
func ParseProductionTaskType(value string) (ProductionTaskType, error) {
	for _, candidate := range validProductionTaskTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid production task type %q", value)
}

// ProductionTaskStatus tracks the execution state of a production task.
type ProductionTaskStatus string

const (
	ProductionTaskStatusWaitingMaterials ProductionTaskStatus = "waiting_materials"
	ProductionTaskStatusPending          ProductionTaskStatus = "pending"
	ProductionTaskStatusInProgress       ProductionTaskStatus = "in_progress"
	ProductionTaskStatusOnHold           ProductionTaskStatus = "on_hold"
	ProductionTaskStatusCompleted        ProductionTaskStatus = "completed"
)

var validProductionTaskStatuses = []ProductionTaskStatus{
	ProductionTaskStatusWaitingMaterials,
	ProductionTaskStatusPending,
	ProductionTaskStatusInProgress,
	ProductionTaskStatusOnHold,
	ProductionTaskStatusCompleted,
}

var legacyProductionTaskStatuses = map[string]ProductionTaskStatus{
	"waiting":            ProductionTaskStatusWaitingMaterials,
	"waiting_material":   ProductionTaskStatusWaitingMaterials,
	"awaiting_materials": ProductionTaskStatusWaitingMaterials,
	"blocked":            ProductionTaskStatusWaitingMaterials,
	"new":                ProductionTaskStatusPending,
	"queued":             ProductionTaskStatusPending,
	"ready":              ProductionTaskStatusPending,
	"inprogress":         ProductionTaskStatusInProgress,
	"started":            ProductionTaskStatusInProgress,
	"running":            ProductionTaskStatusInProgress,
	"processing":         ProductionTaskStatusInProgress,
	"hold":               ProductionTaskStatusOnHold,
	"onhold":             ProductionTaskStatusOnHold,
	"paused":             ProductionTaskStatusOnHold,
	"done":               ProductionTaskStatusCompleted,
	"complete":           ProductionTaskStatusCompleted,
	"finished":           ProductionTaskStatusCompleted,
}

var productionTaskTransitions = map[ProductionTaskStatus][]ProductionTaskStatus{
	ProductionTaskStatusWaitingMaterials: {ProductionTaskStatusPending},
	ProductionTaskStatusPending:          {ProductionTaskStatusInProgress},
	ProductionTaskStatusInProgress:       {ProductionTaskStatusOnHold, ProductionTaskStatusCompleted},
	ProductionTaskStatusOnHold:           {ProductionTaskStatusInProgress},
}

// String implements fmt.Stringer.
func (s ProductionTaskStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a canonical ProductionTaskStatus.
func (s ProductionTaskStatus) IsValid() bool {
	for _, candidate := range validProductionTaskStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s ProductionTaskStatus) CanTransitionTo(next ProductionTaskStatus) bool {
	for _, candidate := range productionTaskTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseProductionTaskStatus converts raw input into a canonical ProductionTaskStatus.
func ParseProductionTaskStatus(value string) (ProductionTaskStatus, error) {
	for _, candidate := range validProductionTaskStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid production task status %q", value)
}

// NormalizeProductionTaskStatus resolves canonical and legacy spellings.
func NormalizeProductionTaskStatus(value string) (ProductionTaskStatus, error) {
	token := canonicalToken(value)
	if status, err := ParseProductionTaskStatus(token); err == nil {
		return status, nil
	}
	if status, ok := legacyProductionTaskStatuses[token]; ok {
		return status, nil
	}
	return "", fmt.Errorf("invalid production task status %q", value)
}

// Scan implements sql.Scanner and translates legacy values on read.
func (s *ProductionTaskStatus) Scan(src any) error {
	raw, err := scanString(src)
	if err != nil {
		return err
	}
	if raw == "" {
		*s = ""
		return nil
	}
	status, err := NormalizeProductionTaskStatus(raw)
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// Value implements driver.Valuer; only canonical values are written.
func (s ProductionTaskStatus) Value() (driver.Value, error) {
	return stringValue(string(s), s.IsValid(), "production task status")
}
