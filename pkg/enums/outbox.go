package enums

import (
	"fmt"
	"strings"
)

// OutboxAggregateType identifies the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrderLine      OutboxAggregateType = "order_line"
	AggregateProductionTask OutboxAggregateType = "production_task"
	AggregateMaterial       OutboxAggregateType = "material"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrderLine,
	AggregateProductionTask,
	AggregateMaterial,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event written to the outbox.
type OutboxEventType string

const (
	EventOrderLineConfirmed     OutboxEventType = "order_line.confirmed"
	EventOrderLineCancelled     OutboxEventType = "order_line.cancelled"
	EventOrderLineStatusChanged OutboxEventType = "order_line.status_changed"
	EventProductionTaskCreated  OutboxEventType = "production_task.created"
	EventProductionTaskStatus   OutboxEventType = "production_task.status_changed"
	EventProductionTaskReleased OutboxEventType = "production_task.released"
	EventMaterialBelowMinimum   OutboxEventType = "material.below_minimum"
)

var validEventTypes = []OutboxEventType{
	EventOrderLineConfirmed,
	EventOrderLineCancelled,
	EventOrderLineStatusChanged,
	EventProductionTaskCreated,
	EventProductionTaskStatus,
	EventProductionTaskReleased,
	EventMaterialBelowMinimum,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// Aggregate is the aggregate an event type is about: the part of its name
// before the first dot.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	prefix, _, _ := strings.Cut(string(e), ".")
	return OutboxAggregateType(prefix)
}
