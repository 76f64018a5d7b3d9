package enums

import (
	"database/sql/driver"
	"fmt"
)

// OrderLineStatus tracks the lifecycle of an order line.
type OrderLineStatus string

const (
	OrderLineStatusPending            OrderLineStatus = "pending"
	OrderLineStatusConfirmed          OrderLineStatus = "confirmed"
	OrderLineStatusInProduction       OrderLineStatus = "in_production"
	OrderLineStatusProductionComplete OrderLineStatus = "production_complete"
	OrderLineStatusReadyForDispatch   OrderLineStatus = "ready_for_dispatch"
	OrderLineStatusDispatched         OrderLineStatus = "dispatched"
	OrderLineStatusDelivered          OrderLineStatus = "delivered"
	OrderLineStatusCancelled          OrderLineStatus = "cancelled"
)

var validOrderLineStatuses = []OrderLineStatus{
	OrderLineStatusPending,
	OrderLineStatusConfirmed,
	OrderLineStatusInProduction,
	OrderLineStatusProductionComplete,
	OrderLineStatusReadyForDispatch,
	OrderLineStatusDispatched,
	OrderLineStatusDelivered,
	OrderLineStatusCancelled,
}

// legacyOrderLineStatuses maps historical spellings found in existing rows to
// their canonical value. Keys are canonicalToken output.
var legacyOrderLineStatuses = map[string]OrderLineStatus{
	"new":                OrderLineStatusPending,
	"open":               OrderLineStatusPending,
	"allocated":          OrderLineStatusConfirmed,
	"stock_allocated":    OrderLineStatusConfirmed,
	"confirm":            OrderLineStatusConfirmed,
	"inproduction":       OrderLineStatusInProduction,
	"in_progress":        OrderLineStatusInProduction,
	"inprogress":         OrderLineStatusInProduction,
	"processing":         OrderLineStatusInProduction,
	"production":         OrderLineStatusInProduction,
	"produced":           OrderLineStatusProductionComplete,
	"production_done":    OrderLineStatusProductionComplete,
	"ready":              OrderLineStatusReadyForDispatch,
	"ready_to_dispatch":  OrderLineStatusReadyForDispatch,
	"ready_for_shipment": OrderLineStatusReadyForDispatch,
	"shipped":            OrderLineStatusDispatched,
	"dispatch":           OrderLineStatusDispatched,
	"complete":           OrderLineStatusDelivered,
	"completed":          OrderLineStatusDelivered,
	"canceled":           OrderLineStatusCancelled,
	"void":               OrderLineStatusCancelled,
}

var orderLineTransitions = map[OrderLineStatus][]OrderLineStatus{
	OrderLineStatusPending:            {OrderLineStatusConfirmed, OrderLineStatusCancelled},
	OrderLineStatusConfirmed:          {OrderLineStatusInProduction, OrderLineStatusReadyForDispatch, OrderLineStatusCancelled},
	OrderLineStatusInProduction:       {OrderLineStatusProductionComplete, OrderLineStatusCancelled},
	OrderLineStatusProductionComplete: {OrderLineStatusReadyForDispatch, OrderLineStatusCancelled},
	OrderLineStatusReadyForDispatch:   {OrderLineStatusDispatched, OrderLineStatusCancelled},
	OrderLineStatusDispatched:         {OrderLineStatusDelivered},
}

// String implements fmt.Stringer.
func (s OrderLineStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a canonical OrderLineStatus.
func (s OrderLineStatus) IsValid() bool {
	for _, candidate := range validOrderLineStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s OrderLineStatus) IsTerminal() bool {
	return s == OrderLineStatusDelivered || s == OrderLineStatusCancelled
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s OrderLineStatus) CanTransitionTo(next OrderLineStatus) bool {
	for _, candidate := range orderLineTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// IsCancellable reports whether the line has not yet left the mill.
func (s OrderLineStatus) IsCancellable() bool {
	return s.CanTransitionTo(OrderLineStatusCancelled)
}

// ParseOrderLineStatus converts raw input into a canonical OrderLineStatus.
func ParseOrderLineStatus(value string) (OrderLineStatus, error) {
	for _, candidate := range validOrderLineStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order line status %q", value)
}

// NormalizeOrderLineStatus resolves canonical and legacy spellings.
func NormalizeOrderLineStatus(value string) (OrderLineStatus, error) {
	token := canonicalToken(value)
	if status, err := ParseOrderLineStatus(token); err == nil {
		return status, nil
	}
	if status, ok := legacyOrderLineStatuses[token]; ok {
		return status, nil
	}
	return "", fmt.Errorf("invalid order line status %q", value)
}

// Scan implements sql.Scanner and translates legacy values on read.
func (s *OrderLineStatus) Scan(src any) error {
	raw, err := scanString(src)
	if err != nil {
		return err
	}
	if raw == "" {
		*s = ""
		return nil
	}
	status, err := NormalizeOrderLineStatus(raw)
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// Value implements driver.Valuer; only canonical values are written.
func (s OrderLineStatus) Value() (driver.Value, error) {
	return stringValue(string(s), s.IsValid(), "order line status")
}
