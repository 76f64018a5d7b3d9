package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/millflow-backend/pkg/config"
	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
	"github.com/angelmondragon/millflow-backend/pkg/outbox"
	"github.com/angelmondragon/millflow-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	taskID := uuid.New()
	lineID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.OrderLineConfirmedEvent{
		OrderLineID:        lineID,
		OrderID:            uuid.New(),
		FinishedGoodID:     uuid.New(),
		QuantityOrdered:    decimal.NewFromInt(100),
		StockAllocated:     decimal.NewFromInt(40),
		ProductionRequired: decimal.NewFromInt(60),
		NeedsCoating:       true,
		TaskIDs:            []uuid.UUID{taskID},
	})

	event := models.OutboxEvent{
		EventType:     enums.EventOrderLineConfirmed,
		AggregateType: enums.AggregateOrderLine,
		AggregateID:   lineID,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "orders-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.OrderLineConfirmedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if len(payload.TaskIDs) != 1 || payload.TaskIDs[0] != taskID {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if !payload.ProductionRequired.Equal(decimal.NewFromInt(60)) {
		t.Fatalf("unexpected production required %s", payload.ProductionRequired)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
}

func TestEventRegistryRoutesByTopic(t *testing.T) {
	reg := newTestEventRegistry(t)

	cases := map[enums.OutboxEventType]string{
		enums.EventOrderLineCancelled:     "orders-topic",
		enums.EventProductionTaskCreated:  "production-topic",
		enums.EventProductionTaskReleased: "production-topic",
		enums.EventMaterialBelowMinimum:   "inventory-topic",
	}
	for eventType, topic := range cases {
		desc, ok := reg.entries[eventType]
		if !ok {
			t.Fatalf("event %s not registered", eventType)
		}
		if desc.Topic != topic {
			t.Fatalf("event %s routed to %s, want %s", eventType, desc.Topic, topic)
		}
	}

	topics := reg.Topics()
	if len(topics) != 3 || topics[0] != "inventory-topic" {
		t.Fatalf("unexpected topics %v", topics)
	}
}

func TestEventRegistryResolveUnknownEvent(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.OutboxEventType("order_line.teleported"),
		AggregateType: enums.AggregateOrderLine,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"reason":"none"}`)),
	}

	_, err := reg.Resolve(event)
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestEventRegistryResolveAggregateMismatch(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventProductionTaskCreated,
		AggregateType: enums.AggregateOrderLine,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"taskId":"00000000-0000-0000-0000-000000000000"}`)),
	}

	_, err := reg.Resolve(event)
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestEventRegistryResolveMissingAggregateID(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventMaterialBelowMinimum,
		AggregateType: enums.AggregateMaterial,
		AggregateID:   uuid.Nil,
		Payload:       mustEnvelope(t, []byte(`{}`)),
	}

	_, err := reg.Resolve(event)
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestEventRegistryResolveNullPayload(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventOrderLineConfirmed,
		AggregateType: enums.AggregateOrderLine,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte("null")),
	}

	_, err := reg.Resolve(event)
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "o", ProductionTopic: "p"}); err == nil {
		t.Fatal("expected missing inventory topic to fail")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	cfg := config.PubSubConfig{
		OrdersTopic:     "orders-topic",
		ProductionTopic: "production-topic",
		InventoryTopic:  "inventory-topic",
	}
	reg, err := NewEventRegistry(cfg)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Actor:      &outbox.ActorRef{Subject: "planner@mill", Role: "planner"},
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
