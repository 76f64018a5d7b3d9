package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
)

var errNoTx = errors.New("outbox writes need the business transaction")

// DomainEvent is what services hand to Emit. AggregateType may be left empty;
// it then comes from the event type.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e *DomainEvent) normalize() error {
	if !e.EventType.IsValid() {
		return fmt.Errorf("unknown outbox event type %q", e.EventType)
	}
	want := e.EventType.Aggregate()
	switch e.AggregateType {
	case "":
		e.AggregateType = want
	case want:
	default:
		return fmt.Errorf("%s events belong to %s, not %s", e.EventType, want, e.AggregateType)
	}
	if e.AggregateID == uuid.Nil {
		return fmt.Errorf("%s event has no aggregate id", e.EventType)
	}
	if e.Version <= 0 {
		e.Version = 1
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	e.OccurredAt = e.OccurredAt.UTC()
	return nil
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit queues event on tx so it commits or rolls back with the business write.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errNoTx
	}
	if err := event.normalize(); err != nil {
		return err
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event.EventType, err)
	}
	envelope := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", event.EventType, err)
	}
	if err := s.repo.Insert(tx, models.OutboxEvent{
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       json.RawMessage(body),
		CreatedAt:     event.OccurredAt,
	}); err != nil {
		return err
	}

	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

// EmitOncePerDay queues event unless one of the same type was already queued
// for the aggregate on the UTC day of now. It reports whether it queued.
func (s *Service) EmitOncePerDay(ctx context.Context, tx *gorm.DB, event DomainEvent, now time.Time) (bool, error) {
	if tx == nil {
		return false, errNoTx
	}
	if err := event.normalize(); err != nil {
		return false, err
	}
	exists, err := s.repo.ExistsSinceTx(tx, event.EventType, event.AggregateType, event.AggregateID, startOfDay(now))
	if err != nil || exists {
		return false, err
	}
	if err := s.Emit(ctx, tx, event); err != nil {
		return false, err
	}
	return true, nil
}

func startOfDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
