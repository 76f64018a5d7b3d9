package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
)

func openOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:outbox_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}))
	return conn
}

func TestEmitWrapsPayloadInEnvelope(t *testing.T) {
	conn := openOutboxDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	lineID := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderLineConfirmed,
			AggregateType: enums.AggregateOrderLine,
			AggregateID:   lineID,
			Actor:         &ActorRef{Subject: "planner@mill", Role: "planner"},
			Data:          map[string]string{"orderLineId": lineID.String()},
		})
	})
	require.NoError(t, err)

	rows, err := repo.ListByAggregate(context.Background(), enums.AggregateOrderLine, lineID)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, "planner@mill", envelope.Actor.Subject)
	assert.JSONEq(t, `{"orderLineId":"`+lineID.String()+`"}`, string(envelope.Data))
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	conn := openOutboxDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	lineID := uuid.New()
	boom := errors.New("boom")

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderLineCancelled,
			AggregateType: enums.AggregateOrderLine,
			AggregateID:   lineID,
			Data:          map[string]string{},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := repo.ListByAggregate(context.Background(), enums.AggregateOrderLine, lineID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEmitRejectsUnknownEventAndMissingTx(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderLineConfirmed})
	require.Error(t, err)

	conn := openOutboxDB(t)
	err = svc.Emit(context.Background(), conn, DomainEvent{EventType: "bogus"})
	require.Error(t, err)
}

func TestEmitDerivesAggregateFromEventType(t *testing.T) {
	conn := openOutboxDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	taskID := uuid.New()

	require.NoError(t, svc.Emit(context.Background(), conn, DomainEvent{
		EventType:   enums.EventProductionTaskCreated,
		AggregateID: taskID,
		Data:        map[string]string{},
	}))
	rows, err := repo.ListByAggregate(context.Background(), enums.AggregateProductionTask, taskID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestEmitRejectsInconsistentEvents(t *testing.T) {
	conn := openOutboxDB(t)
	svc := NewService(NewRepository(conn), nil)

	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOrderLineConfirmed,
		AggregateType: enums.AggregateMaterial,
		AggregateID:   uuid.New(),
	})
	assert.ErrorContains(t, err, "belong to order_line")

	err = svc.Emit(context.Background(), conn, DomainEvent{EventType: enums.EventMaterialBelowMinimum})
	assert.ErrorContains(t, err, "no aggregate id")
}

func TestEmitOncePerDaySkipsDuplicates(t *testing.T) {
	conn := openOutboxDB(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	materialID := uuid.New()
	now := time.Now().UTC()
	event := DomainEvent{
		EventType:     enums.EventMaterialBelowMinimum,
		AggregateType: enums.AggregateMaterial,
		AggregateID:   materialID,
		Data:          map[string]string{"sku": "FG-1"},
	}

	var first, second bool
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		first, err = svc.EmitOncePerDay(context.Background(), tx, event, now)
		return err
	}))
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		second, err = svc.EmitOncePerDay(context.Background(), tx, event, now)
		return err
	}))

	assert.True(t, first)
	assert.False(t, second)
	rows, err := repo.ListByAggregate(context.Background(), enums.AggregateMaterial, materialID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := openOutboxDB(t)
	repo := NewRepository(conn)
	now := time.Now().UTC()

	due := models.OutboxEvent{EventType: enums.EventOrderLineConfirmed, AggregateType: enums.AggregateOrderLine, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	later := now.Add(time.Hour)
	deferred := models.OutboxEvent{EventType: enums.EventOrderLineConfirmed, AggregateType: enums.AggregateOrderLine, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`), NextAttemptAt: &later}
	require.NoError(t, conn.Create(&due).Error)
	require.NoError(t, conn.Create(&deferred).Error)

	var fetched []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		fetched, err = repo.FetchUnpublishedForPublish(tx, 10, now)
		return err
	}))
	require.Len(t, fetched, 1)
	assert.Equal(t, due.ID, fetched[0].ID)

	require.NoError(t, repo.MarkFailedTx(conn, due.ID, errors.New("broker down"), now.Add(-time.Second)))
	var failed models.OutboxEvent
	require.NoError(t, conn.First(&failed, "id = ?", due.ID).Error)
	assert.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "broker down", *failed.LastError)

	require.NoError(t, repo.MarkPublishedTx(conn, due.ID, now.Add(-48*time.Hour)))
	var published models.OutboxEvent
	require.NoError(t, conn.First(&published, "id = ?", due.ID).Error)
	require.NotNil(t, published.PublishedAt)
	assert.Equal(t, 2, published.AttemptCount)

	deleted, err := repo.DeletePublishedBefore(context.Background(), conn, now.Add(-24*time.Hour), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestDeletePublishedBeforeKeepsHighAttemptRows(t *testing.T) {
	conn := openOutboxDB(t)
	repo := NewRepository(conn)
	old := time.Now().UTC().Add(-72 * time.Hour)
	row := models.OutboxEvent{
		EventType:     enums.EventProductionTaskCreated,
		AggregateType: enums.AggregateProductionTask,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		PublishedAt:   &old,
		AttemptCount:  5,
	}
	require.NoError(t, conn.Create(&row).Error)

	deleted, err := repo.DeletePublishedBefore(context.Background(), conn, time.Now().UTC(), 3)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestDLQRepositoryTruncatesMessage(t *testing.T) {
	conn := openOutboxDB(t)
	repo := NewDLQRepository(conn)
	long := make([]byte, maxDLQErrorLen+50)
	for i := range long {
		long[i] = 'x'
	}
	msg := string(long)
	eventID := uuid.New()

	require.NoError(t, repo.InsertTx(conn, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventOrderLineConfirmed,
		AggregateType: enums.AggregateOrderLine,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &msg,
		AttemptCount:  10,
	}))

	stored, err := repo.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Len(t, *stored.ErrorMessage, maxDLQErrorLen)

	missing, err := repo.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
