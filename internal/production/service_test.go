package production

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/millflow-backend/internal/audit"
	"github.com/angelmondragon/millflow-backend/internal/authz"
	"github.com/angelmondragon/millflow-backend/internal/ledger"
	"github.com/angelmondragon/millflow-backend/pkg/db"
	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/millflow-backend/pkg/errors"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
	"github.com/angelmondragon/millflow-backend/pkg/outbox"
)

type transitionCounter map[string]int

func (c transitionCounter) IncTaskTransition(to string) { c[to]++ }

type productionFixture struct {
	conn      *gorm.DB
	svc       Service
	outbox    *outbox.Repository
	counter   transitionCounter
	base      *models.Material
	finished  *models.Material
	line      *models.OrderLine
	weaving   *models.ProductionTask
	coating   *models.ProductionTask
	operator  authz.Actor
	clockTime time.Time
}

func openProductionDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:production_" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

func newProductionFixture(t *testing.T, baseStock int64) *productionFixture {
	t.Helper()
	conn := openProductionDB(t)
	logg := logger.New(logger.Options{ServiceName: "production-test", Output: io.Discard})

	base := &models.Material{SKU: "GREIGE-1", Name: "Greige", Kind: enums.MaterialKindBase, StockQuantity: decimal.NewFromInt(baseStock)}
	require.NoError(t, conn.Create(base).Error)
	finished := &models.Material{SKU: "CANVAS-RED", Name: "Red canvas", Kind: enums.MaterialKindFinished, LinkedBaseMaterialID: &base.ID}
	require.NoError(t, conn.Create(finished).Error)

	order := &models.Order{OrderNumber: "SO-1", CustomerName: "Acme Awnings", CreatedBy: "planner@mill"}
	require.NoError(t, conn.Create(order).Error)
	line := &models.OrderLine{
		OrderID:           order.ID,
		FinishedGoodID:    finished.ID,
		QuantityOrdered:   decimal.NewFromInt(100),
		QuantityAllocated: decimal.NewFromInt(40),
		Status:            enums.OrderLineStatusConfirmed,
	}
	require.NoError(t, conn.Create(line).Error)

	now := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	weaving := models.ProductionTask{
		TaskNumber:       "WV-000001",
		OrderLineID:      line.ID,
		Type:             enums.ProductionTaskTypeWeaving,
		MaterialID:       base.ID,
		QuantityRequired: decimal.NewFromInt(10),
		Status:           enums.ProductionTaskStatusPending,
		Sequence:         1,
		TargetDate:       now.Add(7 * 24 * time.Hour),
		IdempotencyKey:   "key-1",
	}
	require.NoError(t, conn.Create(&weaving).Error)
	coating := models.ProductionTask{
		TaskNumber:       "CT-000001",
		OrderLineID:      line.ID,
		Type:             enums.ProductionTaskTypeCoating,
		MaterialID:       finished.ID,
		QuantityRequired: decimal.NewFromInt(60),
		Status:           enums.ProductionTaskStatusWaitingMaterials,
		Sequence:         2,
		LinkedTaskID:     &weaving.ID,
		TargetDate:       now.Add(14 * 24 * time.Hour),
		IdempotencyKey:   "key-1",
	}
	require.NoError(t, conn.Create(&coating).Error)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	outboxRepo := outbox.NewRepository(conn)
	counter := transitionCounter{}
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(conn),
		Lines:   NewLineStore(conn),
		Ledger:  ledgerSvc,
		Tx:      db.NewFromConn(conn),
		Outbox:  outbox.NewService(outboxRepo, logg),
		Audit:   audit.NewRecorder(conn, logg),
		Metrics: counter,
		Logger:  logg,
		Clock:   func() time.Time { return now },
	})
	require.NoError(t, err)

	return &productionFixture{
		conn:      conn,
		svc:       svc,
		outbox:    outboxRepo,
		counter:   counter,
		base:      base,
		finished:  finished,
		line:      line,
		weaving:   &weaving,
		coating:   &coating,
		operator:  authz.Actor{Subject: "weaver@mill", Role: "operator"},
		clockTime: now,
	}
}

func (f *productionFixture) reloadLine(t *testing.T) models.OrderLine {
	t.Helper()
	var line models.OrderLine
	require.NoError(t, f.conn.First(&line, "id = ?", f.line.ID).Error)
	return line
}

func (f *productionFixture) reloadMaterial(t *testing.T, id uuid.UUID) models.Material {
	t.Helper()
	var material models.Material
	require.NoError(t, f.conn.First(&material, "id = ?", id).Error)
	return material
}

func TestProductionLifecycleReleasesCoatingAndClosesLine(t *testing.T) {
	f := newProductionFixture(t, 50)
	ctx := context.Background()

	started, err := f.svc.Start(ctx, TaskInput{TaskID: f.weaving.ID, Actor: f.operator})
	require.NoError(t, err)
	assert.Equal(t, enums.ProductionTaskStatusInProgress, started.Status)
	require.NotNil(t, started.StartedAt)
	assert.Equal(t, enums.OrderLineStatusInProduction, f.reloadLine(t).Status)

	_, err = f.svc.ReportOutput(ctx, OutputInput{TaskID: f.weaving.ID, Quantity: decimal.NewFromInt(10), Actor: f.operator})
	require.NoError(t, err)

	completed, err := f.svc.Complete(ctx, TaskInput{TaskID: f.weaving.ID, Actor: f.operator})
	require.NoError(t, err)
	assert.Equal(t, enums.ProductionTaskStatusCompleted, completed.Status)
	assert.True(t, completed.QuantityProduced.Equal(decimal.NewFromInt(10)))
	assert.True(t, f.reloadMaterial(t, f.base.ID).StockQuantity.Equal(decimal.NewFromInt(60)), "woven output lands on the base material")

	coating, err := f.svc.Get(ctx, f.coating.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ProductionTaskStatusPending, coating.Status)

	released, err := f.outbox.ListByAggregate(ctx, enums.AggregateProductionTask, f.coating.ID)
	require.NoError(t, err)
	types := make([]enums.OutboxEventType, 0, len(released))
	for _, row := range released {
		types = append(types, row.EventType)
	}
	assert.Contains(t, types, enums.EventProductionTaskReleased)
	assert.Contains(t, types, enums.EventProductionTaskStatus)
	assert.Equal(t, enums.OrderLineStatusInProduction, f.reloadLine(t).Status, "line stays in production while coating is open")

	_, err = f.svc.Start(ctx, TaskInput{TaskID: f.coating.ID, Actor: f.operator})
	require.NoError(t, err)
	done, err := f.svc.Complete(ctx, TaskInput{TaskID: f.coating.ID, Actor: f.operator})
	require.NoError(t, err)
	assert.True(t, done.QuantityProduced.Equal(decimal.NewFromInt(60)), "completing without output assumes the required quantity")
	assert.True(t, f.reloadMaterial(t, f.base.ID).StockQuantity.IsZero(), "coating consumes the linked base")

	assert.Equal(t, enums.OrderLineStatusProductionComplete, f.reloadLine(t).Status)
	lineEvents, err := f.outbox.ListByAggregate(ctx, enums.AggregateOrderLine, f.line.ID)
	require.NoError(t, err)
	assert.Len(t, lineEvents, 2)

	var movements []models.StockMovement
	require.NoError(t, f.conn.Where("material_id = ?", f.base.ID).Find(&movements).Error)
	movementTypes := make([]enums.StockMovementType, 0, len(movements))
	for _, movement := range movements {
		movementTypes = append(movementTypes, movement.MovementType)
	}
	assert.ElementsMatch(t, []enums.StockMovementType{
		enums.StockMovementProductionOutput,
		enums.StockMovementProductionConsumption,
	}, movementTypes)

	assert.Equal(t, 2, f.counter[enums.ProductionTaskStatusCompleted.String()])
	assert.Equal(t, 1, f.counter[enums.ProductionTaskStatusPending.String()])

	var audits int64
	require.NoError(t, f.conn.Model(&models.AuditEvent{}).Where("subject_id = ?", f.line.ID).Count(&audits).Error)
	assert.Equal(t, int64(2), audits)
}

func TestProductionIllegalTransitions(t *testing.T) {
	f := newProductionFixture(t, 50)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, TaskInput{TaskID: f.coating.ID, Actor: f.operator})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "waiting task cannot start: %v", err)

	_, err = f.svc.Complete(ctx, TaskInput{TaskID: f.weaving.ID, Actor: f.operator})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "pending task cannot complete: %v", err)

	_, err = f.svc.ReportOutput(ctx, OutputInput{TaskID: f.weaving.ID, Quantity: decimal.NewFromInt(1), Actor: f.operator})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "output requires in_progress: %v", err)

	_, err = f.svc.Hold(ctx, TaskInput{TaskID: f.weaving.ID, Actor: f.operator})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.Start(ctx, TaskInput{TaskID: uuid.New(), Actor: f.operator})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.ReportOutput(ctx, OutputInput{TaskID: f.weaving.ID, Quantity: decimal.Zero})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	assert.Equal(t, enums.OrderLineStatusConfirmed, f.reloadLine(t).Status)
}

func TestProductionHoldAndResume(t *testing.T) {
	f := newProductionFixture(t, 50)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, TaskInput{TaskID: f.weaving.ID, Actor: f.operator})
	require.NoError(t, err)
	held, err := f.svc.Hold(ctx, TaskInput{TaskID: f.weaving.ID, Actor: f.operator, Reason: "loom maintenance"})
	require.NoError(t, err)
	assert.Equal(t, enums.ProductionTaskStatusOnHold, held.Status)

	_, err = f.svc.ReportOutput(ctx, OutputInput{TaskID: f.weaving.ID, Quantity: decimal.NewFromInt(2), Actor: f.operator})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	resumed, err := f.svc.Resume(ctx, TaskInput{TaskID: f.weaving.ID, Actor: f.operator})
	require.NoError(t, err)
	assert.Equal(t, enums.ProductionTaskStatusInProgress, resumed.Status)
	assert.Equal(t, *held.StartedAt, *resumed.StartedAt, "resume keeps the original start time")

	var reasons []models.AuditEvent
	require.NoError(t, f.conn.Where("subject_id = ? AND reason IS NOT NULL", f.weaving.ID).Find(&reasons).Error)
	require.Len(t, reasons, 1)
	assert.Equal(t, "loom maintenance", *reasons[0].Reason)
}

func TestCoatingCompletionRollsBackWhenBaseIsShort(t *testing.T) {
	f := newProductionFixture(t, 50)
	ctx := context.Background()

	require.NoError(t, f.conn.Model(&models.ProductionTask{}).Where("id = ?", f.coating.ID).
		Update("status", enums.ProductionTaskStatusInProgress).Error)
	require.NoError(t, f.conn.Model(&models.Material{}).Where("id = ?", f.base.ID).
		Update("stock_quantity", decimal.NewFromInt(5)).Error)

	_, err := f.svc.Complete(ctx, TaskInput{TaskID: f.coating.ID, Actor: f.operator})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
	assert.True(t, pkgerrors.IsRetryable(err))

	coating, err := f.svc.Get(ctx, f.coating.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ProductionTaskStatusInProgress, coating.Status)
	assert.Nil(t, coating.CompletedAt)
	assert.True(t, f.reloadMaterial(t, f.base.ID).StockQuantity.Equal(decimal.NewFromInt(5)))
}

func TestWeavingOnFinishedGoodLeavesStockAlone(t *testing.T) {
	f := newProductionFixture(t, 50)
	ctx := context.Background()

	require.NoError(t, f.conn.Model(&models.ProductionTask{}).Where("id = ?", f.weaving.ID).
		Update("material_id", f.finished.ID).Error)

	_, err := f.svc.Start(ctx, TaskInput{TaskID: f.weaving.ID, Actor: f.operator})
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, TaskInput{TaskID: f.weaving.ID, Actor: f.operator})
	require.NoError(t, err)

	assert.True(t, f.reloadMaterial(t, f.finished.ID).StockQuantity.IsZero())
	assert.True(t, f.reloadMaterial(t, f.base.ID).StockQuantity.Equal(decimal.NewFromInt(50)))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatal("expected missing repository to fail")
	}
}
