package production

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/millflow-backend/internal/audit"
	"github.com/angelmondragon/millflow-backend/internal/authz"
	"github.com/angelmondragon/millflow-backend/internal/ledger"
	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/millflow-backend/pkg/errors"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
	"github.com/angelmondragon/millflow-backend/pkg/outbox"
	"github.com/angelmondragon/millflow-backend/pkg/outbox/payloads"
)

const referenceTypeTask = "production_task"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditAppender interface {
	Append(ctx context.Context, tx *gorm.DB, entry audit.Entry) bool
}

type transitionMetrics interface {
	IncTaskTransition(to string)
}

// Service executes production tasks once an order line has been confirmed.
type Service interface {
	Get(ctx context.Context, taskID uuid.UUID) (*models.ProductionTask, error)
	ListByOrderLine(ctx context.Context, orderLineID uuid.UUID) ([]models.ProductionTask, error)
	Start(ctx context.Context, input TaskInput) (*models.ProductionTask, error)
	Hold(ctx context.Context, input TaskInput) (*models.ProductionTask, error)
	Resume(ctx context.Context, input TaskInput) (*models.ProductionTask, error)
	ReportOutput(ctx context.Context, input OutputInput) (*models.ProductionTask, error)
	Complete(ctx context.Context, input TaskInput) (*models.ProductionTask, error)
}

// TaskInput identifies the task and the operator acting on it.
type TaskInput struct {
	TaskID uuid.UUID
	Actor  authz.Actor
	Reason string
}

// OutputInput reports produced quantity against an in-progress task.
type OutputInput struct {
	TaskID   uuid.UUID
	Quantity decimal.Decimal
	Actor    authz.Actor
}

type ServiceParams struct {
	Repo    Repository
	Lines   LineStore
	Ledger  ledger.Service
	Tx      txRunner
	Outbox  outboxEmitter
	Audit   auditAppender
	Metrics transitionMetrics
	Logger  *logger.Logger
	Clock   func() time.Time
}

type service struct {
	repo    Repository
	lines   LineStore
	ledger  ledger.Service
	tx      txRunner
	outbox  outboxEmitter
	audit   auditAppender
	metrics transitionMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("production repository required")
	}
	if params.Lines == nil {
		return nil, fmt.Errorf("order line store required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit recorder required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:    params.Repo,
		lines:   params.Lines,
		ledger:  params.Ledger,
		tx:      params.Tx,
		outbox:  params.Outbox,
		audit:   params.Audit,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     func() time.Time { return clock().UTC() },
	}, nil
}

func (s *service) Get(ctx context.Context, taskID uuid.UUID) (*models.ProductionTask, error) {
	if taskID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "task id required")
	}
	task, err := s.repo.FindByID(ctx, taskID)
	if err != nil {
		return nil, readError(err, "production task")
	}
	return task, nil
}

func (s *service) ListByOrderLine(ctx context.Context, orderLineID uuid.UUID) ([]models.ProductionTask, error) {
	if orderLineID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order line id required")
	}
	tasks, err := s.repo.ListByOrderLine(ctx, orderLineID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list production tasks")
	}
	return tasks, nil
}

// Start moves a pending task into production. The first start on a confirmed
// line advances the line to in_production.
func (s *service) Start(ctx context.Context, input TaskInput) (*models.ProductionTask, error) {
	return s.transition(ctx, input, enums.ProductionTaskStatusPending, enums.ProductionTaskStatusInProgress, func(ctx context.Context, tx *gorm.DB, task *models.ProductionTask, now time.Time) error {
		if task.StartedAt == nil {
			task.StartedAt = &now
		}
		return s.advanceLine(ctx, tx, task.OrderLineID, enums.OrderLineStatusConfirmed, enums.OrderLineStatusInProduction, input.Actor, now)
	})
}

func (s *service) Hold(ctx context.Context, input TaskInput) (*models.ProductionTask, error) {
	return s.transition(ctx, input, enums.ProductionTaskStatusInProgress, enums.ProductionTaskStatusOnHold, nil)
}

func (s *service) Resume(ctx context.Context, input TaskInput) (*models.ProductionTask, error) {
	return s.transition(ctx, input, enums.ProductionTaskStatusOnHold, enums.ProductionTaskStatusInProgress, nil)
}

// ReportOutput accumulates produced quantity on an in-progress task.
func (s *service) ReportOutput(ctx context.Context, input OutputInput) (*models.ProductionTask, error) {
	if input.TaskID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "task id required")
	}
	if !input.Quantity.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	ctx = s.logg.WithTaskID(ctx, input.TaskID.String())

	var result *models.ProductionTask
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		task, err := repo.FindByIDForUpdate(ctx, input.TaskID)
		if err != nil {
			return readError(err, "production task")
		}
		if task.Status != enums.ProductionTaskStatusInProgress {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "output can only be reported while in_progress, task is %s", task.Status)
		}
		task.QuantityProduced = task.QuantityProduced.Add(input.Quantity)
		if err := repo.Update(ctx, task); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update production task")
		}
		s.audit.Append(ctx, tx, audit.Entry{
			SubjectID:   task.ID,
			ActionType:  enums.AuditProductionOutput,
			Description: fmt.Sprintf("%s reported %s produced (total %s of %s)", task.TaskNumber, input.Quantity, task.QuantityProduced, task.QuantityRequired),
			Actor:       input.Actor.String(),
			OccurredAt:  s.now(),
		})
		result = task
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(ctx, "production output reported")
	return result, nil
}

// Complete finishes an in-progress task, settles its stock effect, releases
// dependents and closes the line once every task is done.
func (s *service) Complete(ctx context.Context, input TaskInput) (*models.ProductionTask, error) {
	return s.transition(ctx, input, enums.ProductionTaskStatusInProgress, enums.ProductionTaskStatusCompleted, func(ctx context.Context, tx *gorm.DB, task *models.ProductionTask, now time.Time) error {
		if task.QuantityProduced.IsZero() {
			task.QuantityProduced = task.QuantityRequired
		}
		task.CompletedAt = &now

		if err := s.settleStock(ctx, tx, task, input.Actor); err != nil {
			return err
		}
		if task.Type == enums.ProductionTaskTypeWeaving {
			if err := s.releaseDependents(ctx, tx, task, input.Actor, now); err != nil {
				return err
			}
		}
		return nil
	})
}

type transitionHook func(ctx context.Context, tx *gorm.DB, task *models.ProductionTask, now time.Time) error

func (s *service) transition(ctx context.Context, input TaskInput, from, to enums.ProductionTaskStatus, hook transitionHook) (*models.ProductionTask, error) {
	if input.TaskID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "task id required")
	}
	ctx = s.logg.WithTaskID(ctx, input.TaskID.String())

	var result *models.ProductionTask
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		task, err := repo.FindByIDForUpdate(ctx, input.TaskID)
		if err != nil {
			return readError(err, "production task")
		}
		previous := task.Status
		if previous != from || !previous.CanTransitionTo(to) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move task from %s to %s", previous, to)
		}

		now := s.now()
		task.Status = to
		if hook != nil {
			if err := hook(ctx, tx, task, now); err != nil {
				return err
			}
		}
		if err := repo.Update(ctx, task); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update production task")
		}
		if err := s.emitStatusChanged(ctx, tx, task, previous, input.Actor, now); err != nil {
			return err
		}
		s.audit.Append(ctx, tx, audit.Entry{
			SubjectID:   task.ID,
			ActionType:  enums.AuditProductionTaskUpdated,
			Description: fmt.Sprintf("%s moved from %s to %s", task.TaskNumber, previous, to),
			Actor:       input.Actor.String(),
			Reason:      input.Reason,
			OccurredAt:  now,
		})

		if to == enums.ProductionTaskStatusCompleted {
			if err := s.closeLineIfDone(ctx, tx, task.OrderLineID, input.Actor, now); err != nil {
				return err
			}
		}
		result = task
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncTaskTransition(to.String())
	}
	s.logg.Info(s.logg.WithField(ctx, "status", to), "production task transitioned")
	return result, nil
}

// settleStock applies the ledger effect of a completed task. Woven output
// lands on the base material; coating consumes the finished good's base.
func (s *service) settleStock(ctx context.Context, tx *gorm.DB, task *models.ProductionTask, actor authz.Actor) error {
	if !task.QuantityProduced.IsPositive() {
		return nil
	}
	stock := s.ledger.WithTx(tx)
	material, err := stock.Get(ctx, task.MaterialID)
	if err != nil {
		return err
	}

	switch task.Type {
	case enums.ProductionTaskTypeWeaving:
		if material.Kind != enums.MaterialKindBase {
			return nil
		}
		_, err = stock.Increment(ctx, material.ID, task.QuantityProduced, ledger.Reference{
			Movement: enums.StockMovementProductionOutput,
			Type:     referenceTypeTask,
			ID:       task.ID,
			Actor:    actor.String(),
		})
		return err
	case enums.ProductionTaskTypeCoating:
		if material.LinkedBaseMaterialID == nil {
			return nil
		}
		_, err = stock.Decrement(ctx, *material.LinkedBaseMaterialID, task.QuantityProduced, ledger.Reference{
			Movement: enums.StockMovementProductionConsumption,
			Type:     referenceTypeTask,
			ID:       task.ID,
			Actor:    actor.String(),
		})
		if errors.Is(err, ledger.ErrInsufficientStock) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "base material stock too low to complete coating")
		}
		return err
	default:
		return nil
	}
}

func (s *service) releaseDependents(ctx context.Context, tx *gorm.DB, task *models.ProductionTask, actor authz.Actor, now time.Time) error {
	repo := s.repo.WithTx(tx)
	waiting, err := repo.ListWaitingOn(ctx, task.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dependent tasks")
	}
	for i := range waiting {
		dependent := &waiting[i]
		dependent.Status = enums.ProductionTaskStatusPending
		if err := repo.Update(ctx, dependent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "release dependent task")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProductionTaskReleased,
			AggregateType: enums.AggregateProductionTask,
			AggregateID:   dependent.ID,
			Actor:         actor.Ref(),
			OccurredAt:    now,
			Data: payloads.ProductionTaskReleasedEvent{
				TaskID:         dependent.ID,
				TaskNumber:     dependent.TaskNumber,
				OrderLineID:    dependent.OrderLineID,
				ReleasedByTask: task.ID,
				ReleasedAt:     now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "emit task released event")
		}
		if err := s.emitStatusChanged(ctx, tx, dependent, enums.ProductionTaskStatusWaitingMaterials, actor, now); err != nil {
			return err
		}
		s.audit.Append(ctx, tx, audit.Entry{
			SubjectID:   dependent.ID,
			ActionType:  enums.AuditProductionTaskUpdated,
			Description: fmt.Sprintf("%s released by completion of %s", dependent.TaskNumber, task.TaskNumber),
			Actor:       actor.String(),
			OccurredAt:  now,
		})
		if s.metrics != nil {
			s.metrics.IncTaskTransition(enums.ProductionTaskStatusPending.String())
		}
	}
	return nil
}

func (s *service) closeLineIfDone(ctx context.Context, tx *gorm.DB, lineID uuid.UUID, actor authz.Actor, now time.Time) error {
	tasks, err := s.repo.WithTx(tx).ListByOrderLine(ctx, lineID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list line tasks")
	}
	for _, task := range tasks {
		if task.Status != enums.ProductionTaskStatusCompleted {
			return nil
		}
	}
	return s.advanceLine(ctx, tx, lineID, enums.OrderLineStatusInProduction, enums.OrderLineStatusProductionComplete, actor, now)
}

// advanceLine moves the line from -> to and is a no-op when the line is in
// any other state.
func (s *service) advanceLine(ctx context.Context, tx *gorm.DB, lineID uuid.UUID, from, to enums.OrderLineStatus, actor authz.Actor, now time.Time) error {
	lines := s.lines.WithTx(tx)
	line, err := lines.FindForUpdate(ctx, lineID)
	if err != nil {
		return readError(err, "order line")
	}
	if line.Status != from || !from.CanTransitionTo(to) {
		return nil
	}
	if err := lines.UpdateStatus(ctx, line.ID, to); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "update order line status")
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderLineStatusChanged,
		AggregateType: enums.AggregateOrderLine,
		AggregateID:   line.ID,
		Actor:         actor.Ref(),
		OccurredAt:    now,
		Data: payloads.OrderLineStatusChangedEvent{
			OrderLineID: line.ID,
			OrderID:     line.OrderID,
			From:        from.String(),
			To:          to.String(),
			ChangedBy:   actor.String(),
			ChangedAt:   now,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "emit order line status event")
	}
	s.audit.Append(ctx, tx, audit.Entry{
		SubjectID:   line.ID,
		ActionType:  enums.AuditOrderStatusChanged,
		Description: fmt.Sprintf("order line moved from %s to %s", from, to),
		Actor:       actor.String(),
		OccurredAt:  now,
	})
	s.logg.Info(s.logg.WithOrderLineID(ctx, line.ID.String()), "order line advanced by production")
	return nil
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, task *models.ProductionTask, from enums.ProductionTaskStatus, actor authz.Actor, now time.Time) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventProductionTaskStatus,
		AggregateType: enums.AggregateProductionTask,
		AggregateID:   task.ID,
		Actor:         actor.Ref(),
		OccurredAt:    now,
		Data: payloads.ProductionTaskStatusChangedEvent{
			TaskID:           task.ID,
			TaskNumber:       task.TaskNumber,
			OrderLineID:      task.OrderLineID,
			Type:             task.Type.String(),
			From:             from.String(),
			To:               task.Status.String(),
			QuantityProduced: task.QuantityProduced,
			ChangedBy:        actor.String(),
			ChangedAt:        now,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "emit task status event")
	}
	return nil
}

func readError(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+what)
}
