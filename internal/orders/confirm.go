package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/millflow-backend/internal/allocation"
	"github.com/angelmondragon/millflow-backend/internal/audit"
	"github.com/angelmondragon/millflow-backend/internal/authz"
	"github.com/angelmondragon/millflow-backend/internal/ledger"
	"github.com/angelmondragon/millflow-backend/internal/production"
	"github.com/angelmondragon/millflow-backend/pkg/db"
	dbtypes "github.com/angelmondragon/millflow-backend/pkg/db/types"
	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/millflow-backend/pkg/errors"
	"github.com/angelmondragon/millflow-backend/pkg/idempotency"
	"github.com/angelmondragon/millflow-backend/pkg/metrics"
	"github.com/angelmondragon/millflow-backend/pkg/outbox"
	"github.com/angelmondragon/millflow-backend/pkg/outbox/payloads"
)

// Confirm plans an order line against current stock and commits the ledger
// decrement, the production tasks and the line update as one unit.
func (s *service) Confirm(ctx context.Context, input ConfirmInput) (*ConfirmationResult, error) {
	started := time.Now()
	ctx = s.logg.WithOrderLineID(ctx, input.OrderLineID.String())
	ctx = s.logg.WithActor(ctx, input.Actor.String())

	result, err := s.confirm(ctx, input)

	outcome := confirmationOutcome(result, err)
	if s.metrics != nil {
		s.metrics.ObserveConfirmation(outcome, time.Since(started))
	}
	if err != nil {
		if outcome == metrics.OutcomeFailed {
			s.logg.Error(ctx, "order line confirmation failed", err)
		} else {
			s.logg.Warn(s.logg.WithField(ctx, "reason", err.Error()), "order line confirmation rejected")
		}
		return nil, err
	}

	if !result.Replayed && s.metrics != nil {
		s.metrics.AddAllocated(result.Plan.StockAllocated.InexactFloat64())
		for _, task := range result.Tasks {
			s.metrics.AddTaskCreated(task.Type.String())
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"replayed":            result.Replayed,
		"stock_allocated":     result.Plan.StockAllocated.String(),
		"production_required": result.Plan.ProductionRequired.String(),
		"task_count":          len(result.Tasks),
	}), "order line confirmed")
	return result, nil
}

func (s *service) confirm(ctx context.Context, input ConfirmInput) (*ConfirmationResult, error) {
	if err := s.validateInput(ctx, input); err != nil {
		return nil, err
	}
	actor := input.Actor
	if actor.String() == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if err := s.policy.Authorize(ctx, actor, input.AuthorizationCode); err != nil {
		return nil, err
	}

	if s.guard != nil {
		claim, err := s.guard.Claim(ctx, confirmGuardScope, input.OrderLineID)
		switch {
		case errors.Is(err, idempotency.ErrClaimHeld):
			return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "confirmation already in progress for this order line")
		case err != nil:
			// The row lock still serializes confirmations when Redis is unavailable.
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "confirmation guard unavailable")
		default:
			defer func() {
				if err := s.guard.Release(context.WithoutCancel(ctx), claim); err != nil {
					s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "confirmation guard release failed")
				}
			}()
		}
	}

	var result *ConfirmationResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.confirmInTx(ctx, tx, input, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) confirmInTx(ctx context.Context, tx *gorm.DB, input ConfirmInput, actor authz.Actor) (*ConfirmationResult, error) {
	repo := s.repo.WithTx(tx)
	tasksRepo := s.tasks.WithTx(tx)
	stock := s.ledger.WithTx(tx)

	line, err := repo.FindLineForUpdate(ctx, input.OrderLineID)
	if err != nil {
		return nil, readError(err, "order line")
	}

	if isReplay(line) {
		tasks, err := tasksRepo.FindByIDs(ctx, line.TaskIDs)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load confirmed tasks")
		}
		return &ConfirmationResult{
			Line:     line,
			Plan:     planFromRecord(line, tasks),
			Tasks:    tasks,
			Replayed: true,
		}, nil
	}
	if line.Status != enums.OrderLineStatusPending {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "order line in status %s cannot be confirmed", line.Status)
	}

	now := s.now()
	if err := validateLine(line, now); err != nil {
		return nil, err
	}

	finished, base, err := s.loadMaterials(ctx, stock, line.FinishedGoodID, true)
	if err != nil {
		return nil, err
	}
	plan, err := allocation.Compute(line.QuantityOrdered, finished.StockQuantity, baseStock(base))
	if err != nil {
		return nil, err
	}
	s.flagAnomalies(ctx, tx, line, plan, actor, now)

	epoch := line.ConfirmationEpoch + 1
	key := ConfirmationKey(line.ID, epoch)
	tasks := s.builder.Build(plan, production.BuildInput{
		OrderLineID:    line.ID,
		FinishedGoodID: finished.ID,
		BaseMaterialID: finished.LinkedBaseMaterialID,
		Now:            now,
	})

	if plan.StockAllocated.IsPositive() {
		_, err := stock.Decrement(ctx, finished.ID, plan.StockAllocated, ledger.Reference{
			Movement: enums.StockMovementAllocation,
			Type:     referenceTypeOrderLine,
			ID:       line.ID,
			Actor:    actor.String(),
		})
		if errors.Is(err, ledger.ErrInsufficientStock) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "finished good stock changed during confirmation")
		}
		if err != nil {
			return nil, err
		}
	}

	taskIDs := make(dbtypes.UUIDArray, 0, len(tasks))
	for i := range tasks {
		number, err := tasksRepo.NextTaskNumber(ctx, tasks[i].Type)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "assign task number")
		}
		tasks[i].TaskNumber = number
		tasks[i].IdempotencyKey = key
		taskIDs = append(taskIDs, tasks[i].ID)
	}
	if err := tasksRepo.CreateTasks(ctx, tasks); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "production tasks already exist for this confirmation")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "create production tasks")
	}

	confirmedBy := actor.String()
	if err := repo.UpdateLine(ctx, line.ID, map[string]any{
		"quantity_allocated": plan.StockAllocated,
		"status":             enums.OrderLineStatusConfirmed,
		"confirmed_at":       now,
		"confirmed_by":       confirmedBy,
		"confirmation_epoch": epoch,
		"confirmation_key":   key,
		"task_ids":           taskIDs,
		"base_available":     baseSnapshot(plan),
		"base_shortage":      plan.BaseShortage,
	}); err != nil {
		return nil, writeError(err, "confirm order line")
	}
	line.QuantityAllocated = plan.StockAllocated
	line.Status = enums.OrderLineStatusConfirmed
	line.ConfirmedAt = &now
	line.ConfirmedBy = &confirmedBy
	line.ConfirmationEpoch = epoch
	line.ConfirmationKey = &key
	line.TaskIDs = taskIDs
	line.BaseAvailable = baseSnapshot(plan)
	line.BaseShortage = plan.BaseShortage

	if err := s.emitConfirmed(ctx, tx, line, plan, tasks, actor, now); err != nil {
		return nil, err
	}
	s.recordConfirmed(ctx, tx, line, plan, tasks, actor, now)

	return &ConfirmationResult{Line: line, Plan: plan, Tasks: tasks}, nil
}

func (s *service) emitConfirmed(ctx context.Context, tx *gorm.DB, line *models.OrderLine, plan allocation.Plan, tasks []models.ProductionTask, actor authz.Actor, now time.Time) error {
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderLineConfirmed,
		AggregateType: enums.AggregateOrderLine,
		AggregateID:   line.ID,
		Actor:         actor.Ref(),
		OccurredAt:    now,
		Data: payloads.OrderLineConfirmedEvent{
			OrderLineID:        line.ID,
			OrderID:            line.OrderID,
			FinishedGoodID:     line.FinishedGoodID,
			Color:              line.Color,
			QuantityOrdered:    line.QuantityOrdered,
			StockAllocated:     plan.StockAllocated,
			ProductionRequired: plan.ProductionRequired,
			NeedsWeaving:       plan.NeedsWeaving,
			NeedsCoating:       plan.NeedsCoating,
			TaskIDs:            line.TaskIDs,
			DueDate:            line.DueDate,
			ConfirmedBy:        actor.String(),
			ConfirmedAt:        now,
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "emit confirmation event")
	}

	for _, task := range tasks {
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProductionTaskCreated,
			AggregateType: enums.AggregateProductionTask,
			AggregateID:   task.ID,
			Actor:         actor.Ref(),
			OccurredAt:    now,
			Data: payloads.ProductionTaskCreatedEvent{
				TaskID:           task.ID,
				TaskNumber:       task.TaskNumber,
				OrderLineID:      task.OrderLineID,
				Type:             task.Type.String(),
				MaterialID:       task.MaterialID,
				QuantityRequired: task.QuantityRequired,
				Status:           task.Status.String(),
				Sequence:         task.Sequence,
				LinkedTaskID:     task.LinkedTaskID,
				TargetDate:       task.TargetDate,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "emit task created event")
		}
	}
	return nil
}

func (s *service) recordConfirmed(ctx context.Context, tx *gorm.DB, line *models.OrderLine, plan allocation.Plan, tasks []models.ProductionTask, actor authz.Actor, now time.Time) {
	s.audit.Append(ctx, tx, audit.Entry{
		SubjectID:   line.ID,
		ActionType:  enums.AuditOrderConfirmed,
		Description: fmt.Sprintf("order line confirmed: %s ordered, %s from stock, %s to produce", plan.QuantityOrdered, plan.StockAllocated, plan.ProductionRequired),
		Actor:       actor.String(),
		OccurredAt:  now,
	})
	if plan.StockAllocated.IsPositive() {
		s.audit.Append(ctx, tx, audit.Entry{
			SubjectID:   line.ID,
			ActionType:  enums.AuditStockAllocated,
			Description: fmt.Sprintf("%s allocated from finished good stock", plan.StockAllocated),
			Actor:       actor.String(),
			OccurredAt:  now,
		})
	}
	for _, task := range tasks {
		s.audit.Append(ctx, tx, audit.Entry{
			SubjectID:   task.ID,
			ActionType:  enums.AuditProductionTaskCreated,
			Description: fmt.Sprintf("%s %s task created for %s (%s)", task.TaskNumber, task.Type, task.QuantityRequired, task.Status),
			Actor:       actor.String(),
			OccurredAt:  now,
		})
	}
}

func (s *service) flagAnomalies(ctx context.Context, tx *gorm.DB, line *models.OrderLine, plan allocation.Plan, actor authz.Actor, now time.Time) {
	for _, anomaly := range plan.Anomalies {
		s.logg.Warn(s.logg.WithField(ctx, "anomaly", string(anomaly)), "stock anomaly clamped during planning")
		s.audit.Append(ctx, tx, audit.Entry{
			SubjectID:   line.ID,
			ActionType:  enums.AuditDataQuality,
			Description: fmt.Sprintf("planning input corrected: %s", anomaly),
			Actor:       actor.String(),
			OccurredAt:  now,
		})
	}
}

// isReplay reports whether the line already carries the key of its current
// confirmation epoch.
func isReplay(line *models.OrderLine) bool {
	if line.ConfirmationKey == nil || line.ConfirmationEpoch == 0 {
		return false
	}
	switch line.Status {
	case enums.OrderLineStatusPending, enums.OrderLineStatusCancelled:
		return false
	}
	return *line.ConfirmationKey == ConfirmationKey(line.ID, line.ConfirmationEpoch)
}

// planFromRecord rebuilds the plan a stored confirmation committed from the
// line's allocation and base snapshot. Anomalies are not stored.
func planFromRecord(line *models.OrderLine, tasks []models.ProductionTask) allocation.Plan {
	plan := allocation.Plan{
		QuantityOrdered:    line.QuantityOrdered,
		StockAllocated:     line.QuantityAllocated,
		ProductionRequired: line.QuantityOrdered.Sub(line.QuantityAllocated),
		HasBaseMaterial:    line.BaseAvailable.Valid,
		BaseAvailable:      decimal.Zero,
		BaseShortage:       line.BaseShortage,
	}
	if line.BaseAvailable.Valid {
		plan.BaseAvailable = line.BaseAvailable.Decimal
	}
	for _, task := range tasks {
		switch task.Type {
		case enums.ProductionTaskTypeWeaving:
			plan.NeedsWeaving = true
			if plan.BaseShortage.IsZero() {
				// Lines confirmed before the snapshot columns existed.
				plan.BaseShortage = task.QuantityRequired
			}
		case enums.ProductionTaskTypeCoating:
			plan.NeedsCoating = true
		}
	}
	return plan
}

func baseSnapshot(plan allocation.Plan) decimal.NullDecimal {
	if !plan.HasBaseMaterial {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(plan.BaseAvailable)
}

func validateLine(line *models.OrderLine, now time.Time) error {
	if !line.QuantityOrdered.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "order line quantity must be positive")
	}
	if line.DueDate == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order line due date required")
	}
	if dateOnly(line.DueDate.UTC()).Before(dateOnly(now)) {
		return pkgerrors.New(pkgerrors.CodeValidation, "order line due date is in the past")
	}
	if line.FinishedGoodID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order line finished good required")
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func confirmationOutcome(result *ConfirmationResult, err error) string {
	if err == nil {
		if result != nil && result.Replayed {
			return metrics.OutcomeReplayed
		}
		return metrics.OutcomeConfirmed
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		return metrics.OutcomeFailed
	}
	switch typed.Code() {
	case pkgerrors.CodeValidation, pkgerrors.CodeUnauthorized, pkgerrors.CodeForbidden,
		pkgerrors.CodeNotFound, pkgerrors.CodeStateConflict:
		return metrics.OutcomeRejected
	case pkgerrors.CodeConflict, pkgerrors.CodeIdempotency:
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeFailed
	}
}
