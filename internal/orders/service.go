package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/millflow-backend/internal/allocation"
	"github.com/angelmondragon/millflow-backend/internal/audit"
	"github.com/angelmondragon/millflow-backend/internal/authz"
	"github.com/angelmondragon/millflow-backend/internal/ledger"
	"github.com/angelmondragon/millflow-backend/internal/production"
	"github.com/angelmondragon/millflow-backend/pkg/db"
	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/millflow-backend/pkg/errors"
	"github.com/angelmondragon/millflow-backend/pkg/idempotency"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
	"github.com/angelmondragon/millflow-backend/pkg/outbox"
	"github.com/angelmondragon/millflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/millflow-backend/pkg/pagination"
)

const (
	referenceTypeOrderLine = "order_line"
	confirmGuardScope      = "order-line-confirm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditAppender interface {
	Append(ctx context.Context, tx *gorm.DB, entry audit.Entry) bool
}

// confirmationGuard blocks concurrent duplicate confirmations of one line.
type confirmationGuard interface {
	Claim(ctx context.Context, scope string, id uuid.UUID) (*idempotency.Claim, error)
	Release(ctx context.Context, claim *idempotency.Claim) error
}

type confirmationMetrics interface {
	ObserveConfirmation(outcome string, duration time.Duration)
	AddTaskCreated(taskType string)
	AddAllocated(quantity float64)
}

// Service is the fulfillment orchestrator for orders and their lines.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, params pagination.Params) (*OrderList, error)
	GetLine(ctx context.Context, lineID uuid.UUID) (*models.OrderLine, error)
	ListTasks(ctx context.Context, lineID uuid.UUID) ([]models.ProductionTask, error)
	Confirm(ctx context.Context, input ConfirmInput) (*ConfirmationResult, error)
	Cancel(ctx context.Context, input CancelInput) (*models.OrderLine, error)
	Transition(ctx context.Context, input TransitionInput) (*models.OrderLine, error)
	Preview(ctx context.Context, input PreviewInput) (*PreviewResult, error)
}

type ServiceParams struct {
	Repo      Repository
	Tasks     production.Repository
	Builder   *production.Builder
	Ledger    ledger.Service
	Tx        txRunner
	Outbox    outboxEmitter
	Audit     auditAppender
	Policy    authz.ConfirmationPolicy
	Guard     confirmationGuard
	Metrics   confirmationMetrics
	Validator *validator.Validate
	Logger    *logger.Logger
	Clock     func() time.Time
}

type service struct {
	repo     Repository
	tasks    production.Repository
	builder  *production.Builder
	ledger   ledger.Service
	tx       txRunner
	outbox   outboxEmitter
	audit    auditAppender
	policy   authz.ConfirmationPolicy
	guard    confirmationGuard
	metrics  confirmationMetrics
	validate *validator.Validate
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the orchestrator. Guard and Metrics are optional.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tasks == nil {
		return nil, fmt.Errorf("production repository required")
	}
	if params.Builder == nil {
		return nil, fmt.Errorf("task builder required")
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
	if params.Policy == nil {
		return nil, fmt.Errorf("confirmation policy required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:     params.Repo,
		tasks:    params.Tasks,
		builder:  params.Builder,
		ledger:   params.Ledger,
		tx:       params.Tx,
		outbox:   params.Outbox,
		audit:    params.Audit,
		policy:   params.Policy,
		guard:    params.Guard,
		metrics:  params.Metrics,
		validate: validate,
		logg:     params.Logger,
		now:      func() time.Time { return clock().UTC() },
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := s.validateInput(ctx, input); err != nil {
		return nil, err
	}
	actor := input.Actor.String()
	if actor == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}

	now := s.now()
	order := &models.Order{
		ID:           uuid.New(),
		OrderNumber:  strings.TrimSpace(input.OrderNumber),
		CustomerName: strings.TrimSpace(input.CustomerName),
		Notes:        input.Notes,
		CreatedBy:    actor,
	}
	if order.OrderNumber == "" {
		order.OrderNumber = generateOrderNumber(order.ID, now)
	}

	for i, in := range input.Lines {
		if !in.Quantity.IsPositive() {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "line %d: quantity must be positive", i+1)
		}
		material, err := s.ledger.Get(ctx, in.FinishedGoodID)
		if err != nil {
			return nil, err
		}
		if material.Kind != enums.MaterialKindFinished {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "line %d: material %s is not a finished good", i+1, material.SKU)
		}
		var due *time.Time
		if in.DueDate != nil {
			d := in.DueDate.UTC()
			due = &d
		}
		order.Lines = append(order.Lines, models.OrderLine{
			ID:              uuid.New(),
			OrderID:         order.ID,
			FinishedGoodID:  in.FinishedGoodID,
			Color:           strings.TrimSpace(in.Color),
			QuantityOrdered: in.Quantity,
			DueDate:         due,
			Status:          enums.OrderLineStatusPending,
		})
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateOrder(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "order_number") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order number already exists")
			}
			return writeError(err, "create order")
		}
		s.audit.Append(ctx, tx, audit.Entry{
			SubjectID:   order.ID,
			ActionType:  enums.AuditOrderCreated,
			Description: fmt.Sprintf("order %s created for %s with %d line(s)", order.OrderNumber, order.CustomerName, len(order.Lines)),
			Actor:       actor,
			OccurredAt:  now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "order_id", order.ID.String()), "order created")
	return order, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, readError(err, "order")
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, params pagination.Params) (*OrderList, error) {
	list, err := s.repo.ListOrders(ctx, params)
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return list, nil
}

func (s *service) GetLine(ctx context.Context, lineID uuid.UUID) (*models.OrderLine, error) {
	if lineID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order line id required")
	}
	line, err := s.repo.FindLine(ctx, lineID)
	if err != nil {
		return nil, readError(err, "order line")
	}
	return line, nil
}

func (s *service) ListTasks(ctx context.Context, lineID uuid.UUID) ([]models.ProductionTask, error) {
	if _, err := s.GetLine(ctx, lineID); err != nil {
		return nil, err
	}
	tasks, err := s.tasks.ListByOrderLine(ctx, lineID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list production tasks")
	}
	return tasks, nil
}

// Cancel releases the line's allocation back to stock. Production tasks are
// left for the shop floor to resolve.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.OrderLine, error) {
	if err := s.validateInput(ctx, input); err != nil {
		return nil, err
	}
	actor := input.Actor
	if actor.String() == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	ctx = s.logg.WithOrderLineID(ctx, input.OrderLineID.String())

	var result *models.OrderLine
	var released string
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		line, err := repo.FindLineForUpdate(ctx, input.OrderLineID)
		if err != nil {
			return readError(err, "order line")
		}
		if !line.Status.IsCancellable() {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order line in status %s cannot be cancelled", line.Status)
		}

		now := s.now()
		previous := line.Status
		releasedQty := line.QuantityAllocated
		if releasedQty.IsPositive() {
			if _, err := s.ledger.WithTx(tx).Increment(ctx, line.FinishedGoodID, releasedQty, ledger.Reference{
				Movement: enums.StockMovementRelease,
				Type:     referenceTypeOrderLine,
				ID:       line.ID,
				Actor:    actor.String(),
			}); err != nil {
				return err
			}
		}

		reason := strings.TrimSpace(input.Reason)
		updates := map[string]any{
			"status":             enums.OrderLineStatusCancelled,
			"cancelled_at":       now,
			"quantity_allocated": decimal.Zero,
		}
		if reason != "" {
			updates["cancel_reason"] = reason
			line.CancelReason = &reason
		}
		if err := repo.UpdateLine(ctx, line.ID, updates); err != nil {
			return writeError(err, "cancel order line")
		}
		line.Status = enums.OrderLineStatusCancelled
		line.CancelledAt = &now
		line.QuantityAllocated = decimal.Zero

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderLineCancelled,
			AggregateType: enums.AggregateOrderLine,
			AggregateID:   line.ID,
			Actor:         actor.Ref(),
			OccurredAt:    now,
			Data: payloads.OrderLineCancelledEvent{
				OrderLineID:      line.ID,
				OrderID:          line.OrderID,
				PreviousStatus:   previous.String(),
				ReleasedQuantity: releasedQty,
				Reason:           reason,
				CancelledBy:      actor.String(),
				CancelledAt:      now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "emit cancellation event")
		}

		s.audit.Append(ctx, tx, audit.Entry{
			SubjectID:   line.ID,
			ActionType:  enums.AuditOrderCancelled,
			Description: fmt.Sprintf("order line cancelled from %s", previous),
			Actor:       actor.String(),
			Reason:      reason,
			OccurredAt:  now,
		})
		if releasedQty.IsPositive() {
			s.audit.Append(ctx, tx, audit.Entry{
				SubjectID:   line.ID,
				ActionType:  enums.AuditStockReleased,
				Description: fmt.Sprintf("%s released back to finished good stock", releasedQty),
				Actor:       actor.String(),
				OccurredAt:  now,
			})
		}
		released = releasedQty.String()
		result = line
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "released_quantity", released), "order line cancelled")
	return result, nil
}

// downstreamTargets are the statuses an operator may set directly. Earlier
// states are owned by confirmation and production execution.
var downstreamTargets = map[enums.OrderLineStatus]struct{}{
	enums.OrderLineStatusReadyForDispatch: {},
	enums.OrderLineStatusDispatched:       {},
	enums.OrderLineStatusDelivered:        {},
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.OrderLine, error) {
	if err := s.validateInput(ctx, input); err != nil {
		return nil, err
	}
	if _, ok := downstreamTargets[input.To]; !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "status %q cannot be set directly", input.To)
	}
	actor := input.Actor
	if actor.String() == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	ctx = s.logg.WithOrderLineID(ctx, input.OrderLineID.String())

	var result *models.OrderLine
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		line, err := repo.FindLineForUpdate(ctx, input.OrderLineID)
		if err != nil {
			return readError(err, "order line")
		}
		previous := line.Status
		if !previous.CanTransitionTo(input.To) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move order line from %s to %s", previous, input.To)
		}

		now := s.now()
		if err := repo.UpdateLine(ctx, line.ID, map[string]any{"status": input.To}); err != nil {
			return writeError(err, "update order line status")
		}
		line.Status = input.To

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderLineStatusChanged,
			AggregateType: enums.AggregateOrderLine,
			AggregateID:   line.ID,
			Actor:         actor.Ref(),
			OccurredAt:    now,
			Data: payloads.OrderLineStatusChangedEvent{
				OrderLineID: line.ID,
				OrderID:     line.OrderID,
				From:        previous.String(),
				To:          input.To.String(),
				ChangedBy:   actor.String(),
				ChangedAt:   now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodePersistence, err, "emit status event")
		}
		s.audit.Append(ctx, tx, audit.Entry{
			SubjectID:   line.ID,
			ActionType:  enums.AuditOrderStatusChanged,
			Description: fmt.Sprintf("order line moved from %s to %s", previous, input.To),
			Actor:       actor.String(),
			Reason:      input.Reason,
			OccurredAt:  now,
		})
		result = line
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "status", input.To), "order line transitioned")
	return result, nil
}

// Preview plans against current stock without locking or writing anything.
func (s *service) Preview(ctx context.Context, input PreviewInput) (*PreviewResult, error) {
	var (
		finishedGoodID uuid.UUID
		quantity       = input.Quantity
		lineID         uuid.UUID
	)
	switch {
	case input.OrderLineID != nil:
		line, err := s.GetLine(ctx, *input.OrderLineID)
		if err != nil {
			return nil, err
		}
		finishedGoodID = line.FinishedGoodID
		quantity = line.QuantityOrdered
		lineID = line.ID
	case input.FinishedGoodID != nil:
		finishedGoodID = *input.FinishedGoodID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order line id or finished good id required")
	}

	finished, base, err := s.loadMaterials(ctx, s.ledger, finishedGoodID, false)
	if err != nil {
		return nil, err
	}
	plan, err := allocation.Compute(quantity, finished.StockQuantity, baseStock(base))
	if err != nil {
		return nil, err
	}
	tasks := s.builder.Build(plan, production.BuildInput{
		OrderLineID:    lineID,
		FinishedGoodID: finished.ID,
		BaseMaterialID: finished.LinkedBaseMaterialID,
		Now:            s.now(),
	})
	return &PreviewResult{Plan: plan, Tasks: tasks}, nil
}

// loadMaterials reads the finished good (optionally under lock) and its
// linked base material.
func (s *service) loadMaterials(ctx context.Context, stock ledger.Service, finishedGoodID uuid.UUID, lock bool) (*models.Material, *models.Material, error) {
	var (
		finished *models.Material
		err      error
	)
	if lock {
		finished, err = stock.GetForUpdate(ctx, finishedGoodID)
	} else {
		finished, err = stock.Get(ctx, finishedGoodID)
	}
	if err != nil {
		return nil, nil, err
	}
	if finished.Kind != enums.MaterialKindFinished {
		return nil, nil, pkgerrors.Newf(pkgerrors.CodeValidation, "material %s is not a finished good", finished.SKU)
	}
	if finished.LinkedBaseMaterialID == nil {
		return finished, nil, nil
	}
	base, err := stock.Get(ctx, *finished.LinkedBaseMaterialID)
	if err != nil {
		return nil, nil, err
	}
	if base.Kind != enums.MaterialKindBase {
		return nil, nil, pkgerrors.Newf(pkgerrors.CodeValidation, "linked material %s is not a base material", base.SKU)
	}
	return finished, base, nil
}

func (s *service) validateInput(ctx context.Context, input any) error {
	if err := s.validate.StructCtx(ctx, input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := map[string]string{}
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
			return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	return nil
}

func baseStock(base *models.Material) *decimal.Decimal {
	if base == nil {
		return nil
	}
	v := base.StockQuantity
	return &v
}

func generateOrderNumber(id uuid.UUID, now time.Time) string {
	return fmt.Sprintf("SO-%s-%s", now.Format("20060102"), strings.ToUpper(id.String()[:8]))
}

func readError(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+what)
}

func writeError(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order line not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistence, err, msg)
}
