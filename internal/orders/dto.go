package orders

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/millflow-backend/internal/allocation"
	"github.com/angelmondragon/millflow-backend/internal/authz"
	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
)

// CreateOrderInput captures a new order header with its lines.
type CreateOrderInput struct {
	OrderNumber  string            `validate:"omitempty,max=64"`
	CustomerName string            `validate:"required,max=200"`
	Notes        *string           `validate:"omitempty,max=2000"`
	Lines        []CreateLineInput `validate:"required,min=1,max=200,dive"`
	Actor        authz.Actor       `validate:"-"`
}

type CreateLineInput struct {
	FinishedGoodID uuid.UUID `validate:"required"`
	Color          string    `validate:"omitempty,max=64"`
	Quantity       decimal.Decimal
	DueDate        *time.Time
}

// ConfirmInput asks the orchestrator to plan and commit an order line.
type ConfirmInput struct {
	OrderLineID       uuid.UUID   `validate:"required"`
	AuthorizationCode string      `validate:"omitempty,max=128"`
	Actor             authz.Actor `validate:"-"`
}

// ConfirmationResult is the committed (or replayed) outcome of Confirm.
type ConfirmationResult struct {
	Line     *models.OrderLine
	Plan     allocation.Plan
	Tasks    []models.ProductionTask
	Replayed bool
}

type CancelInput struct {
	OrderLineID uuid.UUID   `validate:"required"`
	Reason      string      `validate:"omitempty,max=500"`
	Actor       authz.Actor `validate:"-"`
}

// TransitionInput moves a line along the post-production path.
type TransitionInput struct {
	OrderLineID uuid.UUID             `validate:"required"`
	To          enums.OrderLineStatus `validate:"required"`
	Reason      string                `validate:"omitempty,max=500"`
	Actor       authz.Actor           `validate:"-"`
}

// PreviewInput selects either an existing line or an ad hoc finished good and quantity.
type PreviewInput struct {
	OrderLineID    *uuid.UUID
	FinishedGoodID *uuid.UUID
	Quantity       decimal.Decimal
}

// PreviewResult is a dry-run plan; tasks carry no numbers and nothing is stored.
type PreviewResult struct {
	Plan  allocation.Plan
	Tasks []models.ProductionTask
}

// OrderList wraps paginated orders plus the next page cursor.
type OrderList struct {
	Orders     []models.Order
	NextCursor string
}

// ConfirmationKey derives the idempotency key stored on a confirmed line and its tasks.
func ConfirmationKey(orderLineID uuid.UUID, epoch int) string {
	sum := sha256.Sum256([]byte(orderLineID.String() + "|" + strconv.Itoa(epoch)))
	return hex.EncodeToString(sum[:])
}
