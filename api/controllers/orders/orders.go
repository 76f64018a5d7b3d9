package orders

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/millflow-backend/api/controllers/views"
	"github.com/angelmondragon/millflow-backend/api/middleware"
	"github.com/angelmondragon/millflow-backend/api/responses"
	"github.com/angelmondragon/millflow-backend/api/validators"
	internalorders "github.com/angelmondragon/millflow-backend/internal/orders"
	"github.com/angelmondragon/millflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/millflow-backend/pkg/errors"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
)

type createOrderRequest struct {
	OrderNumber  string              `json:"order_number" validate:"omitempty,max=64"`
	CustomerName string              `json:"customer_name" validate:"required,max=200"`
	Notes        *string             `json:"notes" validate:"omitempty,max=2000"`
	Lines        []createLineRequest `json:"lines" validate:"required,min=1,max=200,dive"`
}

type createLineRequest struct {
	FinishedGoodID string          `json:"finished_good_id" validate:"required,uuid"`
	Color          string          `json:"color" validate:"omitempty,max=64"`
	Quantity       decimal.Decimal `json:"quantity" validate:"qty_positive"`
	DueDate        string          `json:"due_date" validate:"omitempty,calendar_date"`
}

type confirmRequest struct {
	AuthorizationCode string `json:"authorization_code" validate:"omitempty,max=128"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type transitionRequest struct {
	To     string `json:"to" validate:"required"`
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type previewRequest struct {
	FinishedGoodID string          `json:"finished_good_id" validate:"required,uuid"`
	Quantity       decimal.Decimal `json:"quantity" validate:"qty_positive"`
}

// Create stores a new order with its pending lines.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalorders.CreateOrderInput{
			OrderNumber:  validators.SanitizeString(req.OrderNumber, 64),
			CustomerName: validators.SanitizeString(req.CustomerName, 200),
			Notes:        req.Notes,
			Actor:        middleware.ActorFromContext(r.Context()),
		}
		for i, line := range req.Lines {
			in, err := toLineInput(i, line)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			input.Lines = append(input.Lines, in)
		}

		order, err := svc.CreateOrder(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, views.FromOrder(order))
	}
}

// List pages order headers newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListOrders(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, views.FromOrders(list.Orders), list.NextCursor)
	}
}

func Get(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views.FromOrder(order))
	}
}

func GetLine(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineID, err := validators.ParseUUIDParam(r, "lineID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		line, err := svc.GetLine(r.Context(), lineID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views.FromOrderLine(line))
	}
}

// LineTasks lists the production tasks created for a line in sequence order.
func LineTasks(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineID, err := validators.ParseUUIDParam(r, "lineID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tasks, err := svc.ListTasks(r.Context(), lineID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views.FromTasks(tasks))
	}
}

// Confirm allocates stock and creates production tasks for a pending line.
// A replayed confirmation answers 200 with the stored outcome.
func Confirm(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineID, err := validators.ParseUUIDParam(r, "lineID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req confirmRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Confirm(r.Context(), internalorders.ConfirmInput{
			OrderLineID:       lineID,
			AuthorizationCode: strings.TrimSpace(req.AuthorizationCode),
			Actor:             middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, views.Confirmation{
			Line:     views.FromOrderLine(result.Line),
			Plan:     views.FromPlan(result.Plan),
			Tasks:    views.FromTasks(result.Tasks),
			Replayed: result.Replayed,
		})
	}
}

func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineID, err := validators.ParseUUIDParam(r, "lineID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req cancelRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		line, err := svc.Cancel(r.Context(), internalorders.CancelInput{
			OrderLineID: lineID,
			Reason:      validators.SanitizeString(req.Reason, 500),
			Actor:       middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views.FromOrderLine(line))
	}
}

// Transition moves a line along ready_for_dispatch, dispatched and delivered.
func Transition(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineID, err := validators.ParseUUIDParam(r, "lineID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req transitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := enums.ParseOrderLineStatus(strings.TrimSpace(req.To))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status"))
			return
		}
		line, err := svc.Transition(r.Context(), internalorders.TransitionInput{
			OrderLineID: lineID,
			To:          to,
			Reason:      validators.SanitizeString(req.Reason, 500),
			Actor:       middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views.FromOrderLine(line))
	}
}

// PreviewLine plans an existing line against current stock without writing.
func PreviewLine(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineID, err := validators.ParseUUIDParam(r, "lineID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Preview(r.Context(), internalorders.PreviewInput{OrderLineID: &lineID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views.Preview{Plan: views.FromPlan(result.Plan), Tasks: views.FromTasks(result.Tasks)})
	}
}

// Preview plans an ad hoc finished good and quantity.
func Preview(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req previewRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		finishedGoodID := uuid.MustParse(req.FinishedGoodID)
		result, err := svc.Preview(r.Context(), internalorders.PreviewInput{
			FinishedGoodID: &finishedGoodID,
			Quantity:       req.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views.Preview{Plan: views.FromPlan(result.Plan), Tasks: views.FromTasks(result.Tasks)})
	}
}

func toLineInput(index int, req createLineRequest) (internalorders.CreateLineInput, error) {
	in := internalorders.CreateLineInput{
		FinishedGoodID: uuid.MustParse(req.FinishedGoodID),
		Color:          validators.SanitizeString(req.Color, 64),
		Quantity:       req.Quantity,
	}
	if raw := strings.TrimSpace(req.DueDate); raw != "" {
		due, err := time.Parse(validators.CalendarDateLayout, raw)
		if err != nil {
			return in, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "due_date must be YYYY-MM-DD").
				WithDetails(map[string]any{"line": index + 1})
		}
		in.DueDate = &due
	}
	return in, nil
}
