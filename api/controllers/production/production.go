package production

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/millflow-backend/api/controllers/views"
	"github.com/angelmondragon/millflow-backend/api/middleware"
	"github.com/angelmondragon/millflow-backend/api/responses"
	"github.com/angelmondragon/millflow-backend/api/validators"
	internalproduction "github.com/angelmondragon/millflow-backend/internal/production"
	"github.com/angelmondragon/millflow-backend/pkg/db/models"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
)

type taskActionRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type outputRequest struct {
	Quantity decimal.Decimal `json:"quantity" validate:"qty_positive"`
}

type taskAction func(ctx context.Context, input internalproduction.TaskInput) (*models.ProductionTask, error)

func Get(svc internalproduction.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, err := validators.ParseUUIDParam(r, "taskID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		task, err := svc.Get(r.Context(), taskID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views.FromTask(task))
	}
}

func Start(svc internalproduction.Service, logg *logger.Logger) http.HandlerFunc {
	return handleAction(svc.Start, logg)
}

func Hold(svc internalproduction.Service, logg *logger.Logger) http.HandlerFunc {
	return handleAction(svc.Hold, logg)
}

func Resume(svc internalproduction.Service, logg *logger.Logger) http.HandlerFunc {
	return handleAction(svc.Resume, logg)
}

// Complete finishes an in-progress task and settles its stock effects.
func Complete(svc internalproduction.Service, logg *logger.Logger) http.HandlerFunc {
	return handleAction(svc.Complete, logg)
}

// Output records produced quantity against an in-progress task.
func Output(svc internalproduction.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, err := validators.ParseUUIDParam(r, "taskID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req outputRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		task, err := svc.ReportOutput(r.Context(), internalproduction.OutputInput{
			TaskID:   taskID,
			Quantity: req.Quantity,
			Actor:    middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views.FromTask(task))
	}
}

func handleAction(action taskAction, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID, err := validators.ParseUUIDParam(r, "taskID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req taskActionRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		task, err := action(r.Context(), internalproduction.TaskInput{
			TaskID: taskID,
			Actor:  middleware.ActorFromContext(r.Context()),
			Reason: validators.SanitizeString(req.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views.FromTask(task))
	}
}

