package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/millflow-backend/pkg/errors"
	"github.com/angelmondragon/millflow-backend/pkg/logger"
	"github.com/angelmondragon/millflow-backend/pkg/types"
)

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WritePage writes a list with its continuation cursor.
func WritePage(w http.ResponseWriter, data any, nextCursor string) {
	envelope := types.SuccessEnvelope{Data: data}
	if nextCursor != "" {
		envelope.Meta = &types.PageMeta{NextCursor: nextCursor}
	}
	writeJSON(w, http.StatusOK, envelope)
}

// WriteError maps err onto its public code and status. Client errors (4xx)
// keep their own message; server-side codes use the generic one. Retryable
// errors say so in the body and, for 503, with a Retry-After header.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	apiErr := types.APIError{
		Code:      string(typed.Code()),
		Message:   meta.PublicMessage,
		Retryable: meta.Retryable,
	}
	if meta.HTTPStatus < http.StatusInternalServerError && typed.Message() != "" {
		apiErr.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}
	if meta.HTTPStatus == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", dependencyRetryAfter)
	}

	if logg != nil {
		logError(ctx, logg, err, meta.HTTPStatus)
	}
	writeJSON(w, meta.HTTPStatus, types.ErrorEnvelope{Error: apiErr})
}

const dependencyRetryAfter = "1"

func logError(ctx context.Context, logg *logger.Logger, err error, status int) {
	dump := pkgerrors.Dump(err)
	ctx = logg.WithFields(ctx, map[string]any{
		"error_chain":   dump.Chain,
		"pg_code":       dump.SQLState,
		"pg_constraint": dump.Constraint,
		"status":        status,
	})
	if status >= http.StatusInternalServerError {
		logg.Error(ctx, "request.error", err)
		return
	}
	logg.Warn(logg.WithFields(ctx, map[string]any{"error": dump.TopMessage, "error_code": dump.Code}), "request.rejected")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
