package middleware

import (
	"context"

	"github.com/angelmondragon/millflow-backend/internal/authz"
)

type contextKey string

const (
	ctxSubject contextKey = "subject"
	ctxRole    contextKey = "actor_role"
)

func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxSubject).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// ActorFromContext returns the operator authenticated for this request.
func ActorFromContext(ctx context.Context) authz.Actor {
	return authz.Actor{Subject: SubjectFromContext(ctx), Role: RoleFromContext(ctx)}
}

// WithActor injects an authenticated operator into the context.
func WithActor(ctx context.Context, subject, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxSubject, subject)
	return context.WithValue(ctx, ctxRole, role)
}
