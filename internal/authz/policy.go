package authz

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/millflow-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/millflow-backend/pkg/errors"
	"github.com/angelmondragon/millflow-backend/pkg/outbox"
	"github.com/angelmondragon/millflow-backend/pkg/security"
)

// Actor is the authenticated operator performing a command.
type Actor struct {
	Subject string
	Role    string
}

// String returns the identity recorded in audit rows and on the order line.
func (a Actor) String() string {
	return strings.TrimSpace(a.Subject)
}

// Ref converts the actor to the envelope form carried on outbox events.
func (a Actor) Ref() *outbox.ActorRef {
	if a.String() == "" {
		return nil
	}
	return &outbox.ActorRef{Subject: a.String(), Role: a.Role}
}

// ConfirmationPolicy decides whether an actor may confirm an order line.
type ConfirmationPolicy interface {
	Authorize(ctx context.Context, actor Actor, code string) error
}

// AllowAll accepts every confirmation.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context, Actor, string) error { return nil }

// RolePolicy accepts actors holding one of the configured roles.
type RolePolicy struct {
	roles map[string]struct{}
}

func NewRolePolicy(roles []string) RolePolicy {
	set := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		role = normalizeRole(role)
		if role != "" {
			set[role] = struct{}{}
		}
	}
	return RolePolicy{roles: set}
}

func (p RolePolicy) Authorize(_ context.Context, actor Actor, _ string) error {
	if _, ok := p.roles[normalizeRole(actor.Role)]; ok {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "role is not allowed to confirm orders")
}

// CodePolicy requires the shared confirmation code whose argon2id hash is configured.
type CodePolicy struct {
	hash string
}

func NewCodePolicy(hash string) (CodePolicy, error) {
	if strings.TrimSpace(hash) == "" {
		return CodePolicy{}, fmt.Errorf("confirmation code hash required")
	}
	return CodePolicy{hash: hash}, nil
}

func (p CodePolicy) Authorize(_ context.Context, _ Actor, code string) error {
	if strings.TrimSpace(code) == "" {
		return pkgerrors.New(pkgerrors.CodeForbidden, "authorization code required")
	}
	ok, err := security.VerifyCode(code, p.hash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirmation code hash is misconfigured")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeForbidden, "invalid authorization code")
	}
	return nil
}

// NewPolicy builds the policy selected by configuration.
func NewPolicy(cfg config.AuthorizationConfig) (ConfirmationPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.ConfirmationPolicy)) {
	case config.ConfirmationPolicyAllowAll:
		return AllowAll{}, nil
	case config.ConfirmationPolicyRole, "":
		if len(cfg.ConfirmationRoles) == 0 {
			return nil, fmt.Errorf("confirmation roles required for role policy")
		}
		return NewRolePolicy(cfg.ConfirmationRoles), nil
	case config.ConfirmationPolicyCode:
		return NewCodePolicy(cfg.ConfirmationCodeHash)
	default:
		return nil, fmt.Errorf("unknown confirmation policy %q", cfg.ConfirmationPolicy)
	}
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
