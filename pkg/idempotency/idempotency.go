package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/millflow-backend/pkg/redis"
)

// ErrClaimHeld is returned when another caller already holds the claim.
var ErrClaimHeld = errors.New("operation already in flight")

// Manager guards in-flight operations with Redis SETNX and a TTL.
// Keys follow the `mf:guard:<scope>:<id>` pattern.
type Manager struct {
	store redis.GuardStore
	ttl   time.Duration
}

// Claim is a held guard. Release it once the guarded work has committed.
type Claim struct {
	key   string
	owner string
}

// NewManager builds a guard whose claims expire after ttl.
func NewManager(store redis.GuardStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &Manager{
		store: store,
		ttl:   ttl,
	}, nil
}

// Claim takes the guard for scope/id or returns ErrClaimHeld.
func (m *Manager) Claim(ctx context.Context, scope string, id uuid.UUID) (*Claim, error) {
	key, err := m.claimKey(scope, id)
	if err != nil {
		return nil, err
	}
	owner := uuid.NewString()
	set, err := m.store.SetNX(ctx, key, owner, m.ttl)
	if err != nil {
		return nil, fmt.Errorf("claim %s: %w", key, err)
	}
	if !set {
		return nil, ErrClaimHeld
	}
	return &Claim{key: key, owner: owner}, nil
}

// Release drops the claim if it is still owned by the caller.
func (m *Manager) Release(ctx context.Context, claim *Claim) error {
	if claim == nil {
		return nil
	}
	current, err := m.store.Get(ctx, claim.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read claim owner: %w", err)
	}
	if current != claim.owner {
		return nil
	}
	return m.store.Del(ctx, claim.key)
}

func (m *Manager) claimKey(scope string, id uuid.UUID) (string, error) {
	if scope == "" {
		return "", errors.New("scope is required")
	}
	if id == uuid.Nil {
		return "", errors.New("id is required")
	}
	return m.store.GuardKey(scope, id.String()), nil
}
