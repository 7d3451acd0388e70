package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/promptability/Website-sub002/pkg/instance"
	"github.com/promptability/Website-sub002/pkg/redis"
)

const releaseTimeout = 2 * time.Second

// InFlightGuard keeps two deliveries of the same event from running the
// handler at once. The database unique index stays the dedup point; the
// guard only turns a concurrent duplicate into a fast 409.
type InFlightGuard struct {
	store redis.LockStore
	ttl   time.Duration
	scope string
}

func NewInFlightGuard(store redis.LockStore, ttl time.Duration, scope string) (*InFlightGuard, error) {
	if store == nil {
		return nil, errors.New("lock store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &InFlightGuard{
		store: store,
		ttl:   ttl,
		scope: scope,
	}, nil
}

// Acquire takes the lock for eventID. When acquired is false another
// delivery holds it. The returned release is always safe to call.
func (g *InFlightGuard) Acquire(ctx context.Context, eventID string) (release func(), acquired bool, err error) {
	noop := func() {}
	if eventID == "" {
		return noop, false, errors.New("event id is required")
	}
	key := g.store.LockKey(g.scope, eventID)
	// owner:nonce so a stuck lock can be traced to the replica holding it
	token := instance.ID() + ":" + uuid.NewString()
	set, err := g.store.SetNX(ctx, key, token, g.ttl)
	if err != nil {
		return noop, false, fmt.Errorf("acquire in-flight lock: %w", err)
	}
	if !set {
		return noop, false, nil
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		_, _ = g.store.ReleaseIfOwner(releaseCtx, key, token)
	}, true, nil
}
