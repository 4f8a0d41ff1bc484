package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rmedina-dev/hauldash-backend/pkg/redis"
)

// IdempotencyGuard is the fast-path dedup in front of the durable ledger. A
// redis hiccup only costs the fast path; the ledger still catches replays.
type IdempotencyGuard struct {
	store    redis.WebhookGuardStore
	ttl      time.Duration
	provider string
}

func NewIdempotencyGuard(store redis.WebhookGuardStore, ttl time.Duration, provider string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("guard store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if provider == "" {
		return nil, errors.New("provider is required")
	}
	return &IdempotencyGuard{
		store:    store,
		ttl:      ttl,
		provider: provider,
	}, nil
}

func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	key := g.store.WebhookGuardKey(g.provider, eventID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set webhook guard key: %w", err)
	}
	return !set, nil
}

func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	key := g.store.WebhookGuardKey(g.provider, eventID)
	return g.store.Del(ctx, key)
}
