package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const provider = "stripe"

type dedupeStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	WebhookEventKey(provider, eventID string) string
}

// EventDeduper acknowledges redelivered Stripe events without applying them
// twice. Each handled event id is remembered for ttl.
type EventDeduper struct {
	store dedupeStore
	ttl   time.Duration
	now   func() time.Time
}

func NewEventDeduper(store dedupeStore, ttl time.Duration) (*EventDeduper, error) {
	if store == nil {
		return nil, errors.New("webhook dedupe: store required")
	}
	if ttl <= 0 {
		return nil, errors.New("webhook dedupe: ttl must be positive")
	}
	return &EventDeduper{store: store, ttl: ttl, now: time.Now}, nil
}

// CheckAndMark reports true when eventID was already marked. Otherwise it
// marks it with the receive time and reports false.
func (d *EventDeduper) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("webhook dedupe: event id required")
	}
	marked, err := d.store.SetNX(ctx, d.store.WebhookEventKey(provider, eventID), d.now().UTC().Format(time.RFC3339), d.ttl)
	if err != nil {
		return false, fmt.Errorf("mark event %s: %w", eventID, err)
	}
	return !marked, nil
}

// Delete unmarks eventID so Stripe's retry of a failed event is processed.
func (d *EventDeduper) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("webhook dedupe: event id required")
	}
	return d.store.Del(ctx, d.store.WebhookEventKey(provider, eventID))
}
