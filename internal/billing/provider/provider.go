// Package provider is the boundary to the external billing provider:
// metered usage events keyed by a client-generated idempotency identifier.
package provider

import (
	"context"
	"time"
)

// MeteredEvent is one aggregated usage submission. The idempotency key makes
// a retry on a later pass safe even when a previous attempt timed out after
// the provider had already accepted it.
type MeteredEvent struct {
	SubscriptionItemID string
	Quantity           int64
	Timestamp          time.Time
	IdempotencyKey     string
}

// Reporter submits metered usage events and returns the provider's event
// identifier.
type Reporter interface {
	SubmitMeteredEvent(ctx context.Context, event MeteredEvent) (string, error)
}
