package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/dineline/dineline/internal/config"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/usagerecord"
	"go.uber.org/zap"
)

// StripeReporter reports metered usage against a Stripe subscription item.
type StripeReporter struct {
	log     *zap.Logger
	timeout time.Duration
}

func NewStripeReporter(cfg config.Config, log *zap.Logger) (Reporter, error) {
	if cfg.Stripe.APIKey == "" {
		return nil, nil
	}
	stripe.Key = cfg.Stripe.APIKey

	timeout := cfg.Stripe.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &StripeReporter{
		log:     log.Named("billing.stripe"),
		timeout: timeout,
	}, nil
}

func (r *StripeReporter) SubmitMeteredEvent(ctx context.Context, event MeteredEvent) (string, error) {
	if event.SubscriptionItemID == "" {
		return "", fmt.Errorf("stripe: subscription item is required")
	}
	if event.Quantity <= 0 {
		return "", fmt.Errorf("stripe: quantity must be positive")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	params := &stripe.UsageRecordParams{
		Params:           stripe.Params{Context: ctx},
		SubscriptionItem: stripe.String(event.SubscriptionItemID),
		Quantity:         stripe.Int64(event.Quantity),
		Action:           stripe.String("increment"),
	}
	if !event.Timestamp.IsZero() {
		params.Timestamp = stripe.Int64(event.Timestamp.Unix())
	}
	if event.IdempotencyKey != "" {
		params.SetIdempotencyKey(event.IdempotencyKey)
	}

	record, err := usagerecord.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: failed to report usage: %w", err)
	}

	r.log.Info("reported metered usage",
		zap.String("usage_record_id", record.ID),
		zap.String("subscription_item_id", record.SubscriptionItem),
		zap.Int64("quantity", record.Quantity),
	)
	return record.ID, nil
}
