package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidKind     = errors.New("invalid_usage_kind")
	ErrInvalidQuantity = errors.New("invalid_usage_quantity")
	ErrInvalidAccount  = errors.New("invalid_billing_account")
	ErrNoEntries       = errors.New("no_ledger_entries")
)

// EntrySpec describes one entry to append.
type EntrySpec struct {
	Kind     Kind
	Quantity int64
}

// Ledger is the append-only usage ledger. The monthly counters on the
// billing account row are owned by this component: they are mutated only by
// AppendEntries' atomic increment and by ResetPeriod, never by ad hoc
// read-then-write from other call sites.
type Ledger interface {
	// AppendEntries durably writes the given entries and increments the
	// account's monthly counters in a single transaction: either all of it
	// lands or none of it does.
	AppendEntries(ctx context.Context, accountID, restaurantID snowflake.ID, specs []EntrySpec) ([]LedgerEntry, error)

	// GetUnreported returns every entry of the kind not yet reported to the
	// billing provider, deliberately not bounded by billing period so a
	// backlog is never silently dropped.
	GetUnreported(ctx context.Context, accountID snowflake.ID, kind Kind) ([]LedgerEntry, error)

	// MarkReported flags the entries as submitted and records the provider's
	// event identifier.
	MarkReported(ctx context.Context, entryIDs []snowflake.ID, externalID string) error

	// ResetPeriod zeroes the monthly counters and advances the billing
	// period. The compare-and-swap on period_start makes the reset happen
	// exactly once per period-start event, however many times the provider
	// retries the webhook.
	ResetPeriod(ctx context.Context, accountID snowflake.ID, periodStart, periodEnd time.Time) (bool, error)
}
