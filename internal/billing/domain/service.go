package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	usagedomain "github.com/dineline/dineline/internal/usage/domain"
)

var (
	ErrAccountNotFound = errors.New("billing_account_not_found")
	ErrLedgerWrite     = errors.New("usage_ledger_write_failed")
)

// Service is the billing reconciler: the one-shot claim-and-bill flow that
// runs when a call completes, plus the overage reporting pass and the
// period reset driven by provider webhooks.
type Service interface {
	// ReconcileCall claims the completed call for billing and, having won
	// the claim, appends call/minute ledger entries and reports overage.
	// Losing the claim is a silent no-op. A failed local ledger write
	// releases the claim; a failed provider submission does not.
	ReconcileCall(ctx context.Context, callID snowflake.ID) error

	// ReportOverage pushes the account's unreported usage backlog of the
	// kind to the external provider when monthly usage exceeds the plan's
	// included allowance.
	ReportOverage(ctx context.Context, accountID snowflake.ID, kind usagedomain.Kind) error

	// ResetBillingPeriod zeroes monthly counters at a provider
	// period-start event, at most once per period.
	ResetBillingPeriod(ctx context.Context, accountID snowflake.ID, periodStart, periodEnd time.Time) error

	// GetAccountByRestaurant resolves a restaurant's billing account.
	GetAccountByRestaurant(ctx context.Context, restaurantID snowflake.ID) (*BillingAccount, error)
}
