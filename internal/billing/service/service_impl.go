package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/dineline/dineline/internal/billing/domain"
	"github.com/dineline/dineline/internal/billing/provider"
	calldomain "github.com/dineline/dineline/internal/call/domain"
	"github.com/dineline/dineline/internal/clock"
	"github.com/dineline/dineline/internal/observability/metrics"
	"github.com/dineline/dineline/internal/plan"
	usagedomain "github.com/dineline/dineline/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Calls    calldomain.Repository
	Ledger   usagedomain.Ledger
	Catalog  *plan.Catalog
	Reporter provider.Reporter `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	calls    calldomain.Repository
	ledger   usagedomain.Ledger
	catalog  *plan.Catalog
	reporter provider.Reporter
}

func NewService(p ServiceParam) billingdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("billing.reconciler"),
		clock:    p.Clock,
		calls:    p.Calls,
		ledger:   p.Ledger,
		catalog:  p.Catalog,
		reporter: p.Reporter,
	}
}

// ReconcileCall is the claim-and-bill flow. It is safe to invoke any number
// of times for the same call from any number of processes: the conditional
// claim write lets exactly one invocation proceed past the gate.
func (s *Service) ReconcileCall(ctx context.Context, callID snowflake.ID) error {
	record, err := s.calls.GetCall(ctx, callID)
	if err != nil {
		return err
	}
	if record.Status != calldomain.CallStatusCompleted {
		return calldomain.ErrInvalidStatus
	}
	if record.Claim().Claimed() {
		return nil
	}

	won, err := s.calls.ClaimUsage(ctx, callID)
	if err != nil {
		return err
	}
	if !won {
		metrics.Billing().ClaimsLost.Inc()
		s.log.Info("usage already claimed by a concurrent reconciliation",
			zap.String("call_id", callID.String()),
		)
		return nil
	}
	metrics.Billing().ClaimsWon.Inc()

	account, err := s.GetAccountByRestaurant(ctx, record.RestaurantID)
	if err != nil {
		// Without an account there is nothing to bill against; release the
		// claim so a later pass can pick the call up once one exists.
		if releaseErr := s.calls.ReleaseUsageClaim(ctx, callID); releaseErr != nil {
			return errors.Join(err, releaseErr)
		}
		return err
	}
	if !account.Subscribed() {
		// Recording usage before a subscription item exists would bill the
		// backlog retroactively the moment one is configured. Release the
		// claim instead so the call is picked up once the account is live.
		if releaseErr := s.calls.ReleaseUsageClaim(ctx, callID); releaseErr != nil {
			return releaseErr
		}
		s.log.Info("no subscription configured, releasing claim unbilled",
			zap.String("call_id", callID.String()),
			zap.String("account_id", account.ID.String()),
		)
		return nil
	}

	specs := []usagedomain.EntrySpec{
		{Kind: usagedomain.KindCall, Quantity: 1},
	}
	var duration int
	if record.DurationSeconds != nil {
		duration = *record.DurationSeconds
	}
	if minutes := billingdomain.BillableMinutes(duration); minutes > 0 {
		specs = append(specs, usagedomain.EntrySpec{Kind: usagedomain.KindMinute, Quantity: minutes})
	}

	if _, err := s.ledger.AppendEntries(ctx, account.ID, account.RestaurantID, specs); err != nil {
		// The claim without a ledger entry would silently drop billable
		// usage, so hand the call back for a retry.
		if releaseErr := s.calls.ReleaseUsageClaim(ctx, callID); releaseErr != nil {
			return errors.Join(billingdomain.ErrLedgerWrite, err, releaseErr)
		}
		return fmt.Errorf("%w: %w", billingdomain.ErrLedgerWrite, err)
	}
	for _, spec := range specs {
		metrics.Billing().LedgerEntries.WithLabelValues(string(spec.Kind)).Inc()
	}

	// The usage is durably recorded locally at this point. Provider-side
	// failures must not release the claim: the entries stay unreported and
	// the next reporting pass retries them.
	for _, kind := range []usagedomain.Kind{usagedomain.KindCall, usagedomain.KindMinute} {
		if err := s.ReportOverage(ctx, account.ID, kind); err != nil {
			s.log.Warn("overage report failed, entries remain unreported",
				zap.String("account_id", account.ID.String()),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
		}
	}
	return nil
}

// ReportOverage submits the account's unreported usage backlog of the kind
// to the billing provider once monthly usage has run past the plan's
// included allowance.
func (s *Service) ReportOverage(ctx context.Context, accountID snowflake.ID, kind usagedomain.Kind) error {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return err
	}

	p, ok := s.catalog.Lookup(account.PlanID)
	if !ok {
		return fmt.Errorf("%w: %s", plan.ErrUnknownPlan, account.PlanID)
	}

	var used int64
	var included *int64
	switch kind {
	case usagedomain.KindCall:
		used, included = account.MonthlyCallsUsed, p.IncludedCalls
	case usagedomain.KindMinute:
		used, included = account.MonthlyMinutesUsed, p.IncludedMinutes
	default:
		return usagedomain.ErrInvalidKind
	}

	if billingdomain.OverageQuantity(used, included) <= 0 {
		metrics.Billing().OverageReports.WithLabelValues(metrics.OverageReportResultSkipped).Inc()
		return nil
	}
	if p.MeteredPriceID == "" {
		// The plan meters usage but carries no overage price, so there is
		// nothing to report the excess against.
		metrics.Billing().OverageReports.WithLabelValues(metrics.OverageReportResultSkipped).Inc()
		s.log.Warn("overage accrued on a plan without a metered price",
			zap.String("account_id", accountID.String()),
			zap.String("plan_id", string(account.PlanID)),
			zap.String("kind", string(kind)),
		)
		return nil
	}

	entries, err := s.ledger.GetUnreported(ctx, accountID, kind)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	var quantity int64
	entryIDs := make([]snowflake.ID, 0, len(entries))
	for _, entry := range entries {
		quantity += entry.Quantity
		entryIDs = append(entryIDs, entry.ID)
	}
	metrics.Billing().UnreportedBacklog.WithLabelValues(string(kind)).Set(float64(len(entries)))

	if s.reporter == nil || !account.Subscribed() {
		metrics.Billing().OverageReports.WithLabelValues(metrics.OverageReportResultSkipped).Inc()
		s.log.Warn("overage accrued without a metered subscription",
			zap.String("account_id", accountID.String()),
			zap.String("kind", string(kind)),
			zap.Int64("quantity", quantity),
		)
		return nil
	}

	now := s.clock.Now()
	externalID, err := s.reporter.SubmitMeteredEvent(ctx, provider.MeteredEvent{
		SubscriptionItemID: *account.StripeSubscriptionItemID,
		Quantity:           quantity,
		Timestamp:          now,
		IdempotencyKey:     fmt.Sprintf("%s-%s-%d", accountID, kind, now.Unix()),
	})
	if err != nil {
		metrics.Billing().OverageReports.WithLabelValues(metrics.OverageReportResultFailed).Inc()
		return err
	}

	if err := s.ledger.MarkReported(ctx, entryIDs, externalID); err != nil {
		// The provider accepted the event but the entries still look
		// unreported. The idempotency key on the next pass keeps the
		// provider from double counting.
		return err
	}
	metrics.Billing().OverageReports.WithLabelValues(metrics.OverageReportResultSubmitted).Inc()
	metrics.Billing().UnreportedBacklog.WithLabelValues(string(kind)).Set(0)
	s.log.Info("overage reported",
		zap.String("account_id", accountID.String()),
		zap.String("kind", string(kind)),
		zap.Int64("quantity", quantity),
		zap.Int("entries", len(entries)),
		zap.String("external_report_id", externalID),
	)
	return nil
}

// ResetBillingPeriod zeroes the monthly counters at a provider period-start
// event. Replayed webhooks for the same period are no-ops.
func (s *Service) ResetBillingPeriod(ctx context.Context, accountID snowflake.ID, periodStart, periodEnd time.Time) error {
	if _, err := s.getAccount(ctx, accountID); err != nil {
		return err
	}
	_, err := s.ledger.ResetPeriod(ctx, accountID, periodStart, periodEnd)
	return err
}

func (s *Service) GetAccountByRestaurant(ctx context.Context, restaurantID snowflake.ID) (*billingdomain.BillingAccount, error) {
	var account billingdomain.BillingAccount
	err := s.db.WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, billingdomain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *Service) getAccount(ctx context.Context, accountID snowflake.ID) (*billingdomain.BillingAccount, error) {
	var account billingdomain.BillingAccount
	err := s.db.WithContext(ctx).First(&account, "id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, billingdomain.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}
