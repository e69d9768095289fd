package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/dineline/dineline/internal/billing/domain"
	"github.com/dineline/dineline/internal/billing/provider"
	calldomain "github.com/dineline/dineline/internal/call/domain"
	callrepository "github.com/dineline/dineline/internal/call/repository"
	"github.com/dineline/dineline/internal/clock"
	"github.com/dineline/dineline/internal/plan"
	usagedomain "github.com/dineline/dineline/internal/usage/domain"
	usageservice "github.com/dineline/dineline/internal/usage/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeReporter struct {
	mu     sync.Mutex
	events []provider.MeteredEvent
	err    error
}

func (f *fakeReporter) SubmitMeteredEvent(_ context.Context, event provider.MeteredEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.events = append(f.events, event)
	return fmt.Sprintf("evt_%d", len(f.events)), nil
}

func (f *fakeReporter) Events() []provider.MeteredEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.MeteredEvent(nil), f.events...)
}

type failingLedger struct{}

func (failingLedger) AppendEntries(context.Context, snowflake.ID, snowflake.ID, []usagedomain.EntrySpec) ([]usagedomain.LedgerEntry, error) {
	return nil, errors.New("disk full")
}
func (failingLedger) GetUnreported(context.Context, snowflake.ID, usagedomain.Kind) ([]usagedomain.LedgerEntry, error) {
	return nil, nil
}
func (failingLedger) MarkReported(context.Context, []snowflake.ID, string) error { return nil }
func (failingLedger) ResetPeriod(context.Context, snowflake.ID, time.Time, time.Time) (bool, error) {
	return false, nil
}

func int64Ptr(v int64) *int64 { return &v }

type fixture struct {
	svc      billingdomain.Service
	db       *gorm.DB
	calls    calldomain.Repository
	ledger   usagedomain.Ledger
	reporter *fakeReporter
	clk      *clock.FakeClock
	node     *snowflake.Node
}

func setupService(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error
	if err := db.AutoMigrate(
		&calldomain.CallRecord{},
		&billingdomain.BillingAccount{},
		&usagedomain.LedgerEntry{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, 3, 15, 18, 30, 0, 0, time.UTC))
	calls := callrepository.New(db, clk)
	ledger := usageservice.NewLedger(usageservice.LedgerParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
	})
	catalog, err := plan.NewCatalog(zap.NewNop())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	reporter := &fakeReporter{}

	svc := NewService(ServiceParam{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    clk,
		Calls:    calls,
		Ledger:   ledger,
		Catalog:  catalog,
		Reporter: reporter,
	})
	return &fixture{
		svc:      svc,
		db:       db,
		calls:    calls,
		ledger:   ledger,
		reporter: reporter,
		clk:      clk,
		node:     node,
	}
}

func (f *fixture) seedAccount(t *testing.T, planID plan.ID, callsUsed, minutesUsed int64) *billingdomain.BillingAccount {
	t.Helper()
	item := "si_" + f.node.Generate().String()
	periodStart := f.clk.Now().AddDate(0, 0, -14)
	account := &billingdomain.BillingAccount{
		ID:                       f.node.Generate(),
		RestaurantID:             f.node.Generate(),
		PlanID:                   planID,
		StripeSubscriptionItemID: &item,
		MonthlyCallsUsed:         callsUsed,
		MonthlyMinutesUsed:       minutesUsed,
		PeriodStart:              periodStart,
		PeriodEnd:                periodStart.AddDate(0, 1, 0),
	}
	if err := f.db.Create(account).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return account
}

func (f *fixture) seedCompletedCall(t *testing.T, restaurantID snowflake.ID, durationSeconds int) *calldomain.CallRecord {
	t.Helper()
	sid := "CA" + f.node.Generate().String()
	record := &calldomain.CallRecord{
		ID:                f.node.Generate(),
		RestaurantID:      restaurantID,
		ExternalSessionID: &sid,
		Status:            calldomain.CallStatusCompleted,
		DurationSeconds:   &durationSeconds,
	}
	if err := f.calls.Create(context.Background(), record); err != nil {
		t.Fatalf("seed call: %v", err)
	}
	return record
}

func (f *fixture) seedUnreportedEntry(t *testing.T, account *billingdomain.BillingAccount, kind usagedomain.Kind, quantity int64) {
	t.Helper()
	entry := &usagedomain.LedgerEntry{
		ID:           f.node.Generate(),
		AccountID:    account.ID,
		RestaurantID: account.RestaurantID,
		Kind:         kind,
		Quantity:     quantity,
		PeriodStart:  account.PeriodStart,
		CreatedAt:    f.clk.Now(),
		UpdatedAt:    f.clk.Now(),
	}
	if err := f.db.Create(entry).Error; err != nil {
		t.Fatalf("seed entry: %v", err)
	}
}

func TestReconcileCallAppendsCallAndMinutes(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	account := f.seedAccount(t, plan.Starter, 0, 0)
	record := f.seedCompletedCall(t, account.RestaurantID, 61)

	if err := f.svc.ReconcileCall(ctx, record.ID); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	got, err := f.calls.GetCall(ctx, record.ID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if !got.Claim().Claimed() {
		t.Fatal("call should be claimed after reconciliation")
	}

	var reloaded billingdomain.BillingAccount
	if err := f.db.First(&reloaded, "id = ?", account.ID).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if reloaded.MonthlyCallsUsed != 1 {
		t.Fatalf("calls used = %d, want 1", reloaded.MonthlyCallsUsed)
	}
	// 61 seconds bills as 2 minutes.
	if reloaded.MonthlyMinutesUsed != 2 {
		t.Fatalf("minutes used = %d, want 2", reloaded.MonthlyMinutesUsed)
	}

	// Well within the starter allowance, nothing goes to the provider.
	if events := f.reporter.Events(); len(events) != 0 {
		t.Fatalf("expected no provider events, got %d", len(events))
	}
}

func TestReconcileCallIdempotent(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	account := f.seedAccount(t, plan.Starter, 0, 0)
	record := f.seedCompletedCall(t, account.RestaurantID, 120)

	for i := 0; i < 3; i++ {
		if err := f.svc.ReconcileCall(ctx, record.ID); err != nil {
			t.Fatalf("reconcile %d: %v", i, err)
		}
	}

	var reloaded billingdomain.BillingAccount
	if err := f.db.First(&reloaded, "id = ?", account.ID).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if reloaded.MonthlyCallsUsed != 1 || reloaded.MonthlyMinutesUsed != 2 {
		t.Fatalf("counters = (%d, %d), want (1, 2) after repeated reconciliation",
			reloaded.MonthlyCallsUsed, reloaded.MonthlyMinutesUsed)
	}

	var entryCount int64
	if err := f.db.Model(&usagedomain.LedgerEntry{}).Count(&entryCount).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if entryCount != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", entryCount)
	}
}

func TestReconcileReleasesClaimWithoutAccount(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	record := f.seedCompletedCall(t, f.node.Generate(), 30)

	err := f.svc.ReconcileCall(ctx, record.ID)
	if !errors.Is(err, billingdomain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	got, err := f.calls.GetCall(ctx, record.ID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if got.Claim().Claimed() {
		t.Fatal("claim must be released when there is no account to bill")
	}
}

func TestReconcileReleasesClaimWithoutSubscription(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	account := f.seedAccount(t, plan.Starter, 0, 0)
	account.StripeSubscriptionItemID = nil
	if err := f.db.Model(account).Update("stripe_subscription_item_id", nil).Error; err != nil {
		t.Fatalf("clear subscription item: %v", err)
	}
	record := f.seedCompletedCall(t, account.RestaurantID, 61)

	if err := f.svc.ReconcileCall(ctx, record.ID); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	got, err := f.calls.GetCall(ctx, record.ID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if got.Claim().Claimed() {
		t.Fatal("claim must be released when no subscription is configured")
	}

	var entryCount int64
	if err := f.db.Model(&usagedomain.LedgerEntry{}).Count(&entryCount).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if entryCount != 0 {
		t.Fatalf("expected no ledger entries for an unsubscribed account, got %d", entryCount)
	}
	var reloaded billingdomain.BillingAccount
	if err := f.db.First(&reloaded, "id = ?", account.ID).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if reloaded.MonthlyCallsUsed != 0 || reloaded.MonthlyMinutesUsed != 0 {
		t.Fatalf("counters = (%d, %d), want untouched", reloaded.MonthlyCallsUsed, reloaded.MonthlyMinutesUsed)
	}

	// Once the subscription item shows up, the same call bills normally.
	item := "si_" + f.node.Generate().String()
	if err := f.db.Model(account).Update("stripe_subscription_item_id", item).Error; err != nil {
		t.Fatalf("configure subscription item: %v", err)
	}
	if err := f.svc.ReconcileCall(ctx, record.ID); err != nil {
		t.Fatalf("reconcile after subscribing: %v", err)
	}
	got, err = f.calls.GetCall(ctx, record.ID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if !got.Claim().Claimed() {
		t.Fatal("call should be claimed once a subscription exists")
	}
}

func TestReconcileReleasesClaimOnLedgerFailure(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	account := f.seedAccount(t, plan.Starter, 0, 0)
	record := f.seedCompletedCall(t, account.RestaurantID, 30)

	catalog, err := plan.NewCatalog(zap.NewNop())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	broken := NewService(ServiceParam{
		DB:       f.db,
		Log:      zap.NewNop(),
		Clock:    f.clk,
		Calls:    f.calls,
		Ledger:   failingLedger{},
		Catalog:  catalog,
		Reporter: f.reporter,
	})

	err = broken.ReconcileCall(ctx, record.ID)
	if !errors.Is(err, billingdomain.ErrLedgerWrite) {
		t.Fatalf("expected ErrLedgerWrite, got %v", err)
	}

	got, err := f.calls.GetCall(ctx, record.ID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if got.Claim().Claimed() {
		t.Fatal("claim must be released when the ledger write fails")
	}

	// Once the ledger recovers, the same call can be billed.
	if err := f.svc.ReconcileCall(ctx, record.ID); err != nil {
		t.Fatalf("reconcile after recovery: %v", err)
	}
	got, err = f.calls.GetCall(ctx, record.ID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if !got.Claim().Claimed() {
		t.Fatal("call should be claimed after the retry")
	}
}

func TestReconcileKeepsClaimWhenProviderFails(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	// Already past the starter allowance, so the overage pass will try the
	// provider.
	account := f.seedAccount(t, plan.Starter, 200, 0)
	record := f.seedCompletedCall(t, account.RestaurantID, 45)
	f.reporter.err = errors.New("stripe is down")

	if err := f.svc.ReconcileCall(ctx, record.ID); err != nil {
		t.Fatalf("reconcile must not fail on a provider error: %v", err)
	}

	got, err := f.calls.GetCall(ctx, record.ID)
	if err != nil {
		t.Fatalf("get call: %v", err)
	}
	if !got.Claim().Claimed() {
		t.Fatal("claim must be kept when only the provider submission failed")
	}

	unreported, err := f.ledger.GetUnreported(ctx, account.ID, usagedomain.KindCall)
	if err != nil {
		t.Fatalf("get unreported: %v", err)
	}
	if len(unreported) != 1 {
		t.Fatalf("expected 1 unreported call entry, got %d", len(unreported))
	}
}

func TestReportOverageSubmitsBacklogSum(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	account := f.seedAccount(t, plan.Starter, 205, 0)
	f.seedUnreportedEntry(t, account, usagedomain.KindCall, 1)
	f.seedUnreportedEntry(t, account, usagedomain.KindCall, 4)

	if err := f.svc.ReportOverage(ctx, account.ID, usagedomain.KindCall); err != nil {
		t.Fatalf("report overage: %v", err)
	}

	events := f.reporter.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 provider event, got %d", len(events))
	}
	if events[0].Quantity != 5 {
		t.Fatalf("submitted quantity = %d, want the backlog sum 5", events[0].Quantity)
	}
	wantKey := fmt.Sprintf("%s-call-%d", account.ID, f.clk.Now().Unix())
	if events[0].IdempotencyKey != wantKey {
		t.Fatalf("idempotency key = %q, want %q", events[0].IdempotencyKey, wantKey)
	}

	// The entries are marked reported, so a second pass submits nothing.
	if err := f.svc.ReportOverage(ctx, account.ID, usagedomain.KindCall); err != nil {
		t.Fatalf("second report: %v", err)
	}
	if events := f.reporter.Events(); len(events) != 1 {
		t.Fatalf("expected no further provider events, got %d", len(events))
	}
}

func TestReportOverageSkipsWithinAllowance(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	account := f.seedAccount(t, plan.Starter, 20, 0)
	f.seedUnreportedEntry(t, account, usagedomain.KindCall, 1)

	if err := f.svc.ReportOverage(ctx, account.ID, usagedomain.KindCall); err != nil {
		t.Fatalf("report overage: %v", err)
	}
	if events := f.reporter.Events(); len(events) != 0 {
		t.Fatalf("expected no provider events within the allowance, got %d", len(events))
	}
}

func TestReportOverageSkipsWithoutMeteredPrice(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	// A catalog edit can drop the overage price while accounts still carry
	// the plan; accrued excess must then stay local.
	unpriced := NewService(ServiceParam{
		DB:       f.db,
		Log:      zap.NewNop(),
		Clock:    f.clk,
		Calls:    f.calls,
		Ledger:   f.ledger,
		Reporter: f.reporter,
		Catalog: plan.NewStaticCatalog([]plan.Plan{
			{ID: plan.Starter, IncludedCalls: int64Ptr(20)},
		}),
	})

	account := f.seedAccount(t, plan.Starter, 25, 0)
	f.seedUnreportedEntry(t, account, usagedomain.KindCall, 5)

	if err := unpriced.ReportOverage(ctx, account.ID, usagedomain.KindCall); err != nil {
		t.Fatalf("report overage: %v", err)
	}
	if events := f.reporter.Events(); len(events) != 0 {
		t.Fatalf("a plan without a metered price must not submit, got %d events", len(events))
	}
	unreported, err := f.ledger.GetUnreported(ctx, account.ID, usagedomain.KindCall)
	if err != nil {
		t.Fatalf("get unreported: %v", err)
	}
	if len(unreported) != 1 {
		t.Fatalf("expected the entry to stay unreported, got %d", len(unreported))
	}
}

func TestReportOverageNeverFiresForUnlimitedPlan(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	account := f.seedAccount(t, plan.Unlimited, 100000, 500000)
	f.seedUnreportedEntry(t, account, usagedomain.KindCall, 1)
	f.seedUnreportedEntry(t, account, usagedomain.KindMinute, 90)

	for _, kind := range []usagedomain.Kind{usagedomain.KindCall, usagedomain.KindMinute} {
		if err := f.svc.ReportOverage(ctx, account.ID, kind); err != nil {
			t.Fatalf("report %s: %v", kind, err)
		}
	}
	if events := f.reporter.Events(); len(events) != 0 {
		t.Fatalf("unlimited plan must never report overage, got %d events", len(events))
	}
}

func TestResetBillingPeriodViaService(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	account := f.seedAccount(t, plan.Standard, 40, 900)

	newStart := f.clk.Now()
	newEnd := newStart.AddDate(0, 1, 0)
	if err := f.svc.ResetBillingPeriod(ctx, account.ID, newStart, newEnd); err != nil {
		t.Fatalf("reset: %v", err)
	}

	var reloaded billingdomain.BillingAccount
	if err := f.db.First(&reloaded, "id = ?", account.ID).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if reloaded.MonthlyCallsUsed != 0 || reloaded.MonthlyMinutesUsed != 0 {
		t.Fatalf("counters = (%d, %d), want zeroed", reloaded.MonthlyCallsUsed, reloaded.MonthlyMinutesUsed)
	}

	if err := f.svc.ResetBillingPeriod(ctx, f.node.Generate(), newStart, newEnd); !errors.Is(err, billingdomain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound for unknown account, got %v", err)
	}
}
