// Package metrics exposes prometheus instrumentation for the billing
// reconciler and reset sweepers.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type BillingMetrics struct {
	ClaimsWon         prometheus.Counter
	ClaimsLost        prometheus.Counter
	LedgerEntries     *prometheus.CounterVec
	OverageReports    *prometheus.CounterVec
	UnreportedBacklog *prometheus.GaugeVec
}

type SweeperMetrics struct {
	Resets *prometheus.CounterVec
	Skips  *prometheus.CounterVec
	Errors *prometheus.CounterVec
}

var (
	billingOnce sync.Once
	billing     *BillingMetrics

	sweeperOnce sync.Once
	sweeper     *SweeperMetrics
)

const (
	OverageReportResultSubmitted = "submitted"
	OverageReportResultFailed    = "failed"
	OverageReportResultSkipped   = "skipped"
)

func Billing() *BillingMetrics {
	billingOnce.Do(func() {
		billing = &BillingMetrics{
			ClaimsWon: promauto.NewCounter(prometheus.CounterOpts{
				Name: "dineline_billing_claims_won_total",
				Help: "Usage claims won by the reconciler.",
			}),
			ClaimsLost: promauto.NewCounter(prometheus.CounterOpts{
				Name: "dineline_billing_claims_lost_total",
				Help: "Usage claims lost to a concurrent reconciliation.",
			}),
			LedgerEntries: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "dineline_billing_ledger_entries_total",
				Help: "Usage ledger entries appended.",
			}, []string{"kind"}),
			OverageReports: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "dineline_billing_overage_reports_total",
				Help: "Metered overage submissions to the billing provider.",
			}, []string{"result"}),
			UnreportedBacklog: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "dineline_billing_unreported_backlog",
				Help: "Unreported ledger entries observed on the last reporting pass.",
			}, []string{"kind"}),
		}
	})
	return billing
}

func Sweeper() *SweeperMetrics {
	sweeperOnce.Do(func() {
		sweeper = &SweeperMetrics{
			Resets: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "dineline_sweeper_resets_total",
				Help: "Rows reset to defaults by a sweeper pass.",
			}, []string{"sweeper"}),
			Skips: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "dineline_sweeper_skips_total",
				Help: "Rows skipped because a concurrent edit changed them first.",
			}, []string{"sweeper"}),
			Errors: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "dineline_sweeper_errors_total",
				Help: "Sweeper pass failures.",
			}, []string{"sweeper"}),
		}
	})
	return sweeper
}
