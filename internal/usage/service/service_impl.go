package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dineline/dineline/internal/clock"
	usagedomain "github.com/dineline/dineline/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type LedgerParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Ledger struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewLedger(p LedgerParam) usagedomain.Ledger {
	return &Ledger{
		db:    p.DB,
		log:   p.Log.Named("usage.ledger"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (l *Ledger) AppendEntries(ctx context.Context, accountID, restaurantID snowflake.ID, specs []usagedomain.EntrySpec) ([]usagedomain.LedgerEntry, error) {
	if accountID == 0 {
		return nil, usagedomain.ErrInvalidAccount
	}
	if len(specs) == 0 {
		return nil, usagedomain.ErrNoEntries
	}
	for _, spec := range specs {
		if spec.Kind != usagedomain.KindCall && spec.Kind != usagedomain.KindMinute {
			return nil, usagedomain.ErrInvalidKind
		}
		if spec.Quantity <= 0 {
			return nil, usagedomain.ErrInvalidQuantity
		}
	}

	now := l.clock.Now()
	var entries []usagedomain.LedgerEntry

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var periodStart time.Time
		if err := tx.Raw(
			`SELECT period_start FROM billing_accounts WHERE id = ?`,
			accountID,
		).Scan(&periodStart).Error; err != nil {
			return err
		}
		if periodStart.IsZero() {
			return usagedomain.ErrInvalidAccount
		}

		var calls, minutes int64
		for _, spec := range specs {
			entry := usagedomain.LedgerEntry{
				ID:           l.genID.Generate(),
				AccountID:    accountID,
				RestaurantID: restaurantID,
				Kind:         spec.Kind,
				Quantity:     spec.Quantity,
				PeriodStart:  periodStart,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return err
			}
			entries = append(entries, entry)

			switch spec.Kind {
			case usagedomain.KindCall:
				calls += spec.Quantity
			case usagedomain.KindMinute:
				minutes += spec.Quantity
			}
		}

		// Counter increments ride the same row-level atomicity as the
		// entry inserts; no read-then-write.
		result := tx.Exec(
			`UPDATE billing_accounts
			 SET monthly_calls_used = monthly_calls_used + ?,
			     monthly_minutes_used = monthly_minutes_used + ?,
			     updated_at = ?
			 WHERE id = ?`,
			calls,
			minutes,
			now,
			accountID,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return usagedomain.ErrInvalidAccount
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("append usage entries: %w", err)
	}
	return entries, nil
}

func (l *Ledger) GetUnreported(ctx context.Context, accountID snowflake.ID, kind usagedomain.Kind) ([]usagedomain.LedgerEntry, error) {
	var entries []usagedomain.LedgerEntry
	err := l.db.WithContext(ctx).
		Where("account_id = ? AND kind = ? AND reported = ?", accountID, kind, false).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (l *Ledger) MarkReported(ctx context.Context, entryIDs []snowflake.ID, externalID string) error {
	if len(entryIDs) == 0 {
		return nil
	}
	now := l.clock.Now()
	return l.db.WithContext(ctx).Exec(
		`UPDATE usage_ledger_entries
		 SET reported = ?, external_report_id = ?, updated_at = ?
		 WHERE id IN ? AND reported = ?`,
		true,
		externalID,
		now,
		entryIDs,
		false,
	).Error
}

func (l *Ledger) ResetPeriod(ctx context.Context, accountID snowflake.ID, periodStart, periodEnd time.Time) (bool, error) {
	if accountID == 0 {
		return false, usagedomain.ErrInvalidAccount
	}
	now := l.clock.Now()
	result := l.db.WithContext(ctx).Exec(
		`UPDATE billing_accounts
		 SET monthly_calls_used = 0,
		     monthly_minutes_used = 0,
		     period_start = ?,
		     period_end = ?,
		     updated_at = ?
		 WHERE id = ? AND period_start < ?`,
		periodStart,
		periodEnd,
		now,
		accountID,
		periodStart,
	)
	if result.Error != nil {
		return false, result.Error
	}
	reset := result.RowsAffected > 0
	if !reset {
		l.log.Info("billing period reset skipped, already applied",
			zap.String("account_id", accountID.String()),
			zap.Time("period_start", periodStart),
		)
	}
	return reset, nil
}
