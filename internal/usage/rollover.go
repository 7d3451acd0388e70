package usage

import (
	"time"

	"github.com/promptability/Website-sub002/pkg/db/models"
	"github.com/promptability/Website-sub002/pkg/enums"
)

// nextPeriodEnd returns the end of a monthly window opened at start.
func nextPeriodEnd(start time.Time) time.Time {
	return start.AddDate(0, 1, 0)
}

// sameDay compares calendar days in the reference location.
func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// rollover computes the lazy resets due at now. It returns the ledger as it
// should look afterwards and the column updates needed to get there; counters
// that are not reset are never written so concurrent increments survive.
func rollover(current models.UsageLedger, now time.Time, loc *time.Location) (models.UsageLedger, map[string]any) {
	next := current
	updates := map[string]any{}

	if !sameDay(now, current.LastResetDate, loc) {
		next.DailyUsage = 0
		next.LastResetDate = now
		updates["daily_usage"] = int64(0)
		updates["last_reset_date"] = now
	}

	if now.After(current.PeriodEnd) {
		next.MonthlyUsage = 0
		next.DailyUsage = 0
		next.PeriodStart = now
		next.PeriodEnd = nextPeriodEnd(now)
		updates["monthly_usage"] = int64(0)
		updates["daily_usage"] = int64(0)
		updates["period_start"] = next.PeriodStart
		updates["period_end"] = next.PeriodEnd
	}

	if current.PlanExpiresAt != nil && now.After(*current.PlanExpiresAt) {
		next.PlanTier = enums.PlanTierFree
		next.PlanExpiresAt = nil
		updates["plan_tier"] = enums.PlanTierFree
		updates["plan_expires_at"] = nil
	}

	return next, updates
}

func newLedger(userID string, plan enums.PlanTier, now time.Time) *models.UsageLedger {
	return &models.UsageLedger{
		UserID:        userID,
		PlanTier:      plan,
		PeriodStart:   now,
		PeriodEnd:     nextPeriodEnd(now),
		LastResetDate: now,
	}
}
