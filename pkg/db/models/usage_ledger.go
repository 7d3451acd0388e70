package models

import (
	"time"

	"github.com/promptability/Website-sub002/pkg/enums"
)

// UsageLedger holds the per-user metered counters and the current monthly window.
type UsageLedger struct {
	UserID        string         `gorm:"column:user_id;primaryKey"`
	PlanTier      enums.PlanTier `gorm:"column:plan_tier;not null;default:'free'"`
	DailyUsage    int64          `gorm:"column:daily_usage;not null;default:0"`
	MonthlyUsage  int64          `gorm:"column:monthly_usage;not null;default:0"`
	LifetimeUsage int64          `gorm:"column:lifetime_usage;not null;default:0"`
	PeriodStart   time.Time      `gorm:"column:period_start;not null"`
	PeriodEnd     time.Time      `gorm:"column:period_end;not null"`
	LastResetDate time.Time      `gorm:"column:last_reset_date;not null"`
	PlanExpiresAt *time.Time     `gorm:"column:plan_expires_at"`
	Version       int64          `gorm:"column:version;not null;default:0"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
