package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/promptability/Website-sub002/pkg/enums"
)

// Subscription persists Stripe subscription state per user. PlanTier and
// BillingCycle are empty when the price is not in the catalog.
type Subscription struct {
	ID                   uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	UserID               string                   `gorm:"column:user_id;not null;index"`
	StripeSubscriptionID string                   `gorm:"column:stripe_subscription_id;not null;uniqueIndex"`
	StripeCustomerID     string                   `gorm:"column:stripe_customer_id;not null;default:''"`
	PriceID              string                   `gorm:"column:price_id;not null"`
	Status               enums.SubscriptionStatus `gorm:"column:status;not null"`
	PlanTier             enums.PlanTier           `gorm:"column:plan_tier"`
	BillingCycle         enums.BillingCycle       `gorm:"column:billing_cycle"`
	Quantity             int64                    `gorm:"column:quantity;not null;default:1"`
	CurrentPeriodStart   *time.Time               `gorm:"column:current_period_start"`
	CurrentPeriodEnd     *time.Time               `gorm:"column:current_period_end"`
	CancelAtPeriodEnd    bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CanceledAt           *time.Time               `gorm:"column:canceled_at"`
	LastEventAt          *time.Time               `gorm:"column:last_event_at"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
