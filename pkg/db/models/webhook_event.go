package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is the dedup ledger entry for a Stripe event delivery.
type WebhookEvent struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	StripeEventID string     `gorm:"column:stripe_event_id;not null;uniqueIndex"`
	Type          string     `gorm:"column:type;not null"`
	Processed     bool       `gorm:"column:processed;not null;default:false"`
	Error         *string    `gorm:"column:error"`
	Attempts      int        `gorm:"column:attempts;not null;default:1"`
	ProcessedAt   *time.Time `gorm:"column:processed_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
