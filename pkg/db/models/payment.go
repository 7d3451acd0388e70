package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/promptability/Website-sub002/pkg/enums"
)

// Payment is an append-only record of a settled or failed invoice charge.
// AmountCents is in the currency's minor unit.
type Payment struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	UserID          string              `gorm:"column:user_id;not null;index"`
	StripePaymentID string              `gorm:"column:stripe_payment_id;not null;uniqueIndex"`
	AmountCents     int64               `gorm:"column:amount_cents;not null"`
	Currency        string              `gorm:"column:currency;not null"`
	Status          enums.PaymentStatus `gorm:"column:status;not null"`
	Description     string              `gorm:"column:description;not null;default:''"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
}
