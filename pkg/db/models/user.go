package models

import "time"

// User is the thin identity/profile record billing and usage rows hang off.
// ID is the opaque identity-provider uid.
type User struct {
	ID               string    `gorm:"column:id;primaryKey"`
	Email            *string   `gorm:"column:email;uniqueIndex"`
	FirstName        string    `gorm:"column:first_name;not null;default:''"`
	LastName         string    `gorm:"column:last_name;not null;default:''"`
	StripeCustomerID *string   `gorm:"column:stripe_customer_id;uniqueIndex"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
