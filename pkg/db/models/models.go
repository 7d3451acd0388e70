package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// All lists every persisted model, used by schema tooling and tests.
func All() []any {
	return []any{
		&User{},
		&UsageLedger{},
		&UsageLog{},
		&Subscription{},
		&Payment{},
		&WebhookEvent{},
	}
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// BeforeCreate hooks assign ids client-side so rows are portable across dialects.

func (l *UsageLog) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

func (s *Subscription) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

func (p *Payment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

func (e *WebhookEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
