package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/promptability/Website-sub002/pkg/enums"
)

// UsageLog is the append-only record of metered actions.
type UsageLog struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID    string            `gorm:"column:user_id;not null;index"`
	Action    enums.UsageAction `gorm:"column:action;not null"`
	Metadata  string            `gorm:"column:metadata;type:jsonb;not null;default:'{}'"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}
