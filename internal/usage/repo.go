package usage

import (
	"context"
	"errors"
	"time"

	"github.com/promptability/Website-sub002/internal/repo"
	"github.com/promptability/Website-sub002/pkg/db/models"
	"github.com/promptability/Website-sub002/pkg/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists usage ledgers and the usage log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByUserID(ctx context.Context, userID string) (*models.UsageLedger, error)
	InsertIfAbsent(ctx context.Context, ledger *models.UsageLedger) (bool, error)
	CompareAndSwap(ctx context.Context, userID string, expectedVersion int64, updates map[string]any) (bool, error)
	Increment(ctx context.Context, userID string, at time.Time) (bool, error)
	CreateLog(ctx context.Context, entry *models.UsageLog) error
	ListLogs(ctx context.Context, userID string, params pagination.Params) ([]models.UsageLog, string, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a usage repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) FindByUserID(ctx context.Context, userID string) (*models.UsageLedger, error) {
	var ledger models.UsageLedger
	if err := r.DB(ctx).
		Where("user_id = ?", userID).
		First(&ledger).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ledger, nil
}

// InsertIfAbsent creates the ledger unless one already exists for the user,
// reporting whether this call created it.
func (r *repository) InsertIfAbsent(ctx context.Context, ledger *models.UsageLedger) (bool, error) {
	res := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(ledger)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CompareAndSwap applies updates only while the row still carries
// expectedVersion, bumping the version in the same statement.
func (r *repository) CompareAndSwap(ctx context.Context, userID string, expectedVersion int64, updates map[string]any) (bool, error) {
	payload := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		payload[k] = v
	}
	payload["version"] = expectedVersion + 1
	if _, ok := payload["updated_at"]; !ok {
		payload["updated_at"] = time.Now().UTC()
	}
	res := r.DB(ctx).
		Model(&models.UsageLedger{}).
		Where("user_id = ? AND version = ?", userID, expectedVersion).
		UpdateColumns(payload)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Increment bumps every counter with a single server-side statement.
func (r *repository) Increment(ctx context.Context, userID string, at time.Time) (bool, error) {
	res := r.DB(ctx).
		Model(&models.UsageLedger{}).
		Where("user_id = ?", userID).
		UpdateColumns(map[string]any{
			"daily_usage":    gorm.Expr("daily_usage + ?", 1),
			"monthly_usage":  gorm.Expr("monthly_usage + ?", 1),
			"lifetime_usage": gorm.Expr("lifetime_usage + ?", 1),
			"updated_at":     at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateLog(ctx context.Context, entry *models.UsageLog) error {
	return r.DB(ctx).Create(entry).Error
}

// ListLogs pages through a user's usage log, newest first. The returned
// cursor is empty on the last page.
func (r *repository) ListLogs(ctx context.Context, userID string, params pagination.Params) ([]models.UsageLog, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	query := r.DB(ctx).Where("user_id = ?", userID)
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var logs []models.UsageLog
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&logs).Error; err != nil {
		return nil, "", err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	if len(logs) <= limit {
		return logs, "", nil
	}
	logs = logs[:limit]
	last := logs[limit-1]
	return logs, pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}), nil
}
