package billing

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/promptability/Website-sub002/internal/repo"
	"github.com/promptability/Website-sub002/pkg/db/models"
	"github.com/promptability/Website-sub002/pkg/enums"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxErrorLength caps the failure text stored on a webhook event.
const maxErrorLength = 2000

// Repository handles billing persistence: subscriptions, payments and the
// webhook dedup ledger. Lookups return (nil, nil) when no row matches.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateSubscription(ctx context.Context, subscription *models.Subscription) error
	UpdateSubscription(ctx context.Context, subscription *models.Subscription) error
	FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	ListSubscriptionsByUser(ctx context.Context, userID string) ([]models.Subscription, error)
	HasOtherActiveSubscription(ctx context.Context, userID, excludeStripeSubscriptionID string) (bool, error)
	InsertPaymentIfAbsent(ctx context.Context, payment *models.Payment) (bool, error)
	ListPaymentsByUser(ctx context.Context, userID string) ([]models.Payment, error)
	ClaimWebhookEvent(ctx context.Context, stripeEventID, eventType string) (*models.WebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkWebhookFailed(ctx context.Context, id uuid.UUID, message string) error
	FindWebhookEvent(ctx context.Context, stripeEventID string) (*models.WebhookEvent, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

func (r *repository) CreateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.DB(ctx).Create(subscription).Error
}

func (r *repository) UpdateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.DB(ctx).Save(subscription).Error
}

func (r *repository) FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	if stripeSubscriptionID == "" {
		return nil, nil
	}
	var sub models.Subscription
	if err := r.DB(ctx).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) ListSubscriptionsByUser(ctx context.Context, userID string) ([]models.Subscription, error) {
	var subs []models.Subscription
	if err := r.DB(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// HasOtherActiveSubscription reports whether the user keeps an active
// subscription besides the excluded one.
func (r *repository) HasOtherActiveSubscription(ctx context.Context, userID, excludeStripeSubscriptionID string) (bool, error) {
	var count int64
	if err := r.DB(ctx).
		Model(&models.Subscription{}).
		Where("user_id = ? AND status = ? AND stripe_subscription_id <> ?", userID, enums.SubscriptionStatusActive, excludeStripeSubscriptionID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// InsertPaymentIfAbsent appends the payment unless its provider id was
// already recorded, reporting whether a row was written.
func (r *repository) InsertPaymentIfAbsent(ctx context.Context, payment *models.Payment) (bool, error) {
	res := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stripe_payment_id"}},
			DoNothing: true,
		}).
		Create(payment)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListPaymentsByUser(ctx context.Context, userID string) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.DB(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// ClaimWebhookEvent records receipt of an event. The unique index on
// stripe_event_id makes the insert the dedup point: concurrent deliveries
// converge on one row. A returned row with Processed=false is the caller's
// to handle; a redelivery of an unprocessed event bumps Attempts.
func (r *repository) ClaimWebhookEvent(ctx context.Context, stripeEventID, eventType string) (*models.WebhookEvent, error) {
	event := &models.WebhookEvent{
		StripeEventID: stripeEventID,
		Type:          eventType,
		Attempts:      1,
	}
	res := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stripe_event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 1 {
		return event, nil
	}

	if err := r.DB(ctx).
		Model(&models.WebhookEvent{}).
		Where("stripe_event_id = ? AND processed = ?", stripeEventID, false).
		UpdateColumns(map[string]any{
			"attempts":   gorm.Expr("attempts + ?", 1),
			"updated_at": time.Now().UTC(),
		}).Error; err != nil {
		return nil, err
	}

	existing, err := r.FindWebhookEvent(ctx, stripeEventID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return existing, nil
}

// MarkWebhookProcessed flips the event to processed. It reports false when
// another delivery already did, so the caller can roll its work back.
func (r *repository) MarkWebhookProcessed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.DB(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ? AND processed = ?", id, false).
		UpdateColumns(map[string]any{
			"processed":    true,
			"processed_at": at,
			"error":        nil,
			"updated_at":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkWebhookFailed stores the failure text and leaves the event unprocessed.
func (r *repository) MarkWebhookFailed(ctx context.Context, id uuid.UUID, message string) error {
	return r.DB(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ? AND processed = ?", id, false).
		UpdateColumns(map[string]any{
			"error":      truncateText(message, maxErrorLength),
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repository) FindWebhookEvent(ctx context.Context, stripeEventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.DB(ctx).
		Where("stripe_event_id = ?", stripeEventID).
		First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// truncateText cuts s to at most limit bytes without splitting a rune.
func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
