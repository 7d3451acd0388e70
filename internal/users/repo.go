package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/promptability/Website-sub002/internal/repo"
	"github.com/promptability/Website-sub002/pkg/db/models"
	"gorm.io/gorm"
)

// Repository exposes user-related persistence operations. Lookups return
// (nil, nil) when no row matches.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, firstName, lastName string) error
	SetStripeCustomerID(ctx context.Context, id, customerID string) error
}

type repository struct {
	repo.Base
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{Base: repo.NewBase(tx)}
}

// Create inserts a new user. Email is stored lower-cased.
func (r *repository) Create(ctx context.Context, user *models.User) error {
	if user.Email != nil {
		normalized := NormalizeEmail(*user.Email)
		if normalized == "" {
			user.Email = nil
		} else {
			user.Email = &normalized
		}
	}
	return r.DB(ctx).Create(user).Error
}

// FindByID loads a user by their identity id.
func (r *repository) FindByID(ctx context.Context, id string) (*models.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, nil
	}
	return r.first(ctx, "id = ?", id)
}

// FindByEmail retrieves the user matching the provided email.
func (r *repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return nil, nil
	}
	return r.first(ctx, "email = ?", normalized)
}

// FindByStripeCustomerID retrieves the user bound to a billing customer.
func (r *repository) FindByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, nil
	}
	return r.first(ctx, "stripe_customer_id = ?", customerID)
}

// UpdateProfile overwrites the name fields.
func (r *repository) UpdateProfile(ctx context.Context, id string, firstName, lastName string) error {
	return r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"first_name": firstName,
			"last_name":  lastName,
			"updated_at": time.Now().UTC(),
		}).Error
}

// SetStripeCustomerID binds the user to a billing customer.
func (r *repository) SetStripeCustomerID(ctx context.Context, id, customerID string) error {
	return r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"stripe_customer_id": customerID,
			"updated_at":         time.Now().UTC(),
		}).Error
}

func (r *repository) first(ctx context.Context, query string, args ...any) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).Where(query, args...).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SplitName breaks a full display name into first and last parts.
func SplitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
