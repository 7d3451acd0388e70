package checkout

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/promptability/Website-sub002/internal/plans"
	"github.com/promptability/Website-sub002/internal/users"
	"github.com/promptability/Website-sub002/pkg/config"
	"github.com/promptability/Website-sub002/pkg/db/models"
	"github.com/promptability/Website-sub002/pkg/enums"
	pkgerrors "github.com/promptability/Website-sub002/pkg/errors"
	"github.com/promptability/Website-sub002/pkg/logger"
	"github.com/stripe/stripe-go/v84"
)

// Metadata keys attached to sessions and the resulting subscriptions.
const (
	MetadataUserID       = "user_id"
	MetadataPlanType     = "plan_type"
	MetadataBillingCycle = "billing_cycle"
	MetadataQuantity     = "quantity"
)

type stripeClient interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, params *stripe.BillingPortalSessionCreateParams) (*stripe.BillingPortalSession, error)
}

// Service issues provider-hosted checkout and billing portal sessions.
type Service interface {
	CreateCheckoutSession(ctx context.Context, input CheckoutInput) (*Session, error)
	CreatePortalSession(ctx context.Context, input PortalInput) (string, error)
}

// CheckoutInput selects a price either directly or by plan and cycle.
type CheckoutInput struct {
	PriceID      string
	PlanType     string
	BillingCycle string
	Quantity     int64
	UserID       string
	Email        string
}

// PortalInput identifies the user by id or email.
type PortalInput struct {
	UserID string
	Email  string
}

// Session is an issued checkout session.
type Session struct {
	ID  string
	URL string
}

// ServiceParams wires the issuer.
type ServiceParams struct {
	Stripe  stripeClient
	Catalog *plans.Catalog
	Users   users.Repository
	URLs    config.StripeConfig
	Logger  *logger.Logger
}

type service struct {
	stripe  stripeClient
	catalog *plans.Catalog
	users   users.Repository
	urls    config.StripeConfig
	logg    *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Stripe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan catalog required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		stripe:  params.Stripe,
		catalog: params.Catalog,
		users:   params.Users,
		urls:    params.URLs,
		logg:    logg,
	}, nil
}

func (s *service) CreateCheckoutSession(ctx context.Context, input CheckoutInput) (*Session, error) {
	plan, cycle, priceID, err := s.resolvePrice(input)
	if err != nil {
		return nil, err
	}
	tier, _ := s.catalog.Lookup(plan)
	quantity, err := seatQuantity(tier, input.Quantity)
	if err != nil {
		return nil, err
	}

	userID := strings.TrimSpace(input.UserID)
	email := users.NormalizeEmail(input.Email)
	var user *models.User
	if userID != "" {
		if user, err = s.users.FindByID(ctx, userID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}
	}

	metadata := map[string]string{
		MetadataPlanType:     plan.String(),
		MetadataBillingCycle: cycle.String(),
		MetadataQuantity:     strconv.FormatInt(quantity, 10),
	}
	if userID != "" {
		metadata[MetadataUserID] = userID
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(s.urls.SuccessURL),
		CancelURL:  stripe.String(s.urls.CancelURL),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{{
			Price:    stripe.String(priceID),
			Quantity: stripe.Int64(quantity),
		}},
		AllowPromotionCodes: stripe.Bool(true),
		SubscriptionData: &stripe.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: copyMetadata(metadata),
		},
	}
	params.Metadata = metadata
	if userID != "" {
		params.ClientReferenceID = stripe.String(userID)
	}
	switch {
	case user != nil && user.StripeCustomerID != nil && *user.StripeCustomerID != "":
		params.Customer = stripe.String(*user.StripeCustomerID)
	case email != "":
		params.CustomerEmail = stripe.String(email)
	case user != nil && user.Email != nil:
		params.CustomerEmail = stripe.String(*user.Email)
	}

	session, err := s.stripe.CreateCheckoutSession(ctx, params)
	if err != nil {
		s.logg.Error(s.logg.WithUserID(ctx, userID), "checkout.session_create_failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "create checkout session")
	}
	return &Session{ID: session.ID, URL: session.URL}, nil
}

func (s *service) CreatePortalSession(ctx context.Context, input PortalInput) (string, error) {
	userID := strings.TrimSpace(input.UserID)
	email := users.NormalizeEmail(input.Email)
	if userID == "" && email == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "userId or email is required")
	}

	var user *models.User
	var err error
	if userID != "" {
		user, err = s.users.FindByID(ctx, userID)
	} else {
		user, err = s.users.FindByEmail(ctx, email)
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user == nil || user.StripeCustomerID == nil || *user.StripeCustomerID == "" {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "no billing customer for user")
	}

	session, err := s.stripe.CreatePortalSession(ctx, &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(*user.StripeCustomerID),
		ReturnURL: stripe.String(s.urls.ReturnURL),
	})
	if err != nil {
		s.logg.Error(s.logg.WithUserID(ctx, user.ID), "checkout.portal_create_failed", err)
		return "", pkgerrors.Wrap(pkgerrors.CodeExternalService, err, "create portal session")
	}
	return session.URL, nil
}

// resolvePrice maps the input to a catalog price. An explicit price id wins.
func (s *service) resolvePrice(input CheckoutInput) (enums.PlanTier, enums.BillingCycle, string, error) {
	if priceID := strings.TrimSpace(input.PriceID); priceID != "" {
		plan, cycle, ok := s.catalog.PlanForExternalPriceID(priceID)
		if !ok {
			return "", "", "", pkgerrors.New(pkgerrors.CodeValidation, "unknown price id")
		}
		return plan, cycle, priceID, nil
	}

	if strings.TrimSpace(input.PlanType) == "" {
		return "", "", "", pkgerrors.New(pkgerrors.CodeValidation, "priceId or planType is required")
	}
	plan, err := s.catalog.ParsePlan(input.PlanType)
	if err != nil {
		return "", "", "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown plan type")
	}
	cycle := enums.BillingCycleMonthly
	if strings.TrimSpace(input.BillingCycle) != "" {
		if cycle, err = enums.ParseBillingCycle(input.BillingCycle); err != nil {
			return "", "", "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown billing cycle")
		}
	}
	priceID, ok := s.catalog.PriceIDFor(plan, cycle)
	if !ok {
		return "", "", "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("plan %s has no %s price", plan, cycle))
	}
	return plan, cycle, priceID, nil
}

// seatQuantity applies the seat rules: seat-based tiers default to their
// minimum and must stay within bounds, every other tier is a single unit.
func seatQuantity(tier plans.Tier, requested int64) (int64, error) {
	if !tier.SeatBased() {
		return 1, nil
	}
	if requested == 0 {
		return tier.MinSeats, nil
	}
	if requested < tier.MinSeats || requested > tier.MaxSeats {
		return 0, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("quantity must be between %d and %d seats", tier.MinSeats, tier.MaxSeats))
	}
	return requested, nil
}

func copyMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
