package billing

import (
	"net/http"

	"github.com/promptability/Website-sub002/api/responses"
	"github.com/promptability/Website-sub002/api/validators"
	checkoutsvc "github.com/promptability/Website-sub002/internal/checkout"
	pkgerrors "github.com/promptability/Website-sub002/pkg/errors"
	"github.com/promptability/Website-sub002/pkg/logger"
)

type checkoutSessionRequest struct {
	PriceID      string `json:"priceId" validate:"required_without=PlanType"`
	PlanType     string `json:"planType"`
	BillingCycle string `json:"billingCycle"`
	Quantity     int64  `json:"quantity" validate:"gte=0"`
	UserID       string `json:"userId" validate:"max=128"`
	Email        string `json:"email" validate:"omitempty,email"`
}

type checkoutSessionResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type portalSessionRequest struct {
	UserID string `json:"userId" validate:"required_without=Email,max=128"`
	Email  string `json:"email" validate:"omitempty,email"`
}

type portalSessionResponse struct {
	URL string `json:"url"`
}

// CheckoutSession issues a hosted checkout session for a plan purchase.
func CheckoutSession(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutSessionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		session, err := svc.CreateCheckoutSession(ctx, checkoutsvc.CheckoutInput{
			PriceID:      payload.PriceID,
			PlanType:     payload.PlanType,
			BillingCycle: payload.BillingCycle,
			Quantity:     payload.Quantity,
			UserID:       payload.UserID,
			Email:        payload.Email,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteJSON(w, http.StatusOK, checkoutSessionResponse{SessionID: session.ID, URL: session.URL})
	}
}

// PortalSession issues a billing portal session for an existing customer.
func PortalSession(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload portalSessionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		url, err := svc.CreatePortalSession(ctx, checkoutsvc.PortalInput{UserID: payload.UserID, Email: payload.Email})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteJSON(w, http.StatusOK, portalSessionResponse{URL: url})
	}
}
