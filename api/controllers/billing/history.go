package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/promptability/Website-sub002/api/responses"
	"github.com/promptability/Website-sub002/api/validators"
	"github.com/promptability/Website-sub002/pkg/db/models"
	pkgerrors "github.com/promptability/Website-sub002/pkg/errors"
	"github.com/promptability/Website-sub002/pkg/logger"
)

type historyReader interface {
	ListSubscriptionsByUser(ctx context.Context, userID string) ([]models.Subscription, error)
	ListPaymentsByUser(ctx context.Context, userID string) ([]models.Payment, error)
}

type subscriptionView struct {
	SubscriptionID    string     `json:"subscriptionId"`
	Status            string     `json:"status"`
	PlanType          string     `json:"planType,omitempty"`
	BillingCycle      string     `json:"billingCycle,omitempty"`
	PriceID           string     `json:"priceId"`
	Quantity          int64      `json:"quantity"`
	CurrentPeriodEnd  *time.Time `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancelAtPeriodEnd"`
	CanceledAt        *time.Time `json:"canceledAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

type paymentView struct {
	PaymentID   string    `json:"paymentId"`
	AmountCents int64     `json:"amountCents"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type billingHistoryResponse struct {
	UserID        string             `json:"userId"`
	Subscriptions []subscriptionView `json:"subscriptions"`
	Payments      []paymentView      `json:"payments"`
}

// BillingHistory lists a user's subscriptions and recorded payments,
// newest first.
func BillingHistory(repo historyReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if repo == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing repository unavailable"))
			return
		}

		userID, ok := validators.SanitizeID(chi.URLParam(r, "userId"))
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "userId is required"))
			return
		}

		var (
			subs     []models.Subscription
			payments []models.Payment
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			subs, err = repo.ListSubscriptionsByUser(gctx, userID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
			}
			return nil
		})
		g.Go(func() error {
			var err error
			payments, err = repo.ListPaymentsByUser(gctx, userID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		resp := billingHistoryResponse{
			UserID:        userID,
			Subscriptions: make([]subscriptionView, 0, len(subs)),
			Payments:      make([]paymentView, 0, len(payments)),
		}
		for _, sub := range subs {
			resp.Subscriptions = append(resp.Subscriptions, subscriptionView{
				SubscriptionID:    sub.StripeSubscriptionID,
				Status:            sub.Status.String(),
				PlanType:          sub.PlanTier.String(),
				BillingCycle:      sub.BillingCycle.String(),
				PriceID:           sub.PriceID,
				Quantity:          sub.Quantity,
				CurrentPeriodEnd:  utcPtr(sub.CurrentPeriodEnd),
				CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
				CanceledAt:        utcPtr(sub.CanceledAt),
				CreatedAt:         sub.CreatedAt.UTC(),
			})
		}
		for _, p := range payments {
			resp.Payments = append(resp.Payments, paymentView{
				PaymentID:   p.StripePaymentID,
				AmountCents: p.AmountCents,
				Currency:    p.Currency,
				Status:      p.Status.String(),
				Description: p.Description,
				CreatedAt:   p.CreatedAt.UTC(),
			})
		}
		responses.WriteSuccess(w, resp)
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	at := t.UTC()
	return &at
}
