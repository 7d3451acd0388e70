package stripewebhook

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/promptability/Website-sub002/internal/billing"
	"github.com/promptability/Website-sub002/internal/notifications"
	"github.com/promptability/Website-sub002/internal/plans"
	"github.com/promptability/Website-sub002/internal/usage"
	"github.com/promptability/Website-sub002/internal/users"
	"github.com/promptability/Website-sub002/pkg/db"
	"github.com/promptability/Website-sub002/pkg/db/dbtest"
	"github.com/promptability/Website-sub002/pkg/db/models"
	"github.com/promptability/Website-sub002/pkg/enums"
	pkgerrors "github.com/promptability/Website-sub002/pkg/errors"
	pkgredis "github.com/promptability/Website-sub002/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"
)

var fixtureNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	conn     *gorm.DB
	billing  billing.Repository
	users    users.Repository
	ledger   *usage.Ledger
	catalog  *plans.Catalog
	notifier *recordingNotifier
	handled  *int64
}

func newFixture(t *testing.T, configure ...func(*ServiceParams)) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	clock := func() time.Time { return fixtureNow }

	catalog, err := plans.New(map[enums.PlanTier]plans.PriceIDs{
		enums.PlanTierStarter: {Monthly: "price_starter_m", Yearly: "price_starter_y"},
		enums.PlanTierPro:     {Monthly: "price_pro_m", Yearly: "price_pro_y"},
	})
	require.NoError(t, err)

	ledger, err := usage.NewLedger(usage.LedgerParams{
		Repo:              usage.NewRepository(conn),
		TransactionRunner: db.NewWithConn(conn),
		Clock:             clock,
	})
	require.NoError(t, err)

	var handled int64
	billingRepo := billing.NewRepository(conn)
	userRepo := users.NewRepository(conn)
	notifier := &recordingNotifier{}

	params := ServiceParams{
		BillingRepo:       countingBilling{Repository: billingRepo, calls: &handled},
		UserRepo:          userRepo,
		Ledger:            ledger,
		Catalog:           catalog,
		TransactionRunner: db.NewWithConn(conn),
		Notifier:          notifier,
		Clock:             clock,
	}
	for _, fn := range configure {
		fn(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)

	return &fixture{
		svc:      svc,
		conn:     conn,
		billing:  billingRepo,
		users:    userRepo,
		ledger:   ledger,
		catalog:  catalog,
		notifier: notifier,
		handled:  &handled,
	}
}

func TestProcess_SubscriptionCreatedActiveUpgradesPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before, err := f.ledger.GetOrCreate(ctx, "uid-1")
	require.NoError(t, err)
	require.Equal(t, enums.PlanTierFree, before.PlanTier)

	outcome, err := f.svc.Process(ctx, subscriptionEvent(t, "evt_1", stripe.EventTypeCustomerSubscriptionCreated, "sub_1", "active", "price_pro_m", fixtureNow.AddDate(0, 1, 0)))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	after, err := f.ledger.GetOrCreate(ctx, "uid-1")
	require.NoError(t, err)
	assert.Equal(t, enums.PlanTierPro, after.PlanTier)
	assert.Equal(t, int64(5000), f.catalog.LimitsFor(after.PlanTier).MonthlyLimit)

	sub, err := f.billing.FindSubscriptionByStripeID(ctx, "sub_1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "uid-1", sub.UserID)
	assert.Equal(t, enums.BillingCycleMonthly, sub.BillingCycle)
	assert.Equal(t, "cus_1", sub.StripeCustomerID)

	user, err := f.users.FindByStripeCustomerID(ctx, "cus_1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "uid-1", user.ID)

	record, err := f.billing.FindWebhookEvent(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, record.Processed)
}

func TestProcess_UpdatedBeforeCreatedConverges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Process(ctx, subscriptionEvent(t, "evt_upd", stripe.EventTypeCustomerSubscriptionUpdated, "sub_1", "active", "price_starter_m", fixtureNow.AddDate(0, 1, 0)))
	require.NoError(t, err)
	_, err = f.svc.Process(ctx, subscriptionEvent(t, "evt_new", stripe.EventTypeCustomerSubscriptionCreated, "sub_1", "active", "price_pro_y", fixtureNow.AddDate(1, 0, 0)))
	require.NoError(t, err)

	subs, err := f.billing.ListSubscriptionsByUser(ctx, "uid-1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, enums.PlanTierPro, subs[0].PlanTier)
	assert.Equal(t, enums.BillingCycleYearly, subs[0].BillingCycle)
}

func TestProcess_TrialingDoesNotUpgrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Process(ctx, subscriptionEvent(t, "evt_trial", stripe.EventTypeCustomerSubscriptionCreated, "sub_1", "trialing", "price_pro_m", fixtureNow.AddDate(0, 0, 14)))
	require.NoError(t, err)

	ledger, err := f.ledger.GetOrCreate(ctx, "uid-1")
	require.NoError(t, err)
	assert.Equal(t, enums.PlanTierFree, ledger.PlanTier)
}

func TestProcess_DuplicateDeliveryNeverRunsHandlerTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.users.Create(ctx, &models.User{ID: "uid-1", Email: strPtr("ada@example.com"), StripeCustomerID: strPtr("cus_1")}))

	event := invoiceEvent(t, "evt_inv", stripe.EventTypeInvoicePaymentSucceeded, map[string]any{
		"id":             "in_1",
		"customer":       "cus_1",
		"amount_paid":    1900,
		"currency":       "usd",
		"payment_intent": "pi_1",
		"subscription":   "sub_1",
	})

	first, err := f.svc.Process(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, first)
	handledAfterFirst := atomic.LoadInt64(f.handled)

	second, err := f.svc.Process(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, second)
	assert.Equal(t, handledAfterFirst, atomic.LoadInt64(f.handled), "handler body ran on redelivery")

	payments, err := f.billing.ListPaymentsByUser(ctx, "uid-1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "pi_1", payments[0].StripePaymentID)
	assert.Equal(t, int64(1900), payments[0].AmountCents)

	sent := f.notifier.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, notifications.KindPaymentReceipt, sent[0].Kind)
	assert.Equal(t, "ada@example.com", sent[0].To)
}

func TestProcess_SubscriptionDeletedPolicies(t *testing.T) {
	cases := []struct {
		name       string
		policy     enums.DowngradePolicy
		periodEnd  time.Time
		wantPlan   enums.PlanTier
		wantExpiry bool
	}{
		{name: "period end in future schedules expiry", policy: enums.DowngradePolicyPeriodEnd, periodEnd: fixtureNow.AddDate(0, 0, 20), wantPlan: enums.PlanTierPro, wantExpiry: true},
		{name: "period end already past reverts", policy: enums.DowngradePolicyPeriodEnd, periodEnd: fixtureNow.Add(-time.Hour), wantPlan: enums.PlanTierFree},
		{name: "immediate reverts", policy: enums.DowngradePolicyImmediate, periodEnd: fixtureNow.AddDate(0, 0, 20), wantPlan: enums.PlanTierFree},
		{name: "none keeps plan", policy: enums.DowngradePolicyNone, periodEnd: fixtureNow.AddDate(0, 0, 20), wantPlan: enums.PlanTierPro},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, func(p *ServiceParams) { p.DowngradePolicy = tc.policy })
			ctx := context.Background()
			require.NoError(t, f.users.Create(ctx, &models.User{ID: "uid-1", Email: strPtr("ada@example.com"), StripeCustomerID: strPtr("cus_1")}))

			_, err := f.svc.Process(ctx, subscriptionEvent(t, "evt_c", stripe.EventTypeCustomerSubscriptionCreated, "sub_1", "active", "price_pro_m", tc.periodEnd))
			require.NoError(t, err)
			outcome, err := f.svc.Process(ctx, subscriptionEvent(t, "evt_d", stripe.EventTypeCustomerSubscriptionDeleted, "sub_1", "canceled", "price_pro_m", tc.periodEnd))
			require.NoError(t, err)
			assert.Equal(t, OutcomeProcessed, outcome)

			sub, err := f.billing.FindSubscriptionByStripeID(ctx, "sub_1")
			require.NoError(t, err)
			assert.Equal(t, enums.SubscriptionStatusCanceled, sub.Status)
			assert.NotNil(t, sub.CanceledAt)

			ledger, err := f.ledger.GetOrCreate(ctx, "uid-1")
			require.NoError(t, err)
			assert.Equal(t, tc.wantPlan, ledger.PlanTier)
			assert.Equal(t, tc.wantExpiry, ledger.PlanExpiresAt != nil)

			sent := f.notifier.messages()
			require.NotEmpty(t, sent)
			assert.Equal(t, notifications.KindSubscriptionCanceled, sent[len(sent)-1].Kind)
		})
	}
}

func TestProcess_DeletedKeepsPlanWithOtherActiveSubscription(t *testing.T) {
	f := newFixture(t, func(p *ServiceParams) { p.DowngradePolicy = enums.DowngradePolicyImmediate })
	ctx := context.Background()

	_, err := f.svc.Process(ctx, subscriptionEvent(t, "evt_a", stripe.EventTypeCustomerSubscriptionCreated, "sub_a", "active", "price_pro_m", fixtureNow.AddDate(0, 1, 0)))
	require.NoError(t, err)
	_, err = f.svc.Process(ctx, subscriptionEvent(t, "evt_b", stripe.EventTypeCustomerSubscriptionCreated, "sub_b", "active", "price_pro_y", fixtureNow.AddDate(1, 0, 0)))
	require.NoError(t, err)
	_, err = f.svc.Process(ctx, subscriptionEvent(t, "evt_del", stripe.EventTypeCustomerSubscriptionDeleted, "sub_a", "canceled", "price_pro_m", fixtureNow.AddDate(0, 1, 0)))
	require.NoError(t, err)

	ledger, err := f.ledger.GetOrCreate(ctx, "uid-1")
	require.NoError(t, err)
	assert.Equal(t, enums.PlanTierPro, ledger.PlanTier)
}

func TestProcess_HandlerFailureIsRecordedAndRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	event := rawEvent(t, "evt_bad", stripe.EventTypeCustomerSubscriptionCreated, map[string]any{
		"id":       "sub_1",
		"object":   "subscription",
		"status":   "active",
		"customer": "cus_1",
	})
	outcome, err := f.svc.Process(ctx, event)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeReconciliation))

	record, err := f.billing.FindWebhookEvent(ctx, "evt_bad")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.False(t, record.Processed)
	require.NotNil(t, record.Error)
	assert.Contains(t, *record.Error, "subscription price missing")

	sub, err := f.billing.FindSubscriptionByStripeID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Nil(t, sub, "failed handler must roll back")

	_, err = f.svc.Process(ctx, event)
	require.Error(t, err)
	record, err = f.billing.FindWebhookEvent(ctx, "evt_bad")
	require.NoError(t, err)
	assert.Equal(t, 2, record.Attempts)
}

func TestProcess_StaleUpdateAfterDeleteIsIgnored(t *testing.T) {
	f := newFixture(t, func(p *ServiceParams) { p.DowngradePolicy = enums.DowngradePolicyImmediate })
	ctx := context.Background()
	periodEnd := fixtureNow.AddDate(0, 1, 0)

	_, err := f.svc.Process(ctx, subscriptionEvent(t, "evt_c", stripe.EventTypeCustomerSubscriptionCreated, "sub_1", "active", "price_pro_m", periodEnd))
	require.NoError(t, err)
	_, err = f.svc.Process(ctx, createdAt(subscriptionEvent(t, "evt_d", stripe.EventTypeCustomerSubscriptionDeleted, "sub_1", "canceled", "price_pro_m", periodEnd), fixtureNow.Add(time.Hour)))
	require.NoError(t, err)

	late := []stripe.Event{
		createdAt(subscriptionEvent(t, "evt_u_old", stripe.EventTypeCustomerSubscriptionUpdated, "sub_1", "active", "price_pro_m", periodEnd), fixtureNow.Add(30*time.Minute)),
		createdAt(subscriptionEvent(t, "evt_u_new", stripe.EventTypeCustomerSubscriptionUpdated, "sub_1", "active", "price_pro_y", periodEnd), fixtureNow.Add(2*time.Hour)),
	}
	for _, event := range late {
		outcome, err := f.svc.Process(ctx, event)
		require.NoError(t, err)
		assert.Equal(t, OutcomeProcessed, outcome)
	}

	sub, err := f.billing.FindSubscriptionByStripeID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusCanceled, sub.Status)
	assert.Equal(t, "price_pro_m", sub.PriceID)

	ledger, err := f.ledger.GetOrCreate(ctx, "uid-1")
	require.NoError(t, err)
	assert.Equal(t, enums.PlanTierFree, ledger.PlanTier)
	assert.Nil(t, ledger.PlanExpiresAt)
}

func TestProcess_OlderUpdateLosesToNewer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	periodEnd := fixtureNow.AddDate(1, 0, 0)

	_, err := f.svc.Process(ctx, subscriptionEvent(t, "evt_c", stripe.EventTypeCustomerSubscriptionCreated, "sub_1", "active", "price_starter_m", periodEnd))
	require.NoError(t, err)
	_, err = f.svc.Process(ctx, createdAt(subscriptionEvent(t, "evt_new", stripe.EventTypeCustomerSubscriptionUpdated, "sub_1", "active", "price_pro_y", periodEnd), fixtureNow.Add(2*time.Hour)))
	require.NoError(t, err)
	_, err = f.svc.Process(ctx, createdAt(subscriptionEvent(t, "evt_old", stripe.EventTypeCustomerSubscriptionUpdated, "sub_1", "active", "price_starter_m", periodEnd), fixtureNow.Add(time.Hour)))
	require.NoError(t, err)

	sub, err := f.billing.FindSubscriptionByStripeID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, enums.PlanTierPro, sub.PlanTier)
	assert.Equal(t, "price_pro_y", sub.PriceID)
	require.NotNil(t, sub.LastEventAt)
	assert.True(t, sub.LastEventAt.Equal(fixtureNow.Add(2*time.Hour)))

	ledger, err := f.ledger.GetOrCreate(ctx, "uid-1")
	require.NoError(t, err)
	assert.Equal(t, enums.PlanTierPro, ledger.PlanTier)
}

func TestProcess_UnknownPriceRecordsSubscriptionWithoutPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	event := subscriptionEvent(t, "evt_legacy", stripe.EventTypeCustomerSubscriptionCreated, "sub_1", "active", "price_legacy", fixtureNow.AddDate(0, 1, 0))
	outcome, err := f.svc.Process(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	outcome, err = f.svc.Process(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	sub, err := f.billing.FindSubscriptionByStripeID(ctx, "sub_1")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "price_legacy", sub.PriceID)
	assert.Equal(t, enums.SubscriptionStatusActive, sub.Status)
	assert.Empty(t, sub.PlanTier)
	assert.Empty(t, sub.BillingCycle)

	ledger, err := f.ledger.GetOrCreate(ctx, "uid-1")
	require.NoError(t, err)
	assert.Equal(t, enums.PlanTierFree, ledger.PlanTier)
}

func TestProcess_InFlightDuplicateConflicts(t *testing.T) {
	mr := miniredis.RunT(t)
	client := pkgredis.NewFromClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	guard, err := NewInFlightGuard(client, time.Minute, "stripe_webhook")
	require.NoError(t, err)

	f := newFixture(t, func(p *ServiceParams) { p.Guard = guard })
	ctx := context.Background()

	release, acquired, err := guard.Acquire(ctx, "evt_busy")
	require.NoError(t, err)
	require.True(t, acquired)

	event := subscriptionEvent(t, "evt_busy", stripe.EventTypeCustomerSubscriptionCreated, "sub_1", "active", "price_pro_m", fixtureNow.AddDate(0, 1, 0))
	outcome, err := f.svc.Process(ctx, event)
	assert.Equal(t, OutcomeInFlight, outcome)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))

	record, err := f.billing.FindWebhookEvent(ctx, "evt_busy")
	require.NoError(t, err)
	assert.Nil(t, record)

	release()
	outcome, err = f.svc.Process(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Len(t, mr.Keys(), 0, "lock must be released after processing")
}

func TestProcess_CheckoutCompletedCreatesUserAndWelcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	event := rawEvent(t, "evt_co", stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":                  "cs_1",
		"object":              "checkout.session",
		"customer":            "cus_9",
		"client_reference_id": "uid-9",
		"subscription":        "sub_9",
		"customer_details":    map[string]any{"email": "Grace@Example.com", "name": "Grace Brewster Hopper"},
	})
	outcome, err := f.svc.Process(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	user, err := f.users.FindByStripeCustomerID(ctx, "cus_9")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "uid-9", user.ID)
	assert.Equal(t, "grace@example.com", *user.Email)
	assert.Equal(t, "Grace", user.FirstName)
	assert.Equal(t, "Brewster Hopper", user.LastName)

	sent := f.notifier.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, notifications.KindWelcome, sent[0].Kind)
	assert.Equal(t, "Grace", sent[0].Name)
}

func TestProcess_CheckoutCompletedBindsExistingUserByEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.users.Create(ctx, &models.User{ID: "uid-2", Email: strPtr("ada@example.com")}))

	event := rawEvent(t, "evt_co2", stripe.EventTypeCheckoutSessionCompleted, map[string]any{
		"id":               "cs_2",
		"customer":         "cus_2",
		"customer_details": map[string]any{"email": "ada@example.com"},
	})
	_, err := f.svc.Process(ctx, event)
	require.NoError(t, err)

	user, err := f.users.FindByStripeCustomerID(ctx, "cus_2")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "uid-2", user.ID)
}

func TestProcess_InvoiceFailedMarksPastDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.users.Create(ctx, &models.User{ID: "uid-1", Email: strPtr("ada@example.com"), StripeCustomerID: strPtr("cus_1")}))
	_, err := f.svc.Process(ctx, subscriptionEvent(t, "evt_c", stripe.EventTypeCustomerSubscriptionCreated, "sub_1", "active", "price_pro_m", fixtureNow.AddDate(0, 1, 0)))
	require.NoError(t, err)

	event := invoiceEvent(t, "evt_fail", stripe.EventTypeInvoicePaymentFailed, map[string]any{
		"id":         "in_2",
		"customer":   map[string]any{"id": "cus_1", "object": "customer"},
		"amount_due": 1900,
		"currency":   "usd",
		"parent": map[string]any{
			"subscription_details": map[string]any{"subscription": "sub_1"},
		},
	})
	_, err = f.svc.Process(ctx, event)
	require.NoError(t, err)

	sub, err := f.billing.FindSubscriptionByStripeID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusPastDue, sub.Status)

	sent := f.notifier.messages()
	require.NotEmpty(t, sent)
	assert.Equal(t, notifications.KindPaymentFailed, sent[len(sent)-1].Kind)
	assert.Equal(t, "ada@example.com", sent[len(sent)-1].To)
}

func TestProcess_UnhandledTypeIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	outcome, err := f.svc.Process(ctx, rawEvent(t, "evt_x", "customer.created", map[string]any{"id": "cus_x"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	record, err := f.billing.FindWebhookEvent(ctx, "evt_x")
	require.NoError(t, err)
	assert.True(t, record.Processed)
}

func TestProcess_RequiresEventID(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Process(context.Background(), stripe.Event{Type: stripe.EventTypeInvoicePaymentSucceeded})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestDecodeEvent_InvoiceLayouts(t *testing.T) {
	legacy, err := DecodeEvent(invoiceEvent(t, "evt_1", stripe.EventTypeInvoicePaymentSucceeded, map[string]any{
		"id":             "in_1",
		"customer":       "cus_1",
		"subscription":   "sub_1",
		"payment_intent": map[string]any{"id": "pi_1"},
		"amount_paid":    500,
	}))
	require.NoError(t, err)
	paid, ok := legacy.(InvoicePaid)
	require.True(t, ok)
	assert.Equal(t, "sub_1", paid.SubscriptionID)
	assert.Equal(t, "pi_1", paid.PaymentIntentID)
	assert.Equal(t, "evt_1", paid.Meta().ID)

	nested, err := DecodeEvent(invoiceEvent(t, "evt_2", stripe.EventTypeInvoicePaymentSucceeded, map[string]any{
		"id":       "in_2",
		"customer": map[string]any{"id": "cus_2"},
		"parent":   map[string]any{"subscription_details": map[string]any{"subscription": "sub_2"}},
	}))
	require.NoError(t, err)
	paid = nested.(InvoicePaid)
	assert.Equal(t, "sub_2", paid.SubscriptionID)
	assert.Equal(t, "cus_2", paid.CustomerID)
	assert.Empty(t, paid.PaymentIntentID)

	_, err = DecodeEvent(stripe.Event{ID: "evt_3", Type: stripe.EventTypeInvoicePaymentSucceeded, Data: &stripe.EventData{Raw: json.RawMessage(`{"id":`)}})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeReconciliation))

	other, err := DecodeEvent(stripe.Event{ID: "evt_4", Type: "charge.refunded"})
	require.NoError(t, err)
	_, ok = other.(Unhandled)
	assert.True(t, ok)
}

func subscriptionEvent(t *testing.T, eventID string, eventType stripe.EventType, subID, status, priceID string, periodEnd time.Time) stripe.Event {
	t.Helper()
	return rawEvent(t, eventID, eventType, map[string]any{
		"id":                   subID,
		"object":               "subscription",
		"status":               status,
		"customer":             "cus_1",
		"cancel_at_period_end": false,
		"metadata":             map[string]string{"user_id": "uid-1"},
		"items": map[string]any{
			"object": "list",
			"data": []map[string]any{{
				"id":                   "si_" + subID,
				"price":                map[string]any{"id": priceID},
				"quantity":             1,
				"current_period_start": fixtureNow.Unix(),
				"current_period_end":   periodEnd.Unix(),
			}},
		},
	})
}

func invoiceEvent(t *testing.T, eventID string, eventType stripe.EventType, payload map[string]any) stripe.Event {
	t.Helper()
	payload["object"] = "invoice"
	return rawEvent(t, eventID, eventType, payload)
}

func rawEvent(t *testing.T, eventID string, eventType stripe.EventType, payload map[string]any) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return stripe.Event{
		ID:      eventID,
		Type:    eventType,
		Created: fixtureNow.Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}
}

func createdAt(event stripe.Event, at time.Time) stripe.Event {
	event.Created = at.Unix()
	return event
}

func strPtr(s string) *string { return &s }

// countingBilling counts handler-side repository calls across transactions.
type countingBilling struct {
	billing.Repository
	calls *int64
}

func (c countingBilling) WithTx(tx *gorm.DB) billing.Repository {
	return countingBilling{Repository: c.Repository.WithTx(tx), calls: c.calls}
}

func (c countingBilling) InsertPaymentIfAbsent(ctx context.Context, payment *models.Payment) (bool, error) {
	atomic.AddInt64(c.calls, 1)
	return c.Repository.InsertPaymentIfAbsent(ctx, payment)
}

func (c countingBilling) FindSubscriptionByStripeID(ctx context.Context, id string) (*models.Subscription, error) {
	atomic.AddInt64(c.calls, 1)
	return c.Repository.FindSubscriptionByStripeID(ctx, id)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifications.Message
}

func (r *recordingNotifier) Enqueue(_ context.Context, msg notifications.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return true
}

func (r *recordingNotifier) messages() []notifications.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Message(nil), r.sent...)
}
