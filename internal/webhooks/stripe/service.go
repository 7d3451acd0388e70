package stripewebhook

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/promptability/Website-sub002/internal/billing"
	"github.com/promptability/Website-sub002/internal/notifications"
	"github.com/promptability/Website-sub002/internal/plans"
	"github.com/promptability/Website-sub002/internal/subscriptions"
	"github.com/promptability/Website-sub002/internal/usage"
	"github.com/promptability/Website-sub002/internal/users"
	"github.com/promptability/Website-sub002/pkg/db/models"
	"github.com/promptability/Website-sub002/pkg/enums"
	pkgerrors "github.com/promptability/Website-sub002/pkg/errors"
	"github.com/promptability/Website-sub002/pkg/logger"
	"github.com/promptability/Website-sub002/pkg/metrics"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"
)

// Outcomes returned by Process.
const (
	OutcomeProcessed = metrics.OutcomeProcessed
	OutcomeDuplicate = metrics.OutcomeDuplicate
	OutcomeInFlight  = metrics.OutcomeInFlight
	OutcomeFailed    = metrics.OutcomeFailed
)

// errAlreadyProcessed aborts the handler transaction when another delivery
// marked the event first.
var errAlreadyProcessed = errors.New("webhook event already processed")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type notifier interface {
	Enqueue(ctx context.Context, msg notifications.Message) bool
}

// ServiceParams wires the reconciler. Notifier, Guard and Metrics are optional.
type ServiceParams struct {
	BillingRepo       billing.Repository
	UserRepo          users.Repository
	Ledger            *usage.Ledger
	Catalog           *plans.Catalog
	TransactionRunner txRunner
	Notifier          notifier
	Guard             *InFlightGuard
	DowngradePolicy   enums.DowngradePolicy
	Metrics           *metrics.WebhookMetrics
	Logger            *logger.Logger
	Clock             func() time.Time
}

// Service reconciles billing provider events into subscriptions, payments
// and usage ledger plans.
type Service struct {
	billingRepo billing.Repository
	userRepo    users.Repository
	ledger      *usage.Ledger
	catalog     *plans.Catalog
	txRunner    txRunner
	notifier    notifier
	guard       *InFlightGuard
	policy      enums.DowngradePolicy
	metrics     *metrics.WebhookMetrics
	logg        *logger.Logger
	now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.UserRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user repo required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "usage ledger required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan catalog required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	policy := params.DowngradePolicy
	if policy == "" {
		policy = enums.DowngradePolicyPeriodEnd
	}
	if !policy.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "invalid downgrade policy")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		billingRepo: params.BillingRepo,
		userRepo:    params.UserRepo,
		ledger:      params.Ledger,
		catalog:     params.Catalog,
		txRunner:    params.TransactionRunner,
		notifier:    params.Notifier,
		guard:       params.Guard,
		policy:      policy,
		metrics:     params.Metrics,
		logg:        logg,
		now:         clock,
	}, nil
}

// Process applies a verified event exactly once. Duplicates of processed
// events succeed without running a handler. A concurrent duplicate returns a
// conflict error; a handler failure is recorded on the event row, leaves it
// unprocessed for redelivery and returns a reconciliation error.
func (s *Service) Process(ctx context.Context, event stripe.Event) (string, error) {
	start := time.Now()
	eventType := string(event.Type)
	if strings.TrimSpace(event.ID) == "" {
		return OutcomeFailed, pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	ctx = s.logg.WithEventID(ctx, event.ID)
	ctx = s.logg.WithField(ctx, "event_type", eventType)

	outcome, err := s.process(ctx, event)
	s.metrics.Observe(eventType, outcome, time.Since(start))
	return outcome, err
}

func (s *Service) process(ctx context.Context, event stripe.Event) (string, error) {
	if s.guard != nil {
		release, acquired, err := s.guard.Acquire(ctx, event.ID)
		switch {
		case err != nil:
			s.logg.Warn(ctx, "webhook.inflight_guard_unavailable")
		case !acquired:
			s.logg.Info(ctx, "webhook.in_flight")
			return OutcomeInFlight, pkgerrors.New(pkgerrors.CodeConflict, "event is already being processed")
		}
		defer release()
	}

	record, err := s.billingRepo.ClaimWebhookEvent(ctx, event.ID, string(event.Type))
	if err != nil {
		return OutcomeFailed, storageError(err, "record webhook event")
	}
	if record.Processed {
		s.logg.Info(ctx, "webhook.duplicate")
		return OutcomeDuplicate, nil
	}

	var outbox []notifications.Message
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		msgs, err := s.handle(ctx, tx, event)
		if err != nil {
			return err
		}
		marked, err := s.billingRepo.WithTx(tx).MarkWebhookProcessed(ctx, record.ID, s.now().UTC())
		if err != nil {
			return storageError(err, "mark webhook processed")
		}
		if !marked {
			return errAlreadyProcessed
		}
		outbox = msgs
		return nil
	})
	if errors.Is(err, errAlreadyProcessed) {
		s.logg.Info(ctx, "webhook.duplicate")
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return OutcomeFailed, s.fail(ctx, record.ID, err)
	}

	s.dispatch(ctx, outbox)
	s.logg.Info(ctx, "webhook.processed")
	return OutcomeProcessed, nil
}

func (s *Service) fail(ctx context.Context, recordID uuid.UUID, cause error) error {
	if markErr := s.billingRepo.MarkWebhookFailed(ctx, recordID, failureText(cause)); markErr != nil {
		s.logg.Error(ctx, "webhook.record_failure_failed", markErr)
	}
	s.logg.Error(ctx, "webhook.handler_failed", cause)
	if typed := pkgerrors.As(cause); typed != nil && typed.Code() == pkgerrors.CodeDependency {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeReconciliation, cause, "webhook handler failed")
}

func (s *Service) dispatch(ctx context.Context, outbox []notifications.Message) {
	if s.notifier == nil {
		return
	}
	for _, msg := range outbox {
		if strings.TrimSpace(msg.To) == "" {
			s.logg.Debug(s.logg.WithField(ctx, "kind", msg.Kind.String()), "notification.skipped_no_recipient")
			continue
		}
		s.notifier.Enqueue(ctx, msg)
	}
}

// handle runs the typed handler for event inside tx.
func (s *Service) handle(ctx context.Context, tx *gorm.DB, event stripe.Event) ([]notifications.Message, error) {
	decoded, err := DecodeEvent(event)
	if err != nil {
		return nil, err
	}
	h := handlerTx{
		Service: s,
		billing: s.billingRepo.WithTx(tx),
		users:   s.userRepo.WithTx(tx),
		ledger:  s.ledger.WithTx(tx),
	}
	switch ev := decoded.(type) {
	case CheckoutCompleted:
		return h.checkoutCompleted(ctx, ev)
	case SubscriptionChanged:
		return h.subscriptionChanged(ctx, ev)
	case SubscriptionDeleted:
		return h.subscriptionDeleted(ctx, ev)
	case InvoicePaid:
		return h.invoicePaid(ctx, ev)
	case InvoiceFailed:
		return h.invoiceFailed(ctx, ev)
	default:
		s.logg.Info(ctx, "webhook.unhandled_type")
		return nil, nil
	}
}

// handlerTx binds the repositories to the event transaction.
type handlerTx struct {
	*Service
	billing billing.Repository
	users   users.Repository
	ledger  *usage.Ledger
}

func (h handlerTx) checkoutCompleted(ctx context.Context, ev CheckoutCompleted) ([]notifications.Message, error) {
	user, err := h.resolveUser(ctx, ev.CustomerID, ev.Email, ev.ClientReferenceID)
	if err != nil {
		return nil, err
	}
	first, last := users.SplitName(ev.Name)
	if first != "" {
		if err := h.users.UpdateProfile(ctx, user.ID, first, last); err != nil {
			return nil, storageError(err, "update user profile")
		}
	}
	return []notifications.Message{{
		Kind:   notifications.KindWelcome,
		UserID: user.ID,
		To:     firstNonEmpty(ev.Email, deref(user.Email)),
		Name:   firstNonEmpty(first, user.FirstName),
	}}, nil
}

// subscriptionChanged upserts the subscription row. Prices missing from the
// catalog are still recorded, without a plan, and leave the ledger alone.
func (h handlerTx) subscriptionChanged(ctx context.Context, ev SubscriptionChanged) ([]notifications.Message, error) {
	snap := ev.Subscription
	plan, cycle, known := h.catalog.PlanForExternalPriceID(snap.PriceID)
	if !known {
		h.logg.Warn(h.logg.WithField(ctx, "price_id", snap.PriceID), "webhook.unknown_price")
	}

	existing, err := h.billing.FindSubscriptionByStripeID(ctx, snap.SubscriptionID)
	if err != nil {
		return nil, storageError(err, "load subscription")
	}

	var ownerID string
	if existing != nil {
		if h.superseded(ctx, existing, ev.Created) {
			return nil, nil
		}
		ownerID = existing.UserID
		if snap.CustomerID != "" {
			if _, err := h.bindCustomer(ctx, ownerID, snap.CustomerID); err != nil {
				return nil, err
			}
		}
		subscriptions.Apply(existing, snap, plan, cycle)
		stampEvent(existing, ev.Created)
		if err := h.billing.UpdateSubscription(ctx, existing); err != nil {
			return nil, storageError(err, "update subscription")
		}
	} else {
		user, err := h.resolveUser(ctx, snap.CustomerID, "", snap.Metadata["user_id"])
		if err != nil {
			return nil, err
		}
		ownerID = user.ID
		row := subscriptions.Build(ownerID, snap, plan, cycle)
		stampEvent(row, ev.Created)
		if err := h.billing.CreateSubscription(ctx, row); err != nil {
			return nil, storageError(err, "create subscription")
		}
	}

	switch {
	case !known:
	case snap.Status.GrantsEntitlements():
		if err := h.ledger.SetPlan(ctx, ownerID, plan); err != nil {
			return nil, err
		}
		h.logg.Info(h.logg.WithFields(ctx, map[string]any{"user_id": ownerID, "plan": plan.String()}), "webhook.plan_set")
	case snap.Status.Ended():
		// plan changes for ended subscriptions arrive with customer.subscription.deleted
		h.logg.Info(h.logg.WithField(ctx, "status", snap.Status.String()), "webhook.subscription_ended")
	}
	return nil, nil
}

// superseded reports whether an event created at must not touch sub: ended
// subscriptions are final and older events lose to the last applied one.
func (h handlerTx) superseded(ctx context.Context, sub *models.Subscription, at time.Time) bool {
	if sub.Status.Ended() {
		h.logg.Info(h.logg.WithField(ctx, "status", sub.Status.String()), "webhook.subscription_final")
		return true
	}
	if !at.IsZero() && sub.LastEventAt != nil && at.Before(*sub.LastEventAt) {
		h.logg.Info(h.logg.WithField(ctx, "last_event_at", sub.LastEventAt.Format(time.RFC3339)), "webhook.subscription_stale_event")
		return true
	}
	return false
}

func stampEvent(sub *models.Subscription, at time.Time) {
	if at.IsZero() {
		return
	}
	if sub.LastEventAt == nil || at.After(*sub.LastEventAt) {
		at = at.UTC()
		sub.LastEventAt = &at
	}
}

func (h handlerTx) subscriptionDeleted(ctx context.Context, ev SubscriptionDeleted) ([]notifications.Message, error) {
	snap := ev.Subscription
	existing, err := h.billing.FindSubscriptionByStripeID(ctx, snap.SubscriptionID)
	if err != nil {
		return nil, storageError(err, "load subscription")
	}
	if existing == nil {
		h.logg.Info(ctx, "webhook.subscription_unknown")
		return nil, nil
	}

	now := h.now().UTC()
	existing.Status = enums.SubscriptionStatusCanceled
	existing.CanceledAt = snap.CanceledAt
	if existing.CanceledAt == nil {
		existing.CanceledAt = &now
	}
	if snap.CurrentPeriodEnd != nil {
		existing.CurrentPeriodEnd = snap.CurrentPeriodEnd
	}
	stampEvent(existing, ev.Created)
	if err := h.billing.UpdateSubscription(ctx, existing); err != nil {
		return nil, storageError(err, "cancel subscription")
	}

	if err := h.applyDowngrade(ctx, existing, now); err != nil {
		return nil, err
	}

	user, err := h.users.FindByID(ctx, existing.UserID)
	if err != nil {
		return nil, storageError(err, "load user")
	}
	msg := notifications.Message{
		Kind:     notifications.KindSubscriptionCanceled,
		UserID:   existing.UserID,
		PlanTier: existing.PlanTier,
	}
	if user != nil {
		msg.To = deref(user.Email)
		msg.Name = user.FirstName
	}
	return []notifications.Message{msg}, nil
}

// applyDowngrade runs the configured policy for a canceled subscription.
// Users who still hold another active subscription keep their plan.
func (h handlerTx) applyDowngrade(ctx context.Context, sub *models.Subscription, now time.Time) error {
	if h.policy == enums.DowngradePolicyNone {
		return nil
	}
	other, err := h.billing.HasOtherActiveSubscription(ctx, sub.UserID, sub.StripeSubscriptionID)
	if err != nil {
		return storageError(err, "check active subscriptions")
	}
	if other {
		return nil
	}

	ctx = h.logg.WithFields(ctx, map[string]any{"user_id": sub.UserID, "policy": h.policy.String()})
	if h.policy == enums.DowngradePolicyPeriodEnd && sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.After(now) {
		if err := h.ledger.SchedulePlanExpiry(ctx, sub.UserID, *sub.CurrentPeriodEnd); err != nil {
			return err
		}
		h.logg.Info(ctx, "webhook.plan_expiry_scheduled")
		return nil
	}
	if err := h.ledger.RevertToFree(ctx, sub.UserID); err != nil {
		return err
	}
	h.logg.Info(ctx, "webhook.plan_reverted")
	return nil
}

func (h handlerTx) invoicePaid(ctx context.Context, ev InvoicePaid) ([]notifications.Message, error) {
	user, err := h.resolveUser(ctx, ev.CustomerID, ev.CustomerEmail, "")
	if err != nil {
		return nil, err
	}
	paymentID := firstNonEmpty(ev.PaymentIntentID, ev.InvoiceID)
	if paymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeReconciliation, "invoice id missing")
	}
	inserted, err := h.billing.InsertPaymentIfAbsent(ctx, &models.Payment{
		UserID:          user.ID,
		StripePaymentID: paymentID,
		AmountCents:     ev.AmountPaid,
		Currency:        strings.ToLower(ev.Currency),
		Status:          enums.PaymentStatusSucceeded,
		Description:     ev.Description,
	})
	if err != nil {
		return nil, storageError(err, "record payment")
	}
	if !inserted {
		return nil, nil
	}
	return []notifications.Message{{
		Kind:        notifications.KindPaymentReceipt,
		UserID:      user.ID,
		To:          firstNonEmpty(deref(user.Email), ev.CustomerEmail),
		Name:        user.FirstName,
		AmountCents: ev.AmountPaid,
		Currency:    ev.Currency,
		Reference:   ev.InvoiceID,
	}}, nil
}

func (h handlerTx) invoiceFailed(ctx context.Context, ev InvoiceFailed) ([]notifications.Message, error) {
	if ev.SubscriptionID == "" {
		h.logg.Info(ctx, "webhook.invoice_without_subscription")
		return nil, nil
	}
	sub, err := h.billing.FindSubscriptionByStripeID(ctx, ev.SubscriptionID)
	if err != nil {
		return nil, storageError(err, "load subscription")
	}
	if sub == nil {
		h.logg.Info(ctx, "webhook.subscription_unknown")
		return nil, nil
	}
	if h.superseded(ctx, sub, ev.Created) {
		return nil, nil
	}
	sub.Status = enums.SubscriptionStatusPastDue
	stampEvent(sub, ev.Created)
	if err := h.billing.UpdateSubscription(ctx, sub); err != nil {
		return nil, storageError(err, "mark subscription past due")
	}

	user, err := h.users.FindByID(ctx, sub.UserID)
	if err != nil {
		return nil, storageError(err, "load user")
	}
	msg := notifications.Message{
		Kind:        notifications.KindPaymentFailed,
		UserID:      sub.UserID,
		To:          ev.CustomerEmail,
		AmountCents: ev.AmountDue,
		Currency:    ev.Currency,
		Reference:   ev.InvoiceID,
	}
	if user != nil {
		msg.To = firstNonEmpty(deref(user.Email), ev.CustomerEmail)
		msg.Name = user.FirstName
	}
	return []notifications.Message{msg}, nil
}

// resolveUser finds the user by customer id, then email, then the caller's
// own reference, creating one bound to the customer when none match.
func (h handlerTx) resolveUser(ctx context.Context, customerID, email, reference string) (*models.User, error) {
	customerID = strings.TrimSpace(customerID)
	reference = strings.TrimSpace(reference)

	if customerID != "" {
		user, err := h.users.FindByStripeCustomerID(ctx, customerID)
		if err != nil {
			return nil, storageError(err, "lookup user by customer")
		}
		if user != nil {
			return user, nil
		}
	}

	if user, err := h.users.FindByEmail(ctx, email); err != nil {
		return nil, storageError(err, "lookup user by email")
	} else if user != nil {
		return h.bindCustomer(ctx, user.ID, customerID)
	}

	if reference != "" {
		user, err := h.users.FindByID(ctx, reference)
		if err != nil {
			return nil, storageError(err, "lookup user by reference")
		}
		if user != nil {
			return h.bindCustomer(ctx, user.ID, customerID)
		}
	}

	if customerID == "" && reference == "" && users.NormalizeEmail(email) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeReconciliation, "event carries no customer, email or user reference")
	}

	user := &models.User{ID: reference}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if customerID != "" {
		user.StripeCustomerID = &customerID
	}
	if email != "" {
		user.Email = &email
	}
	if err := h.users.Create(ctx, user); err != nil {
		return nil, storageError(err, "create user")
	}
	h.logg.Info(h.logg.WithUserID(ctx, user.ID), "webhook.user_created")
	return user, nil
}

// bindCustomer attaches customerID to a user that has none yet.
func (h handlerTx) bindCustomer(ctx context.Context, userID, customerID string) (*models.User, error) {
	user, err := h.users.FindByID(ctx, userID)
	if err != nil {
		return nil, storageError(err, "load user")
	}
	if user == nil {
		return nil, pkgerrors.New(pkgerrors.CodeReconciliation, "subscription owner missing")
	}
	if customerID == "" || user.StripeCustomerID != nil {
		return user, nil
	}
	if err := h.users.SetStripeCustomerID(ctx, user.ID, customerID); err != nil {
		return nil, storageError(err, "bind customer")
	}
	user.StripeCustomerID = &customerID
	return user, nil
}

func storageError(err error, message string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

// failureText flattens the error chain for the event row. Typed errors only
// print their own message, so their causes are appended.
func failureText(err error) string {
	var parts []string
	for err != nil {
		var typed *pkgerrors.Error
		if !errors.As(err, &typed) || typed != err {
			parts = append(parts, err.Error())
			break
		}
		parts = append(parts, typed.Error())
		err = typed.Unwrap()
	}
	return strings.Join(parts, ": ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
