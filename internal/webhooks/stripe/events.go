package stripewebhook

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/promptability/Website-sub002/internal/subscriptions"
	pkgerrors "github.com/promptability/Website-sub002/pkg/errors"
	"github.com/stripe/stripe-go/v84"
)

// Event is one decoded provider event. The concrete types below are the
// complete set; dispatch switches on them.
type Event interface {
	Meta() EventMeta
	isEvent()
}

// EventMeta carries the envelope fields shared by every event.
type EventMeta struct {
	ID      string
	Type    string
	Created time.Time
}

func (m EventMeta) Meta() EventMeta { return m }
func (EventMeta) isEvent()          {}

// CheckoutCompleted is a finished hosted checkout.
type CheckoutCompleted struct {
	EventMeta
	SessionID         string
	CustomerID        string
	ClientReferenceID string
	Email             string
	Name              string
	SubscriptionID    string
	Metadata          map[string]string
}

// SubscriptionChanged is a subscription created or updated.
type SubscriptionChanged struct {
	EventMeta
	Subscription subscriptions.Snapshot
}

// SubscriptionDeleted is a subscription that ended.
type SubscriptionDeleted struct {
	EventMeta
	Subscription subscriptions.Snapshot
}

// InvoicePaid is a settled invoice payment.
type InvoicePaid struct {
	EventMeta
	InvoiceID       string
	PaymentIntentID string
	CustomerID      string
	CustomerEmail   string
	SubscriptionID  string
	AmountPaid      int64
	Currency        string
	Description     string
}

// InvoiceFailed is a failed invoice payment attempt.
type InvoiceFailed struct {
	EventMeta
	InvoiceID      string
	CustomerID     string
	CustomerEmail  string
	SubscriptionID string
	AmountDue      int64
	Currency       string
}

// Unhandled is any event type the reconciler acknowledges without acting on.
type Unhandled struct {
	EventMeta
}

// DecodeEvent decodes the raw provider event into its typed variant.
func DecodeEvent(event stripe.Event) (Event, error) {
	meta := EventMeta{
		ID:   event.ID,
		Type: string(event.Type),
	}
	if event.Created > 0 {
		meta.Created = time.Unix(event.Created, 0).UTC()
	}

	var raw json.RawMessage
	if event.Data != nil {
		raw = event.Data.Raw
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := decodeRaw(raw, &session); err != nil {
			return nil, err
		}
		out := CheckoutCompleted{
			EventMeta:         meta,
			SessionID:         session.ID,
			ClientReferenceID: strings.TrimSpace(session.ClientReferenceID),
			Email:             session.CustomerEmail,
			Metadata:          session.Metadata,
		}
		if session.Customer != nil {
			out.CustomerID = session.Customer.ID
		}
		if session.CustomerDetails != nil {
			if session.CustomerDetails.Email != "" {
				out.Email = session.CustomerDetails.Email
			}
			out.Name = session.CustomerDetails.Name
		}
		if session.Subscription != nil {
			out.SubscriptionID = session.Subscription.ID
		}
		if out.ClientReferenceID == "" {
			out.ClientReferenceID = strings.TrimSpace(session.Metadata["user_id"])
		}
		return out, nil

	case stripe.EventTypeCustomerSubscriptionCreated, stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := decodeRaw(raw, &sub); err != nil {
			return nil, err
		}
		snap, err := subscriptions.FromStripe(&sub)
		if err != nil {
			return nil, err
		}
		return SubscriptionChanged{EventMeta: meta, Subscription: snap}, nil

	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := decodeRaw(raw, &sub); err != nil {
			return nil, err
		}
		snap, err := subscriptions.Identify(&sub)
		if err != nil {
			return nil, err
		}
		return SubscriptionDeleted{EventMeta: meta, Subscription: snap}, nil

	case stripe.EventTypeInvoicePaymentSucceeded:
		var inv invoicePayload
		if err := decodeRaw(raw, &inv); err != nil {
			return nil, err
		}
		return InvoicePaid{
			EventMeta:       meta,
			InvoiceID:       inv.ID,
			PaymentIntentID: string(inv.PaymentIntent),
			CustomerID:      string(inv.Customer),
			CustomerEmail:   inv.CustomerEmail,
			SubscriptionID:  inv.subscriptionID(),
			AmountPaid:      inv.AmountPaid,
			Currency:        inv.Currency,
			Description:     inv.Description,
		}, nil

	case stripe.EventTypeInvoicePaymentFailed:
		var inv invoicePayload
		if err := decodeRaw(raw, &inv); err != nil {
			return nil, err
		}
		return InvoiceFailed{
			EventMeta:      meta,
			InvoiceID:      inv.ID,
			CustomerID:     string(inv.Customer),
			CustomerEmail:  inv.CustomerEmail,
			SubscriptionID: inv.subscriptionID(),
			AmountDue:      inv.AmountDue,
			Currency:       inv.Currency,
		}, nil

	default:
		return Unhandled{EventMeta: meta}, nil
	}
}

func decodeRaw(raw json.RawMessage, target any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return pkgerrors.New(pkgerrors.CodeReconciliation, "event payload missing")
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeReconciliation, err, "decode event payload")
	}
	return nil
}

// invoicePayload covers both invoice layouts: older API versions carry
// subscription and payment_intent at the top level, newer ones nest the
// subscription under parent.subscription_details.
type invoicePayload struct {
	ID            string       `json:"id"`
	Customer      expandableID `json:"customer"`
	CustomerEmail string       `json:"customer_email"`
	AmountPaid    int64        `json:"amount_paid"`
	AmountDue     int64        `json:"amount_due"`
	Currency      string       `json:"currency"`
	Description   string       `json:"description"`
	Subscription  expandableID `json:"subscription"`
	PaymentIntent expandableID `json:"payment_intent"`
	Parent        *struct {
		SubscriptionDetails *struct {
			Subscription expandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (p invoicePayload) subscriptionID() string {
	if p.Subscription != "" {
		return string(p.Subscription)
	}
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil {
		return string(p.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

// expandableID accepts either a bare id or an expanded object with an id.
type expandableID string

func (e *expandableID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*e = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = expandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}
