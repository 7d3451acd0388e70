package notifications

import (
	"fmt"
	"html"
	"strings"

	"github.com/promptability/Website-sub002/pkg/enums"
	pkgerrors "github.com/promptability/Website-sub002/pkg/errors"
	"github.com/shopspring/decimal"
)

// Kind identifies a transactional email.
type Kind string

const (
	KindWelcome              Kind = "welcome"
	KindSubscriptionCanceled Kind = "subscription_canceled"
	KindPaymentReceipt       Kind = "payment_receipt"
	KindPaymentFailed        Kind = "payment_failed"
)

func (k Kind) String() string {
	return string(k)
}

// Message is a queued notification. Amounts are in the currency's minor unit.
type Message struct {
	Kind        Kind
	UserID      string
	To          string
	Name        string
	PlanTier    enums.PlanTier
	AmountCents int64
	Currency    string
	Reference   string
}

// Email is a rendered message ready for a Sender.
type Email struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// zeroDecimalCurrencies have no minor unit.
var zeroDecimalCurrencies = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// FormatAmount renders a minor-unit amount, e.g. 1900 usd -> "19.00 USD".
func FormatAmount(minor int64, currency string) string {
	currency = strings.ToLower(strings.TrimSpace(currency))
	exp := int32(-2)
	places := int32(2)
	if zeroDecimalCurrencies[currency] {
		exp, places = 0, 0
	}
	amount := decimal.New(minor, exp).StringFixed(places)
	if currency == "" {
		return amount
	}
	return amount + " " + strings.ToUpper(currency)
}

// Render builds the email for msg.
func Render(msg Message) (Email, error) {
	if strings.TrimSpace(msg.To) == "" {
		return Email{}, pkgerrors.New(pkgerrors.CodeValidation, "recipient required")
	}
	greeting := "Hi there,"
	if name := strings.TrimSpace(msg.Name); name != "" {
		greeting = fmt.Sprintf("Hi %s,", name)
	}

	var subject, body string
	switch msg.Kind {
	case KindWelcome:
		subject = "Welcome to Promptability"
		body = "Thanks for subscribing. Your upgraded limits are active as soon as your payment settles."
	case KindSubscriptionCanceled:
		subject = "Your Promptability subscription was canceled"
		body = "Your subscription has been canceled. You keep your current plan until the end of the paid period, then move to the free tier."
	case KindPaymentReceipt:
		subject = "Your Promptability receipt"
		body = fmt.Sprintf("We received your payment of %s.", FormatAmount(msg.AmountCents, msg.Currency))
		if msg.Reference != "" {
			body += fmt.Sprintf(" Reference: %s.", msg.Reference)
		}
	case KindPaymentFailed:
		subject = "Action needed: payment failed"
		body = "We could not process your latest payment. Please update your payment method from the billing portal to keep your plan."
	default:
		return Email{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown notification kind %q", msg.Kind))
	}

	text := greeting + "\n\n" + body + "\n\nThe Promptability team"
	htmlBody := fmt.Sprintf("<p>%s</p><p>%s</p><p>The Promptability team</p>",
		html.EscapeString(greeting), html.EscapeString(body))

	return Email{
		To:      strings.TrimSpace(msg.To),
		ToName:  strings.TrimSpace(msg.Name),
		Subject: subject,
		Text:    text,
		HTML:    htmlBody,
	}, nil
}
