// Package types holds the JSON bodies shared across the HTTP surface. The
// envelopes wrap supplementary endpoints; the bare bodies are fixed contracts
// consumed by the web client and the billing provider.
package types

type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// UsageSummary reports quota left after a metered call. -1 means unlimited.
type UsageSummary struct {
	RemainingDaily   int64  `json:"remainingDaily"`
	RemainingMonthly int64  `json:"remainingMonthly"`
	PlanType         string `json:"planType"`
}

// MeteredResult is the 200 body of /optimize and /analyze.
type MeteredResult struct {
	Success bool         `json:"success"`
	Data    any          `json:"data"`
	Usage   UsageSummary `json:"usage"`
}

// LimitReached is the 429 body returned when the gate denies a call.
type LimitReached struct {
	Error            string `json:"error"`
	LimitReached     bool   `json:"limitReached"`
	PlanType         string `json:"planType"`
	RemainingDaily   int64  `json:"remainingDaily"`
	RemainingMonthly int64  `json:"remainingMonthly"`
}

// WebhookAck acknowledges a billing event delivery.
type WebhookAck struct {
	Received bool   `json:"received"`
	Outcome  string `json:"outcome,omitempty"`
}
