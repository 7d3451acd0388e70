package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/promptability/Website-sub002/pkg/config"
)

func TestNewClientValidatesConfig(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name    string
		cfg     config.StripeConfig
		wantErr bool
	}{
		{name: "missing key", cfg: config.StripeConfig{Secret: "whsec_1"}, wantErr: true},
		{name: "missing secret", cfg: config.StripeConfig{APIKey: "sk_test_1"}, wantErr: true},
		{name: "live key in test env", cfg: config.StripeConfig{APIKey: "sk_live_1", Secret: "whsec_1", Env: "test"}, wantErr: true},
		{name: "unknown env", cfg: config.StripeConfig{APIKey: "sk_test_1", Secret: "whsec_1", Env: "staging"}, wantErr: true},
		{name: "valid test", cfg: config.StripeConfig{APIKey: "sk_test_1", Secret: "whsec_1"}},
		{name: "valid live restricted", cfg: config.StripeConfig{APIKey: "rk_live_1", Secret: "whsec_1", Env: "LIVE"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(ctx, tc.cfg, nil)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if client.SigningSecret() != "whsec_1" {
				t.Fatalf("unexpected signing secret %q", client.SigningSecret())
			}
			if client.api == nil || client.api.V1CheckoutSessions == nil || client.api.V1BillingPortalSessions == nil {
				t.Fatal("expected session services on the api client")
			}
		})
	}
}

func TestSessionCallsRequireClient(t *testing.T) {
	var client *Client
	if _, err := client.CreateCheckoutSession(context.Background(), nil); err != errAPIKeyRequired {
		t.Fatalf("expected missing key error, got %v", err)
	}
	if _, err := (&Client{}).CreatePortalSession(context.Background(), nil); err != errAPIKeyRequired {
		t.Fatalf("expected missing key error, got %v", err)
	}
}

func TestVerifyEvent(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1","object":"event","type":"invoice.payment_succeeded","data":{"object":{"id":"in_1"}}}`)

	event, err := VerifyEvent(payload, sign(payload, secret, time.Now()), secret)
	if err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if event.ID != "evt_1" || string(event.Type) != "invoice.payment_succeeded" {
		t.Fatalf("unexpected event %+v", event)
	}

	if _, err := VerifyEvent(payload, sign(payload, "whsec_other", time.Now()), secret); err == nil {
		t.Fatal("expected signature from another secret to fail")
	}
	if _, err := VerifyEvent(payload, "", secret); err == nil {
		t.Fatal("expected missing signature to fail")
	}
	if _, err := VerifyEvent(payload, sign(payload, secret, time.Now().Add(-time.Hour)), secret); err == nil {
		t.Fatal("expected stale timestamp to fail")
	}
	if _, err := VerifyEvent(payload, sign(payload, secret, time.Now()), ""); err == nil {
		t.Fatal("expected empty secret to fail")
	}
}

func sign(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
