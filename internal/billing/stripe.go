// Package billing wires plan changes to Stripe: checkout session creation for
// upgrades, and signed webhooks for the resulting subscription lifecycle.
// Price reconciliation and invoicing stay on Stripe's side.
package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrBadSignature covers every way a webhook signature can fail to verify.
var ErrBadSignature = errors.New("invalid stripe signature")

type StripeClient struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewStripeClient(baseURL, secretKey string) *StripeClient {
	return &StripeClient{
		baseURL:    baseURL,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateCheckoutSession opens a subscription-mode checkout for the premium
// price. The user id rides along as client_reference_id so the completion
// webhook can find the account to upgrade.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, userID, email, priceID, successURL, cancelURL string) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", priceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", successURL)
	form.Set("cancel_url", cancelURL)
	form.Set("client_reference_id", userID)
	form.Set("customer_email", email)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stripe request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("stripe returned status %d: %s", resp.StatusCode, body)
	}

	var session CheckoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("failed to decode stripe response: %w", err)
	}

	return &session, nil
}

const signatureTolerance = 5 * time.Minute

// VerifySignature checks a Stripe-Signature header (t=...,v1=...) against the
// webhook secret: HMAC-SHA256 over "<t>.<payload>", constant-time compare,
// and a freshness window against replay.
func VerifySignature(payload []byte, header, secret string, now time.Time) error {
	var timestamp int64
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrBadSignature
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, value)
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return ErrBadSignature
	}
	if now.Sub(time.Unix(timestamp, 0)) > signatureTolerance {
		return fmt.Errorf("%w: timestamp too old", ErrBadSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}

	return ErrBadSignature
}
