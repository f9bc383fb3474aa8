package billing

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamtales/dreamtales-api/internal/models"
)

const webhookSecret = "whsec_test"

func signPayload(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.%s", ts, payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"type": "checkout.session.completed"}`)
	now := time.Now()

	assert.NoError(t, VerifySignature(payload, signPayload(payload, webhookSecret, now), webhookSecret, now))

	// Wrong secret.
	assert.ErrorIs(t, VerifySignature(payload, signPayload(payload, "whsec_other", now), webhookSecret, now),
		ErrBadSignature)

	// Tampered payload.
	assert.ErrorIs(t, VerifySignature([]byte(`{}`), signPayload(payload, webhookSecret, now), webhookSecret, now),
		ErrBadSignature)

	// Stale timestamp.
	assert.ErrorIs(t, VerifySignature(payload, signPayload(payload, webhookSecret, now.Add(-10*time.Minute)), webhookSecret, now),
		ErrBadSignature)

	// Garbage header.
	assert.ErrorIs(t, VerifySignature(payload, "nonsense", webhookSecret, now), ErrBadSignature)
}

func TestCreateCheckoutSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "subscription", r.PostForm.Get("mode"))
		assert.Equal(t, "price_premium", r.PostForm.Get("line_items[0][price]"))
		assert.Equal(t, "u1", r.PostForm.Get("client_reference_id"))
		assert.Equal(t, "lea@example.com", r.PostForm.Get("customer_email"))

		json.NewEncoder(w).Encode(map[string]string{
			"id":  "cs_123",
			"url": "https://checkout.stripe.com/pay/cs_123",
		})
	}))
	defer server.Close()

	client := NewStripeClient(server.URL, "sk_test")
	session, err := client.CreateCheckoutSession(context.Background(),
		"u1", "lea@example.com", "price_premium", "https://app/success", "https://app/cancel")
	require.NoError(t, err)

	assert.Equal(t, "cs_123", session.ID)
	assert.Equal(t, "https://checkout.stripe.com/pay/cs_123", session.URL)
}

func TestCreateCheckoutSessionErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "No such price"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewStripeClient(server.URL, "sk_test")
	_, err := client.CreateCheckoutSession(context.Background(), "u1", "a@b.c", "price_x", "s", "c")
	assert.Error(t, err)
}

// fakeBillingStore is a func-field user store double.
type fakeBillingStore struct {
	setPlanFunc           func(ctx context.Context, userID string, plan models.Plan, customerID, subscriptionID string) error
	setPlanByCustomerFunc func(ctx context.Context, customerID string, plan models.Plan) error
}

func (s *fakeBillingStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return &models.User{ID: id, Email: "lea@example.com", Plan: models.PlanFree}, nil
}

func (s *fakeBillingStore) SetUserPlan(ctx context.Context, userID string, plan models.Plan, customerID, subscriptionID string) error {
	if s.setPlanFunc != nil {
		return s.setPlanFunc(ctx, userID, plan, customerID, subscriptionID)
	}
	return nil
}

func (s *fakeBillingStore) SetUserPlanByStripeCustomer(ctx context.Context, customerID string, plan models.Plan) error {
	if s.setPlanByCustomerFunc != nil {
		return s.setPlanByCustomerFunc(ctx, customerID, plan)
	}
	return nil
}

func newWebhookHandler(store *fakeBillingStore) *Handler {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewHandler(store, NewStripeClient("", ""), Config{WebhookSecret: webhookSecret}, log)
}

func postWebhook(handler *Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	handler.Webhook(rec, req)
	return rec
}

func TestWebhookCheckoutCompletedUpgradesPlan(t *testing.T) {
	var gotUserID, gotCustomer, gotSub string
	var gotPlan models.Plan
	store := &fakeBillingStore{
		setPlanFunc: func(ctx context.Context, userID string, plan models.Plan, customerID, subscriptionID string) error {
			gotUserID, gotPlan, gotCustomer, gotSub = userID, plan, customerID, subscriptionID
			return nil
		},
	}

	payload, _ := json.Marshal(map[string]any{
		"id":   "evt_1",
		"type": "checkout.session.completed",
		"data": map[string]any{
			"object": map[string]any{
				"id":                  "cs_123",
				"customer":            "cus_42",
				"subscription":        "sub_7",
				"client_reference_id": "u1",
			},
		},
	})

	rec := postWebhook(newWebhookHandler(store), payload, signPayload(payload, webhookSecret, time.Now()))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", gotUserID)
	assert.Equal(t, models.PlanPremium, gotPlan)
	assert.Equal(t, "cus_42", gotCustomer)
	assert.Equal(t, "sub_7", gotSub)
}

func TestWebhookSubscriptionDeletedDowngradesPlan(t *testing.T) {
	var gotCustomer string
	var gotPlan models.Plan
	store := &fakeBillingStore{
		setPlanByCustomerFunc: func(ctx context.Context, customerID string, plan models.Plan) error {
			gotCustomer, gotPlan = customerID, plan
			return nil
		},
	}

	payload, _ := json.Marshal(map[string]any{
		"id":   "evt_2",
		"type": "customer.subscription.deleted",
		"data": map[string]any{
			"object": map[string]any{"id": "sub_7", "customer": "cus_42"},
		},
	})

	rec := postWebhook(newWebhookHandler(store), payload, signPayload(payload, webhookSecret, time.Now()))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cus_42", gotCustomer)
	assert.Equal(t, models.PlanFree, gotPlan)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	called := false
	store := &fakeBillingStore{
		setPlanFunc: func(ctx context.Context, userID string, plan models.Plan, customerID, subscriptionID string) error {
			called = true
			return nil
		},
	}

	payload := []byte(`{"type": "checkout.session.completed"}`)
	rec := postWebhook(newWebhookHandler(store), payload, "t=1,v1=deadbeef")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}

func TestWebhookIgnoresUnknownEvents(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{"id": "evt_3", "type": "invoice.paid"})
	rec := postWebhook(newWebhookHandler(&fakeBillingStore{}), payload, signPayload(payload, webhookSecret, time.Now()))
	assert.Equal(t, http.StatusOK, rec.Code)
}
