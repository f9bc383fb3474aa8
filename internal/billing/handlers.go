package billing

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dreamtales/dreamtales-api/internal/api"
	"github.com/dreamtales/dreamtales-api/internal/auth"
	"github.com/dreamtales/dreamtales-api/internal/models"
)

const maxWebhookBody = 64 * 1024

type UserStore interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	SetUserPlan(ctx context.Context, userID string, plan models.Plan, customerID, subscriptionID string) error
	SetUserPlanByStripeCustomer(ctx context.Context, customerID string, plan models.Plan) error
}

type Config struct {
	PremiumPriceID     string
	WebhookSecret      string
	CheckoutSuccessURL string
	CheckoutCancelURL  string
}

type Handler struct {
	store  UserStore
	stripe *StripeClient
	cfg    Config
	log    *logrus.Logger
	now    func() time.Time
}

func NewHandler(store UserStore, stripe *StripeClient, cfg Config, log *logrus.Logger) *Handler {
	return &Handler{store: store, stripe: stripe, cfg: cfg, log: log, now: time.Now}
}

// RegisterRoutes mounts the checkout endpoint on an authenticated subrouter.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/billing/checkout", h.CreateCheckout).Methods("POST")
}

// RegisterWebhook mounts the webhook on the public router; Stripe
// authenticates with its signature, not a bearer token.
func (h *Handler) RegisterWebhook(router *mux.Router) {
	router.HandleFunc("/billing/webhook", h.Webhook).Methods("POST")
}

func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, "unauthorized", "Not authenticated")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		api.WriteError(w, http.StatusUnauthorized, "unauthorized", "Account not found")
		return
	}
	if user.Plan == models.PlanPremium {
		api.WriteError(w, http.StatusConflict, "already_premium", "Account is already premium")
		return
	}

	session, err := h.stripe.CreateCheckoutSession(r.Context(),
		user.ID, user.Email, h.cfg.PremiumPriceID, h.cfg.CheckoutSuccessURL, h.cfg.CheckoutCancelURL)
	if err != nil {
		h.log.WithError(err).Error("failed to create checkout session")
		api.WriteError(w, http.StatusBadGateway, "billing_unavailable", "Could not start checkout")
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]string{"checkout_url": session.URL})
}

type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID                string `json:"id"`
			Customer          string `json:"customer"`
			Subscription      string `json:"subscription"`
			ClientReferenceID string `json:"client_reference_id"`
		} `json:"object"`
	} `json:"data"`
}

func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Could not read payload")
		return
	}

	if err := VerifySignature(payload, r.Header.Get("Stripe-Signature"), h.cfg.WebhookSecret, h.now()); err != nil {
		h.log.WithError(err).Warn("rejected stripe webhook")
		api.WriteError(w, http.StatusBadRequest, "invalid_signature", "Signature verification failed")
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Malformed event")
		return
	}

	if err := h.handleEvent(r.Context(), event); err != nil {
		h.log.WithError(err).WithField("event_type", event.Type).Error("failed to handle stripe event")
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Event handling failed")
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleEvent(ctx context.Context, event webhookEvent) error {
	obj := event.Data.Object

	switch event.Type {
	case "checkout.session.completed":
		h.log.WithFields(logrus.Fields{
			"user_id":  obj.ClientReferenceID,
			"customer": obj.Customer,
		}).Info("checkout completed, upgrading plan")
		return h.store.SetUserPlan(ctx, obj.ClientReferenceID, models.PlanPremium, obj.Customer, obj.Subscription)

	case "customer.subscription.deleted":
		h.log.WithField("customer", obj.Customer).Info("subscription ended, reverting to free plan")
		return h.store.SetUserPlanByStripeCustomer(ctx, obj.Customer, models.PlanFree)

	default:
		// Not ours to handle.
		return nil
	}
}
