package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dreamtales/dreamtales-api/internal/api"
	"github.com/dreamtales/dreamtales-api/internal/auth"
	"github.com/dreamtales/dreamtales-api/internal/billing"
	"github.com/dreamtales/dreamtales-api/internal/config"
	"github.com/dreamtales/dreamtales-api/internal/db"
	"github.com/dreamtales/dreamtales-api/internal/entitlement"
	"github.com/dreamtales/dreamtales-api/internal/ratelimit"
	"github.com/dreamtales/dreamtales-api/internal/story"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}

	database, err := db.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer database.Close()

	limiter, err := ratelimit.NewRateLimiter(cfg.RedisURL, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize rate limiter")
	}
	defer limiter.Close()

	ledger := entitlement.NewLedger(database, cfg.FreeStoriesPerMonth, cfg.CountPremiumUsage)
	provider := story.NewAnthropicClient(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey, cfg.AnthropicModel)
	storyService := story.NewService(database, ledger, story.NewSynthesizer(provider), log)

	authHandler := auth.NewHandler(database, cfg.JWTSecret, log)
	storyHandler := story.NewHandler(storyService, log)
	billingHandler := billing.NewHandler(
		database,
		billing.NewStripeClient(cfg.StripeAPIBase, cfg.StripeSecretKey),
		billing.Config{
			PremiumPriceID:     cfg.StripePremiumPriceID,
			WebhookSecret:      cfg.StripeWebhookSecret,
			CheckoutSuccessURL: cfg.CheckoutSuccessURL,
			CheckoutCancelURL:  cfg.CheckoutCancelURL,
		},
		log,
	)

	router := mux.NewRouter()
	router.HandleFunc("/health", healthHandler).Methods("GET")
	authHandler.RegisterRoutes(router)
	billingHandler.RegisterWebhook(router)

	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(mux.MiddlewareFunc(auth.NewMiddleware(cfg.JWTSecret).Authenticate))
	protected.Use(mux.MiddlewareFunc(limiter.Middleware(cfg.RateLimitPerHour)))
	storyHandler.RegisterRoutes(protected)
	billingHandler.RegisterRoutes(protected)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.WithField("port", cfg.ServerPort).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.WithError(err).Fatal("server failed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "1.0.0",
	})
}
