package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort  string
	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicModel   string

	StripeAPIBase        string
	StripeSecretKey      string
	StripeWebhookSecret  string
	StripePremiumPriceID string
	CheckoutSuccessURL   string
	CheckoutCancelURL    string

	FreeStoriesPerMonth int
	CountPremiumUsage   bool
	RateLimitPerHour    int
}

func Load() (*Config, error) {
	godotenv.Load()

	return &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),

		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		AnthropicModel:   getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5"),

		StripeAPIBase:        getEnv("STRIPE_API_BASE", "https://api.stripe.com"),
		StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripePremiumPriceID: getEnv("STRIPE_PREMIUM_PRICE_ID", ""),
		CheckoutSuccessURL:   getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/account?upgraded=1"),
		CheckoutCancelURL:    getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/pricing"),

		FreeStoriesPerMonth: getEnvInt("FREE_STORIES_PER_MONTH", 5),
		CountPremiumUsage:   getEnvBool("COUNT_PREMIUM_USAGE", true),
		RateLimitPerHour:    getEnvInt("RATE_LIMIT_PER_HOUR", 100),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}
