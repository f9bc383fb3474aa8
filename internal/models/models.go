package models

import "time"

type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

type User struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Email                string    `json:"email"`
	PasswordHash         string    `json:"-"`
	Plan                 Plan      `json:"plan"`
	StoriesUsed          int       `json:"stories_used"`
	PeriodStart          time.Time `json:"period_start"`
	StripeCustomerID     string    `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string    `json:"stripe_subscription_id,omitempty"`
	Locale               string    `json:"locale"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

type Story struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ChildName string    `json:"child_name"`
	ChildAge  int       `json:"child_age"`
	Theme     string    `json:"theme"`
	Language  string    `json:"language"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"image_url,omitempty"`
	AudioURL  string    `json:"audio_url,omitempty"`
	Locale    string    `json:"locale"`
	CreatedAt time.Time `json:"created_at"`
}

// GenerateStoryRequest is the caller-supplied input for one generation. It is
// validated before any provider call or quota debit, and its fields are
// denormalized onto the resulting Story.
type GenerateStoryRequest struct {
	ChildName string `json:"child_name"`
	ChildAge  int    `json:"child_age"`
	Theme     string `json:"theme"`
	Language  string `json:"language"`
}
