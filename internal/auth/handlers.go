package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/dreamtales/dreamtales-api/internal/api"
	"github.com/dreamtales/dreamtales-api/internal/db"
	"github.com/dreamtales/dreamtales-api/internal/models"
)

const (
	bcryptCost        = 12
	minPasswordLength = 6
	defaultLocale     = "fr"
)

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type Handler struct {
	store     UserStore
	jwtSecret string
	log       *logrus.Logger
}

func NewHandler(store UserStore, jwtSecret string, log *logrus.Logger) *Handler {
	return &Handler{store: store, jwtSecret: jwtSecret, log: log}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/register", h.Register).Methods("POST")
	router.HandleFunc("/auth/login", h.Login).Methods("POST")
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Locale   string `json:"locale"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	if req.Name == "" || req.Email == "" || req.Password == "" {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Name, email and password are required")
		return
	}
	if len(req.Password) < minPasswordLength {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Password must be at least 6 characters")
		return
	}
	if req.Locale == "" || !models.ValidLanguage(req.Locale) {
		req.Locale = defaultLocale
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		h.log.WithError(err).Error("failed to hash password")
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to create account")
		return
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        strings.ToLower(req.Email),
		PasswordHash: string(hash),
		Plan:         models.PlanFree,
		PeriodStart:  time.Now(),
		Locale:       req.Locale,
	}

	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, db.ErrEmailTaken) {
			api.WriteError(w, http.StatusConflict, "email_taken", "Email already in use")
			return
		}
		h.log.WithError(err).Error("failed to create user")
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to create account")
		return
	}

	api.WriteJSON(w, http.StatusCreated, map[string]string{
		"id":    user.ID,
		"name":  user.Name,
		"email": user.Email,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		// Same response for unknown email and bad password.
		api.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		api.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password")
		return
	}

	token, err := GenerateToken(user.ID, user.Plan, h.jwtSecret)
	if err != nil {
		h.log.WithError(err).Error("failed to generate token")
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to log in")
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user": map[string]any{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
			"plan":  user.Plan,
		},
	})
}
