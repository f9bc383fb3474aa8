package story

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dreamtales/dreamtales-api/internal/api"
	"github.com/dreamtales/dreamtales-api/internal/auth"
	"github.com/dreamtales/dreamtales-api/internal/db"
	"github.com/dreamtales/dreamtales-api/internal/entitlement"
	"github.com/dreamtales/dreamtales-api/internal/models"
)

const defaultListLimit = 50

type Handler struct {
	service *Service
	log     *logrus.Logger
}

func NewHandler(service *Service, log *logrus.Logger) *Handler {
	return &Handler{service: service, log: log}
}

// RegisterRoutes mounts the story surface on an authenticated subrouter.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/stories", h.GenerateStory).Methods("POST")
	router.HandleFunc("/stories", h.ListStories).Methods("GET")
	router.HandleFunc("/stories/{id}", h.GetStory).Methods("GET")
	router.HandleFunc("/stories/{id}", h.DeleteStory).Methods("DELETE")
	router.HandleFunc("/usage", h.GetUsage).Methods("GET")
}

func (h *Handler) GenerateStory(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, "unauthorized", "Not authenticated")
		return
	}

	var req struct {
		ChildName string `json:"child_name"`
		ChildAge  int    `json:"child_age"`
		Theme     string `json:"theme"`
		Language  string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	story, err := h.service.Generate(r.Context(), claims.UserID, models.GenerateStoryRequest{
		ChildName: req.ChildName,
		ChildAge:  req.ChildAge,
		Theme:     req.Theme,
		Language:  req.Language,
	})
	if err != nil {
		h.writeGenerateError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusCreated, story)
}

func (h *Handler) writeGenerateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		api.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, entitlement.ErrQuotaExceeded):
		api.WriteError(w, http.StatusPaymentRequired, "quota_exceeded",
			"Monthly story limit reached. Upgrade to premium for unlimited stories.")
	case errors.Is(err, entitlement.ErrAccountNotFound):
		api.WriteError(w, http.StatusUnauthorized, "unauthorized", "Account not found")
	case errors.Is(err, ErrProviderUnavailable):
		api.WriteError(w, http.StatusBadGateway, "provider_unavailable",
			"Story generation is temporarily unavailable. Please try again.")
	default:
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to generate story")
	}
}

func (h *Handler) ListStories(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, "unauthorized", "Not authenticated")
		return
	}

	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= defaultListLimit {
			limit = n
		}
	}

	stories, err := h.service.List(r.Context(), claims.UserID, limit)
	if err != nil {
		h.log.WithError(err).Error("failed to list stories")
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to list stories")
		return
	}

	api.WriteJSON(w, http.StatusOK, stories)
}

func (h *Handler) GetStory(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, "unauthorized", "Not authenticated")
		return
	}

	story, err := h.service.Get(r.Context(), claims.UserID, mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			api.WriteError(w, http.StatusNotFound, "not_found", "Story not found")
			return
		}
		h.log.WithError(err).Error("failed to get story")
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to get story")
		return
	}

	api.WriteJSON(w, http.StatusOK, story)
}

func (h *Handler) DeleteStory(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, "unauthorized", "Not authenticated")
		return
	}

	if err := h.service.Delete(r.Context(), claims.UserID, mux.Vars(r)["id"]); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			api.WriteError(w, http.StatusNotFound, "not_found", "Story not found")
			return
		}
		h.log.WithError(err).Error("failed to delete story")
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to delete story")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.UserFromContext(r.Context())
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, "unauthorized", "Not authenticated")
		return
	}

	report, err := h.service.Usage(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, entitlement.ErrAccountNotFound) {
			api.WriteError(w, http.StatusUnauthorized, "unauthorized", "Account not found")
			return
		}
		h.log.WithError(err).Error("failed to get usage")
		api.WriteError(w, http.StatusInternalServerError, "internal_error", "Failed to get usage")
		return
	}

	api.WriteJSON(w, http.StatusOK, report)
}
