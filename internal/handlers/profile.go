package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/benvon/health-report/internal/models"
	"github.com/benvon/health-report/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// ProfileStore reads and writes profile facts
type ProfileStore interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	UpsertProfile(ctx context.Context, p *models.Profile) error
}

// ProfileHandler handles profile requests
type ProfileHandler struct {
	profiles ProfileStore
}

// NewProfileHandler creates a new profile handler
func NewProfileHandler(profiles ProfileStore) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// RegisterRoutes registers profile routes
// The router should already have the /profile prefix
func (h *ProfileHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.GetProfile).Methods("GET")
	r.HandleFunc("", h.UpdateProfile).Methods("PUT")
}

// UpdateProfileRequest replaces every profile field; omitted or empty fields are cleared.
type UpdateProfileRequest struct {
	Name     *string  `json:"name" validate:"omitempty,max=200"`
	Age      *int     `json:"age" validate:"omitempty,min=1,max=130"`
	WeightKg *float64 `json:"weight_kg" validate:"omitempty,gt=0,lt=700"`
	HeightCm *float64 `json:"height_cm" validate:"omitempty,gt=0,lt=300"`
	Sex      *string  `json:"sex" validate:"omitempty,sex"`
}

// GetProfile returns the profile; a user without a row gets an empty profile.
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	p, err := h.profiles.GetProfile(r.Context(), user.ID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		p = &models.Profile{UserID: user.ID}
	case err != nil:
		respondJSONError(w, http.StatusInternalServerError, "Failed to load profile", "")
		return
	}

	respondJSON(w, http.StatusOK, p)
}

// UpdateProfile upserts the profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	req.Name = cleanOptional(req.Name)
	req.Sex = cleanOptional(req.Sex)
	if req.Sex != nil {
		lower := strings.ToLower(*req.Sex)
		req.Sex = &lower
	}

	if err := validation.Validate.Struct(req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Validation failed", validation.FormatErrors(err))
		return
	}

	p := &models.Profile{
		UserID:   user.ID,
		Name:     req.Name,
		Age:      req.Age,
		WeightKg: req.WeightKg,
		HeightCm: req.HeightCm,
		Sex:      req.Sex,
	}
	if err := h.profiles.UpsertProfile(r.Context(), p); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Failed to save profile", "")
		return
	}

	respondJSON(w, http.StatusOK, p)
}

// cleanOptional sanitizes s and turns blank values into nil.
func cleanOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := validation.SanitizeText(*s)
	if v == "" {
		return nil
	}
	return &v
}
