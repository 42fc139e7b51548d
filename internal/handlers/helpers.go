package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/benvon/health-report/internal/middleware"
	"github.com/benvon/health-report/internal/models"
)

const maxErrorDetailLength = 200

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// respondJSON sends data as the JSON response body
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sanitizeErrorMessage truncates details so provider and driver messages stay short
func sanitizeErrorMessage(message string) string {
	runes := []rune(message)
	if len(runes) > maxErrorDetailLength {
		return string(runes[:maxErrorDetailLength]) + "..."
	}
	return message
}

// respondJSONError sends an error JSON response with sanitized details
func respondJSONError(w http.ResponseWriter, status int, message, details string) {
	respondJSON(w, status, ErrorResponse{
		Error:   message,
		Details: sanitizeErrorMessage(details),
	})
}

// requireUser returns the authenticated user or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user := middleware.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "")
		return nil, false
	}
	return user, true
}

// decodeJSON decodes a single JSON object, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return err
	}
	return nil
}
