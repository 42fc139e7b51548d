package handlers

import (
	"context"
	"net/http"

	"github.com/benvon/health-report/internal/models"
	"github.com/benvon/health-report/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// MaxNoteTextLength is the maximum length for note text
const MaxNoteTextLength = 10000

// NoteStore persists health notes
type NoteStore interface {
	Create(ctx context.Context, note *models.Note) error
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Note, error)
	Delete(ctx context.Context, userID, id uuid.UUID) (bool, error)
}

// NoteHandler handles note requests
type NoteHandler struct {
	notes NoteStore
}

// NewNoteHandler creates a new note handler
func NewNoteHandler(notes NoteStore) *NoteHandler {
	return &NoteHandler{notes: notes}
}

// RegisterRoutes registers note routes
// The router should already have the /notes prefix
func (h *NoteHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListNotes).Methods("GET")
	r.HandleFunc("", h.CreateNote).Methods("POST")
	r.HandleFunc("/{id}", h.DeleteNote).Methods("DELETE")
}

// CreateNoteRequest represents a create note request
type CreateNoteRequest struct {
	Text string `json:"text" validate:"required,min=1,max=10000"`
}

// ListNotes returns the user's notes, newest first
func (h *NoteHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	notes, err := h.notes.ListByUserID(r.Context(), user.ID)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Failed to retrieve notes", "")
		return
	}
	respondJSON(w, http.StatusOK, notes)
}

// CreateNote stores a new note
func (h *NoteHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CreateNoteRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	req.Text = validation.SanitizeText(req.Text)
	if err := validation.Validate.Struct(req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Validation failed", validation.FormatErrors(err))
		return
	}

	note := &models.Note{
		ID:     uuid.New(),
		UserID: user.ID,
		Text:   req.Text,
	}
	if err := h.notes.Create(r.Context(), note); err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Failed to create note", "")
		return
	}
	respondJSON(w, http.StatusCreated, note)
}

// DeleteNote removes a note owned by the user
func (h *NoteHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Invalid note ID", "")
		return
	}

	deleted, err := h.notes.Delete(r.Context(), user.ID, id)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Failed to delete note", "")
		return
	}
	if !deleted {
		respondJSONError(w, http.StatusNotFound, "Note not found", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
