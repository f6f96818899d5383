package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/gymflex/internal/application"
)

type noteService interface {
	ListNotes(ctx context.Context, principal application.Principal) ([]application.Note, error)
	CreateNote(ctx context.Context, principal application.Principal, title string) (application.Note, error)
	DeleteNote(ctx context.Context, principal application.Principal, noteID string) error
}

// NoteHandler serves the caller's private notes.
type NoteHandler struct {
	service   noteService
	responder responder
	logger    *slog.Logger
}

func NewNoteHandler(service noteService, logger *slog.Logger) *NoteHandler {
	base := defaultLogger(logger)
	return &NoteHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	notes, err := h.service.ListNotes(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	dtos := make([]noteDTO, 0, len(notes))
	for _, note := range notes {
		dtos = append(dtos, toNoteDTO(note))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, dtos)
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, detailBadRequestBody, err)
		return
	}

	note, err := h.service.CreateNote(r.Context(), principal, req.Title)
	if err != nil {
		handlerLogger(r.Context(), h.logger, "NoteHandler", "Create").WarnContext(r.Context(), "note creation rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toNoteDTO(note))
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteNote(r.Context(), principal, r.PathValue("id")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

type noteRequest struct {
	Title string `json:"title"`
}

type noteDTO struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at"`
}

func toNoteDTO(note application.Note) noteDTO {
	return noteDTO{
		ID:        note.ID,
		Title:     note.Title,
		Author:    note.AuthorID,
		CreatedAt: note.CreatedAt.UTC().Format(time.RFC3339),
	}
}
