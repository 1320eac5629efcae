package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tagfer/tagfer-server/internal/model"
	"github.com/tagfer/tagfer-server/internal/service"
)

// NoteHandler serves the caller's notes about {tagferId}.
type NoteHandler struct {
	notes  *service.NoteService
	logger *slog.Logger
}

// NewNoteHandler creates a NoteHandler.
func NewNoteHandler(notes *service.NoteService, logger *slog.Logger) *NoteHandler {
	return &NoteHandler{notes: notes, logger: logger}
}

type noteRequest struct {
	NoteID  string `json:"noteId"`
	Content string `json:"content"`
}

type noteIDResponse struct {
	NoteID string `json:"noteId"`
}

type notesResponse struct {
	Notes []model.Note `json:"notes"`
}

// HandleList answers GET /notes/me/{tagferId}.
func (h *NoteHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	notes, err := h.notes.List(r.Context(), caller(r), chi.URLParam(r, "tagferId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, notesResponse{Notes: notes})
}

// HandleCreate answers PUT /notes/me/{tagferId} {"content"} with the new
// note's id.
func (h *NoteHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	id, err := h.notes.Create(r.Context(), caller(r), chi.URLParam(r, "tagferId"), req.Content)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, noteIDResponse{NoteID: id})
}

// HandleUpdate answers POST /notes/me/{tagferId} {"noteId", "content"}.
func (h *NoteHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	err := h.notes.Update(r.Context(), caller(r), chi.URLParam(r, "tagferId"), req.NoteID, req.Content)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, noteIDResponse{NoteID: req.NoteID})
}

// HandleDelete answers DELETE /notes/me/{tagferId} {"noteId"}.
func (h *NoteHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.notes.Delete(r.Context(), caller(r), chi.URLParam(r, "tagferId"), req.NoteID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, empty)
}
