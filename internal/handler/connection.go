package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tagfer/tagfer-server/internal/apperror"
	"github.com/tagfer/tagfer-server/internal/service"
)

// ConnectionHandler serves connection requests and the connection lists.
type ConnectionHandler struct {
	connections *service.ConnectionService
	logger      *slog.Logger
}

// NewConnectionHandler creates a ConnectionHandler.
func NewConnectionHandler(connections *service.ConnectionService, logger *slog.Logger) *ConnectionHandler {
	return &ConnectionHandler{connections: connections, logger: logger}
}

type countResponse struct {
	Count int `json:"count"`
}

type connectionRequest struct {
	FromTagferID string `json:"fromTagferId"`
	FromProfileN int    `json:"fromProfileN"`
	ToTagferID   string `json:"toTagferId"`
	ProfileN     int    `json:"profileN"`
}

// HandleList returns the caller's connections by shared slot.
//
// HTTP: GET /connections/me
// RESPONSE: {"profile1": [...], "profile2": [...], "profile3": [...], "profile4": [...]}
func (h *ConnectionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.connections.GetConnections(r.Context(), caller(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleRequests returns the caller's pending requests.
//
// HTTP: GET /connections/me/requests
func (h *ConnectionHandler) HandleRequests(w http.ResponseWriter, r *http.Request) {
	list, err := h.connections.GetRequests(r.Context(), caller(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleMyCount answers GET /connections/me/count.
func (h *ConnectionHandler) HandleMyCount(w http.ResponseWriter, r *http.Request) {
	h.writeCount(w, r, caller(r))
}

// HandleCount answers GET /connections/{tagferId}/count.
func (h *ConnectionHandler) HandleCount(w http.ResponseWriter, r *http.Request) {
	h.writeCount(w, r, chi.URLParam(r, "tagferId"))
}

func (h *ConnectionHandler) writeCount(w http.ResponseWriter, r *http.Request, userID string) {
	n, err := h.connections.Count(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

// HandleSend sends a request sharing the caller's slot {profileN}.
//
// HTTP: PUT /connections/me/{profileN}
// REQUEST BODY: {"toTagferId": "..."}
func (h *ConnectionHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	n, err := profileN(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req connectionRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.connections.SendRequest(r.Context(), caller(r), n, req.ToTagferID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, empty)
}

// HandleAccept accepts a request, sharing the caller's slot {profileN} back.
//
// HTTP: POST /connections/me/{profileN}
// REQUEST BODY: {"fromTagferId": "...", "fromProfileN": 2}
func (h *ConnectionHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	n, err := profileN(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var req connectionRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	err = h.connections.AcceptRequest(r.Context(), req.FromTagferID, req.FromProfileN, caller(r), n)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, empty)
}

// HandleCancel removes a pending request. Either side may be omitted and
// defaults to the caller, so the same call withdraws a sent request or
// declines a received one. The caller must be one of the two sides.
//
// HTTP: DELETE /connections/me
// REQUEST BODY: {"fromTagferId"?: "...", "toTagferId"?: "..."}
func (h *ConnectionHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	me := caller(r)
	from, to := req.FromTagferID, req.ToTagferID
	if from == "" {
		from = me
	}
	if to == "" {
		to = me
	}
	if !strings.EqualFold(from, me) && !strings.EqualFold(to, me) {
		writeError(w, h.logger, apperror.ValidationFailed("tagferId", "caller must be the sender or the recipient"))
		return
	}
	if err := h.connections.CancelRequest(r.Context(), from, to); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, empty)
}

// HandleRemove deletes the connection with {tagferId}.
//
// HTTP: DELETE /connections/me/{tagferId}
func (h *ConnectionHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	if err := h.connections.Remove(r.Context(), caller(r), chi.URLParam(r, "tagferId")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, empty)
}

// HandleAutoAccept sets the slot used to accept requests automatically.
//
// HTTP: PUT /connections/me/autoAccept
// REQUEST BODY: {"profileN": 1}   (0 turns it off)
func (h *ConnectionHandler) HandleAutoAccept(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.connections.SetAutoAccept(r.Context(), caller(r), req.ProfileN); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, empty)
}
