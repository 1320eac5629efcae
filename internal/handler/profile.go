package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tagfer/tagfer-server/internal/model"
	"github.com/tagfer/tagfer-server/internal/service"
)

// ProfileHandler serves the caller's profile slots, other users' shared
// profiles and the suggestion feed.
type ProfileHandler struct {
	profiles *service.ProfileService
	logger   *slog.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

type profileResponse struct {
	Profile *model.Profile `json:"profile"`
}

// HandleGetMine returns one of the caller's slots; an empty slot is {}.
//
// HTTP: GET /profiles/me/{profileN}
func (h *ProfileHandler) HandleGetMine(w http.ResponseWriter, r *http.Request) {
	n, err := profileN(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	p, err := h.profiles.Get(r.Context(), caller(r), n)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: p})
}

// HandleUpdateMine merges the body into one of the caller's slots. Only the
// fields present are changed; "photoBytes" uploads a new photo.
//
// HTTP: POST /profiles/me/{profileN}
func (h *ProfileHandler) HandleUpdateMine(w http.ResponseWriter, r *http.Request) {
	n, err := profileN(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	fields := map[string]any{}
	if err := readJSON(w, r, &fields); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.profiles.Update(r.Context(), caller(r), n, fields); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, empty)
}

type qrCodeResponse struct {
	QRCode string `json:"qrcode"`
}

// HandleQRCode returns the caller's referral QR code as a base64 PNG.
//
// HTTP: GET /profiles/me/{profileN}/qrcode
func (h *ProfileHandler) HandleQRCode(w http.ResponseWriter, r *http.Request) {
	n, err := profileN(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	code, err := h.profiles.QRCode(r.Context(), caller(r), n)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, qrCodeResponse{QRCode: code})
}

// HandleGetByTagferID returns the profile another user shares with the
// caller.
//
// HTTP: GET /profiles/{tagferId}
func (h *ProfileHandler) HandleGetByTagferID(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.GetShared(r.Context(), caller(r), chi.URLParam(r, "tagferId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Profile: p})
}

// HandleSuggest returns the next page of the suggestion feed.
//
// HTTP: GET /profiles/suggest?pageToken=...
// RESPONSE: {"profiles": [...], "nextPageToken": "..."}
func (h *ProfileHandler) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	page, err := h.profiles.Suggest(r.Context(), r.URL.Query().Get("pageToken"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
