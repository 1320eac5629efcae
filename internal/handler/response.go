package handler

// RESPONSE HELPERS:
// Every endpoint answers with a JSON object. Failures use one shape:
//
//	{"error": "auth/invalid-session-id"}
//
// The mobile app switches on that code, and it expects store failures to
// arrive with HTTP 200. Only malformed requests (bad JSON, missing
// attributes, profile slots outside 1..4) are rejected with 400; the 401s
// for the shared secret and the session header come from the auth
// middleware.

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tagfer/tagfer-server/internal/apperror"
	"github.com/tagfer/tagfer-server/internal/auth"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ResultResponse answers yes/no questions.
type ResultResponse struct {
	Result bool `json:"result"`
}

// SessionResponse carries a freshly created session.
type SessionResponse struct {
	SessionID string `json:"sessionId"`
}

// empty is the body of successful commands.
var empty = struct{}{}

// maxBodyBytes bounds request bodies; profile photos arrive base64 encoded.
const maxBodyBytes = 10 << 20

// writeJSON sends data with the given status.
//
// Headers must be set before WriteHeader; anything set afterwards is
// silently dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a service error to its wire code and status.
//
// Errors that never became an *apperror.AppError are driver or programming
// errors; they are logged with full detail and sent as the generic database
// code so nothing internal leaks to the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusOK, ErrorResponse{Error: string(apperror.CodeDatabaseError)})
		return
	}

	status := http.StatusOK
	switch {
	case errors.Is(err, apperror.ErrValidation), appErr.Field == "profileN":
		status = http.StatusBadRequest
	case errors.Is(err, apperror.ErrInfra):
		attrs := []any{slog.String("code", string(appErr.Code)), slog.String("error", err.Error())}
		if cause := appErr.Cause(); cause != nil {
			attrs = append(attrs, slog.String("cause", cause.Error()))
		}
		logger.Error("infrastructure error", attrs...)
	}
	writeJSON(w, status, ErrorResponse{Error: string(appErr.Code)})
}

// readJSON decodes the request body into dst. An empty body leaves dst
// untouched; callers validate required attributes themselves.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}

// profileN reads the {profileN} URL parameter.
func profileN(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "profileN")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed("profileN", "profileN must be a number")
	}
	return n, nil
}

// caller returns the tagferId that RequireSession stored on the request.
// Handlers mounted behind RequireSession always have one.
func caller(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}
