package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tagfer/tagfer-server/internal/apperror"
)

// contextKey is unexported so no other package can collide with our keys.
type contextKey string

const userIDKey contextKey = "userID"

// SessionResolver maps a session token to the tagferId it belongs to.
type SessionResolver interface {
	ResolveSession(ctx context.Context, sessionID string) (string, error)
}

// RequireAppSecret guards routes the app calls before it has a session.
// The Authorization header must carry the shared secret verbatim.
func RequireAppSecret(secret string) func(http.Handler) http.Handler {
	want := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("Authorization"))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				writeAuthError(w, http.StatusUnauthorized, apperror.CodeUnauthorizedAccess)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession resolves the session token in the Authorization header
// (optionally "Bearer "-prefixed) and stores the caller's tagferId in the
// request context.
//
// A missing header is a 401. An unknown session is reported like every other
// store error: HTTP 200 with {"error": "auth/invalid-session-id"}.
func RequireSession(sessions SessionResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := SessionIDFromHeader(r)
			if sessionID == "" {
				writeAuthError(w, http.StatusUnauthorized, apperror.CodeNoSessionInAuthHeader)
				return
			}

			userID, err := sessions.ResolveSession(r.Context(), sessionID)
			if err != nil {
				var appErr *apperror.AppError
				if !errors.As(err, &appErr) || errors.Is(err, apperror.ErrInfra) {
					logger.Error("resolving session", slog.String("error", err.Error()))
				}
				writeAuthError(w, http.StatusOK, apperror.CodeOf(err))
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionIDFromHeader extracts the session token from the Authorization
// header, or "" when there is none.
func SessionIDFromHeader(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		h = strings.TrimSpace(h[7:])
	}
	return h
}

// UserIDFromContext returns the tagferId set by RequireSession.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// WithUserID returns a copy of ctx carrying userID, as RequireSession does.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func writeAuthError(w http.ResponseWriter, status int, code apperror.Code) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": string(code)})
}
