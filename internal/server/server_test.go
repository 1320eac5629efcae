package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagfer/tagfer-server/internal/config"
)

const testSecret = "app-secret"

func newTestServer(t *testing.T) (*Server, config.Config) {
	t.Helper()
	cfg := config.Config{
		DBPath:           ":memory:",
		AppSecret:        testSecret,
		TokenSecret:      "server-test-token-secret",
		VerificationTTL:  time.Minute,
		SessionCacheSize: 16,
		SessionCacheTTL:  time.Minute,
		SuggestPageSize:  10,
		PageTokenTTL:     time.Hour,
		ResetTokenTTL:    time.Hour,
		DefaultProfile:   "Business",
		ReferralTokens:   10,
		BaseURL:          "https://tagfer.test",
		PhoneRegion:      "US",
		PasswordHashCost: 4,
		Media: config.MediaConfig{
			Dir:     t.TempDir(),
			BaseURL: "http://localhost/media",
		},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s, cfg
}

func serve(s *Server, method, target, authorization, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := New(context.Background(), config.Config{DBPath: ":memory:"}, logger)

	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rr := serve(s, http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("Content-Type"))
}

func TestSecretRoutes(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name          string
		authorization string
		wantStatus    int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong secret", "nope", http.StatusUnauthorized},
		{"right secret", testSecret, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(s, http.MethodGet, "/auth/email/alice@example.com/exists", tt.authorization, "")
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestSessionRoutes(t *testing.T) {
	s, _ := newTestServer(t)

	rr := serve(s, http.MethodGet, "/connections/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = serve(s, http.MethodGet, "/connections/me", "Bearer not-a-session", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"error":"auth/invalid-session-id"}`, rr.Body.String())
}

func TestSignupThenUseSession(t *testing.T) {
	s, _ := newTestServer(t)

	signup := `{"user": {"tagferId": "alice", "email": "alice@example.com", "password": "hunter22"},
	            "profile": {"fullName": "Alice"}}`
	rr := serve(s, http.MethodPut, "/auth/signup", testSecret, signup)
	require.Equal(t, http.StatusOK, rr.Code)

	var res struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	require.NotEmpty(t, res.SessionID)

	rr = serve(s, http.MethodGet, "/profiles/me/1", "Bearer "+res.SessionID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"fullName":"Alice"`)

	rr = serve(s, http.MethodGet, "/connections/me/count", res.SessionID, "")
	assert.JSONEq(t, `{"count":0}`, rr.Body.String())

	rr = serve(s, http.MethodPut, "/connections/me/autoAccept", res.SessionID, `{"profileN": 2}`)
	assert.JSONEq(t, `{}`, rr.Body.String())

	rr = serve(s, http.MethodGet, "/profiles/suggest", testSecret, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"tagferId":"alice"`)

	rr = serve(s, http.MethodPost, "/auth/signout", res.SessionID, "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMediaServesBucketFiles(t *testing.T) {
	s, cfg := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Media.Dir, "alice-profile1.jpeg"), []byte("jpeg"), 0o644))

	rr := serve(s, http.MethodGet, "/media/alice-profile1.jpeg", "", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "jpeg", rr.Body.String())
}
