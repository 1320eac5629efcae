package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/tagfer/tagfer-server/internal/auth"
	"github.com/tagfer/tagfer-server/internal/handler"
	"github.com/tagfer/tagfer-server/internal/mailer"
	"github.com/tagfer/tagfer-server/internal/phone"
	"github.com/tagfer/tagfer-server/internal/repository/sqlite"
	"github.com/tagfer/tagfer-server/internal/service"
	"github.com/tagfer/tagfer-server/internal/storage"
	"github.com/tagfer/tagfer-server/internal/task"
)

// =========================================================================
// TEST HARNESS
// =========================================================================
//
// Handlers are exercised against the real services over an in-memory
// SQLite database. Only the outside world is faked: SMS, mail and Twitter.

type captureSender struct {
	mu   sync.Mutex
	sent map[string]string
}

func (s *captureSender) Send(_ context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = make(map[string]string)
	}
	s.sent[to] = body
	return nil
}

func (s *captureSender) last(to string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[to]
}

type testAPI struct {
	sms         *captureSender
	tasks       *task.Group
	auth        *handler.AuthHandler
	profiles    *handler.ProfileHandler
	connections *handler.ConnectionHandler
	notes       *handler.NoteHandler
	twitter     *httptest.Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bucket, err := storage.NewFileBucket(t.TempDir(), "http://localhost/media")
	require.NoError(t, err)
	tokens, err := auth.NewTokenService("handler-test-secret-0123456789")
	require.NoError(t, err)

	api := &testAPI{sms: &captureSender{}, tasks: task.NewGroup(logger)}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = api.tasks.Shutdown(ctx)
	})

	api.twitter = fakeTwitter(t)
	twitter := auth.NewTwitterProvider(auth.TwitterConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		CallbackURL:  "http://localhost/auth/twitter/username",
		AuthURL:      api.twitter.URL + "/i/oauth2/authorize",
		TokenURL:     api.twitter.URL + "/2/oauth2/token",
		APIURL:       api.twitter.URL,
	})

	phones := phone.NewNormalizer("US")
	identity := service.NewIdentityService(db, auth.NewPasswordService(4), logger)
	sessions := service.NewSessionService(db, api.tasks, 0, 0, logger)
	verification := service.NewVerificationService(db, api.sms, time.Minute, logger)
	profiles := service.NewProfileService(db, db, bucket, tokens, service.ProfileConfig{
		PageSize:           2,
		PageTokenTTL:       time.Hour,
		BaseURL:            "https://tagfer.test",
		DefaultProfileName: "Business",
	}, logger)
	connections := service.NewConnectionService(db, profiles, logger)
	notes := service.NewNoteService(db, logger)
	invites := service.NewInviteService(api.sms, phones, profiles, api.tasks, 10, logger)
	authService := service.NewAuthService(service.AuthDeps{
		Identity:     identity,
		Sessions:     sessions,
		Verification: verification,
		Profiles:     profiles,
		Invites:      invites,
		Accounts:     db,
		Phones:       phones,
		Tokens:       tokens,
		Mailer:       mailer.NewLog(logger),
	}, time.Hour, "https://tagfer.test/reset-password", logger)

	api.auth = handler.NewAuthHandler(authService, twitter, logger)
	api.profiles = handler.NewProfileHandler(profiles, logger)
	api.connections = handler.NewConnectionHandler(connections, logger)
	api.notes = handler.NewNoteHandler(notes, logger)
	return api
}

// fakeTwitter serves the OAuth token endpoint and /2/users/me.
func fakeTwitter(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/2/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"access-123","token_type":"bearer","expires_in":7200}`))
	})
	mux.HandleFunc("/2/users/me", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":"42","name":"Alice","username":"alice_t"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// request describes one handler call.
type request struct {
	method string
	target string
	body   string
	userID string
	params map[string]string
	header map[string]string
}

// do runs h against req and returns the recorder.
func do(t *testing.T, h http.HandlerFunc, req request) *httptest.ResponseRecorder {
	t.Helper()
	method := req.method
	if method == "" {
		method = http.MethodGet
	}
	target := req.target
	if target == "" {
		target = "/"
	}
	r := httptest.NewRequest(method, target, bytes.NewBufferString(req.body))
	r.Header.Set("Content-Type", "application/json")
	for k, v := range req.header {
		r.Header.Set(k, v)
	}

	rctx := chi.NewRouteContext()
	for k, v := range req.params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	if req.userID != "" {
		ctx = auth.WithUserID(ctx, req.userID)
	}

	rr := httptest.NewRecorder()
	h(rr, r.WithContext(ctx))
	return rr
}

// decode unmarshals the recorded JSON body.
func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "body: %s", rr.Body.String())
	return out
}

// signup creates a user through the handler and returns its session id.
func (api *testAPI) signup(t *testing.T, id, phoneNumber string) string {
	t.Helper()
	body := `{
		"user": {"tagferId": "` + id + `", "email": "` + id + `@example.com", "password": "hunter22", "phoneNumber": "` + phoneNumber + `"},
		"profile": {"fullName": "Name ` + id + `", "jobTitle": "Engineer", "companyName": "Acme"}
	}`
	rr := do(t, api.auth.HandleSignup, request{method: http.MethodPut, body: body})
	require.Equal(t, http.StatusOK, rr.Code)
	out := decode(t, rr)
	sessionID, _ := out["sessionId"].(string)
	require.NotEmpty(t, sessionID, "body: %s", rr.Body.String())
	return sessionID
}

func jsonBody(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func trimmed(rr *httptest.ResponseRecorder) string {
	return strings.TrimSpace(rr.Body.String())
}
