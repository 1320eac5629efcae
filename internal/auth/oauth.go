package auth

// TWITTER SIGN-IN (OAuth 2.0 authorization code flow with PKCE):
//
//  1. The app calls GET /auth/twitter/token. We generate a random state and a
//     PKCE verifier, remember state → verifier for ten minutes, and return the
//     authorize URL.
//  2. The app opens that URL in a WebView; Twitter redirects to
//     /auth/twitter/username?state=...&code=...
//  3. We look the verifier up by state, exchange the code for an access
//     token, and call /2/users/me to learn the username.
//
// The verifier never leaves the server, so an intercepted code is useless.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/xid"
	"golang.org/x/oauth2"

	"github.com/tagfer/tagfer-server/internal/apperror"
)

const (
	pendingStateTTL  = 10 * time.Minute
	maxPendingStates = 10000
)

// ErrUnknownState is returned when a callback's state was never issued or
// has expired.
var ErrUnknownState = errors.New("auth: unknown or expired OAuth state")

// TwitterUser is the subset of /2/users/me we use.
type TwitterUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

// TwitterConfig holds the OAuth client settings. The endpoint URLs are
// configurable so tests can point them at an httptest server.
type TwitterConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	AuthURL      string
	TokenURL     string
	APIURL       string
}

// TwitterProvider drives the Twitter OAuth 2.0 handshake.
type TwitterProvider struct {
	config *oauth2.Config
	apiURL string
	// state → PKCE verifier for authorizations in flight
	pending *expirable.LRU[string, string]
}

// NewTwitterProvider builds a provider from cfg.
func NewTwitterProvider(cfg TwitterConfig) *TwitterProvider {
	return &TwitterProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{"users.read", "tweet.read"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		apiURL:  strings.TrimRight(cfg.APIURL, "/"),
		pending: expirable.NewLRU[string, string](maxPendingStates, nil, pendingStateTTL),
	}
}

// AuthURL starts a new authorization and returns its state token and the URL
// the user must visit.
func (p *TwitterProvider) AuthURL() (state, url string) {
	state = xid.New().String()
	verifier := oauth2.GenerateVerifier()
	p.pending.Add(state, verifier)
	return state, p.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Exchange completes the authorization identified by state and returns the
// signed-in user. A state can be used once.
func (p *TwitterProvider) Exchange(ctx context.Context, state, code string) (*TwitterUser, error) {
	verifier, ok := p.pending.Get(state)
	if !ok {
		return nil, ErrUnknownState
	}
	p.pending.Remove(state)

	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, apperror.Auth(apperror.CodeTwitterRequestTokenFail, err.Error())
	}

	client := p.config.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+"/2/users/me", nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building users/me request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, apperror.Network(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperror.Network(fmt.Errorf("twitter users/me returned status %d", resp.StatusCode))
	}

	var body struct {
		Data TwitterUser `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperror.New(apperror.ErrInfra, apperror.CodeUnparsableResponse, err.Error())
	}
	if body.Data.Username == "" {
		return nil, apperror.New(apperror.ErrInfra, apperror.CodeUnparsableResponse, "missing username")
	}
	return &body.Data, nil
}
