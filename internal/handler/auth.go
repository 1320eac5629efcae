package handler

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tagfer/tagfer-server/internal/apperror"
	"github.com/tagfer/tagfer-server/internal/auth"
	"github.com/tagfer/tagfer-server/internal/service"
)

// AuthHandler serves the account endpoints: signup, sign-in, existence
// checks, phone verification, contact lookup, password reset and the
// Twitter handshake used to link a Twitter username.
type AuthHandler struct {
	auth    *service.AuthService
	twitter *auth.TwitterProvider
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(authService *service.AuthService, twitter *auth.TwitterProvider, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: authService, twitter: twitter, logger: logger}
}

// =========================================================================
// EXISTENCE CHECKS
// =========================================================================

// HandleSessionExists answers GET /auth/session/{sessionId}/exists.
func (h *AuthHandler) HandleSessionExists(w http.ResponseWriter, r *http.Request) {
	ok, err := h.auth.SessionExists(r.Context(), chi.URLParam(r, "sessionId"))
	h.writeResult(w, ok, err)
}

// HandleEmailExists answers GET /auth/email/{email}/exists.
func (h *AuthHandler) HandleEmailExists(w http.ResponseWriter, r *http.Request) {
	ok, err := h.auth.EmailExists(r.Context(), chi.URLParam(r, "email"))
	h.writeResult(w, ok, err)
}

// HandleTagferIDExists answers GET /auth/tagferId/{tagferId}/exists.
func (h *AuthHandler) HandleTagferIDExists(w http.ResponseWriter, r *http.Request) {
	ok, err := h.auth.TagferIDExists(r.Context(), chi.URLParam(r, "tagferId"))
	h.writeResult(w, ok, err)
}

// HandlePhoneExists answers GET /auth/phone/{phoneNumber}/exists.
func (h *AuthHandler) HandlePhoneExists(w http.ResponseWriter, r *http.Request) {
	ok, err := h.auth.PhoneExists(r.Context(), chi.URLParam(r, "phoneNumber"))
	h.writeResult(w, ok, err)
}

func (h *AuthHandler) writeResult(w http.ResponseWriter, ok bool, err error) {
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ResultResponse{Result: ok})
}

// =========================================================================
// PHONE
// =========================================================================

type phoneRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Code        string `json:"code"`
}

// HandleSendPhoneCode texts a verification PIN.
//
// HTTP: POST /auth/phone/code
// REQUEST BODY: {"phoneNumber": "+15551234567"}
func (h *AuthHandler) HandleSendPhoneCode(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.auth.SendPhoneCode(r.Context(), req.PhoneNumber); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ResultResponse{Result: true})
}

// HandleVerifyPhoneCode checks a PIN.
//
// HTTP: POST /auth/phone/verify
// REQUEST BODY: {"phoneNumber": "+15551234567", "code": "123456"}
func (h *AuthHandler) HandleVerifyPhoneCode(w http.ResponseWriter, r *http.Request) {
	var req phoneRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.Code == "" {
		writeError(w, h.logger, apperror.ValidationFailed("code", "code is required"))
		return
	}
	ok, err := h.auth.VerifyPhoneCode(r.Context(), req.PhoneNumber, req.Code)
	h.writeResult(w, ok, err)
}

type findUsersRequest struct {
	PhoneNumbers []string `json:"phoneNumbers"`
}

// HandleFindUsersByPhone matches a contact list against registered users.
//
// HTTP: POST /auth/findUsers/byPhone
// REQUEST BODY: {"phoneNumbers": ["+15551234567", ...]}
// RESPONSE: {"inNetwork": [tagferId...], "outNetwork": [phone...], "failed": [phone...]}
func (h *AuthHandler) HandleFindUsersByPhone(w http.ResponseWriter, r *http.Request) {
	var req findUsersRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.PhoneNumbers == nil {
		writeError(w, h.logger, apperror.ValidationFailed("phoneNumbers", "phoneNumbers is required"))
		return
	}
	res, err := h.auth.FindUsersByPhone(r.Context(), req.PhoneNumbers)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// =========================================================================
// SIGNUP / SIGN-IN
// =========================================================================

// HandleSignup creates an account and signs it in.
//
// HTTP: PUT /auth/signup
// REQUEST BODY:
//
//	{
//	  "user":    {"tagferId", "email", "password", "phoneNumber"},
//	  "profile": {"fullName", "jobTitle", "companyName", "companyEmail", "companyPhoneNumber", "photoBytes"},
//	  "invites": {"requests": [tagferId...], "phoneNumbers": [phone...]}
//	}
//
// RESPONSE: {"sessionId": "..."}. SMS invites go out after the response.
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req service.SignupInput
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	res, err := h.auth.Signup(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{SessionID: res.SessionID})
}

// HandleSignIn authenticates by email or tagferId.
//
// HTTP: POST /auth/signin
// REQUEST BODY: {"email": "..." | "tagferId": "...", "password": "..."}
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req service.SignInInput
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	sessionID, err := h.auth.SignIn(r.Context(), req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{SessionID: sessionID})
}

// HandleSignOut ends the session named in the Authorization header. The
// response does not wait for the store.
//
// HTTP: POST /auth/signout
func (h *AuthHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	sessionID := auth.SessionIDFromHeader(r)
	if sessionID == "" {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: string(apperror.CodeNoSessionInAuthHeader)})
		return
	}
	h.auth.SignOut(r.Context(), sessionID)
	writeJSON(w, http.StatusOK, empty)
}

// =========================================================================
// PASSWORD RESET
// =========================================================================

type passwordResetRequest struct {
	Email    string `json:"email"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

// HandlePasswordReset mails a reset link.
//
// HTTP: POST /auth/passwordReset
// REQUEST BODY: {"email": "..."}
func (h *AuthHandler) HandlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, empty)
}

// HandlePasswordResetConfirm sets a new password from a reset token.
//
// HTTP: POST /auth/passwordReset/confirm
// REQUEST BODY: {"token": "...", "password": "..."}
func (h *AuthHandler) HandlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.auth.ConfirmPasswordReset(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, empty)
}

// =========================================================================
// TWITTER
// =========================================================================

type twitterTokenResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// HandleTwitterToken starts the Twitter handshake. The app opens url in a
// WebView; token identifies the handshake.
//
// HTTP: GET /auth/twitter/token
func (h *AuthHandler) HandleTwitterToken(w http.ResponseWriter, _ *http.Request) {
	state, url := h.twitter.AuthURL()
	writeJSON(w, http.StatusOK, twitterTokenResponse{Token: state, URL: url})
}

// bridgePage hands the result back to the app's WebView. The React Native
// bridge replaces window.postMessage once it is ready; until then the
// native function takes two arguments.
var bridgePage = template.Must(template.New("bridge").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Tagfer</title></head>
<body>
<script>
var payload = {{.}};
function waitForBridge() {
  if (window.postMessage.length !== 1) {
    setTimeout(waitForBridge, 200);
  } else {
    window.postMessage(JSON.stringify(payload));
  }
}
window.onload = waitForBridge;
</script>
</body>
</html>
`))

// HandleTwitterUsername is the OAuth redirect target. It always renders the
// bridge page: with {"username": ...} on success and {} when the user
// denied access or the exchange failed.
//
// HTTP: GET /auth/twitter/username?state=...&code=...
func (h *AuthHandler) HandleTwitterUsername(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	payload := map[string]string{}

	switch {
	case q.Get("error") != "":
		h.logger.Info("twitter authorization denied", slog.String("error", q.Get("error")))
	case q.Get("code") == "" || q.Get("state") == "":
		h.logger.Warn("twitter callback without code or state")
	default:
		user, err := h.twitter.Exchange(r.Context(), q.Get("state"), q.Get("code"))
		if err != nil {
			h.logger.Error("twitter exchange failed", slog.String("error", err.Error()))
			break
		}
		payload["username"] = user.Username
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := bridgePage.Execute(w, payload); err != nil {
		h.logger.Error("rendering twitter bridge page", slog.String("error", err.Error()))
	}
}
