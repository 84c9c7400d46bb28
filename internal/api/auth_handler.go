package api

import (
	"errors"
	"net/http"

	"github.com/jclermont/botdeck/internal/auth"
	"github.com/jclermont/botdeck/internal/metrics"
	"github.com/jclermont/botdeck/internal/oauth"
)

// authHandler groups authentication HTTP handlers.
type authHandler struct {
	svc     *auth.Service
	codec   *auth.TokenCodec
	google  *oauth.Google
	state   *oauth.StateSealer
	metrics *metrics.Metrics
}

func newAuthHandler(svc *auth.Service, codec *auth.TokenCodec, google *oauth.Google, state *oauth.StateSealer, m *metrics.Metrics) *authHandler {
	return &authHandler{svc: svc, codec: codec, google: google, state: state, metrics: m}
}

func accountPayload(acct *auth.Account) map[string]interface{} {
	return map[string]interface{}{
		"id":             acct.ID,
		"email":          acct.Email,
		"name":           acct.Name,
		"role":           acct.Role,
		"email_verified": acct.EmailVerified,
	}
}

// Login handles POST /api/v1/auth/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "email and password are required")
		return
	}

	acct, err := h.svc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.metrics.IncAuthFailure(auth.MethodPassword)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "authentication failed")
		return
	}

	token, err := h.codec.Mint(acct, auth.MethodPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create session")
		return
	}

	h.metrics.IncAuthSuccess(auth.MethodPassword)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  accountPayload(acct),
	})
}

// Logout handles POST /api/v1/auth/logout. Sessions are stateless JWTs, so
// logout is a client-side discard; the endpoint exists so clients have a
// uniform call to make.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /api/v1/auth/session. It echoes the verified claims
// and re-mints a token with a fresh expiry.
func (h *authHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	token, err := h.codec.Refresh(claims)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to refresh session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user": map[string]interface{}{
			"id":             claims.Subject,
			"role":           claims.Role,
			"email_verified": claims.EmailVerified,
			"auth_method":    claims.AuthMethod,
		},
	})
}

// GoogleBegin handles GET /api/v1/auth/google. It seals a state value and
// redirects to the consent screen.
func (h *authHandler) GoogleBegin(w http.ResponseWriter, r *http.Request) {
	state, err := h.state.Seal()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to start sign-in")
		return
	}
	http.Redirect(w, r, h.google.AuthCodeURL(state), http.StatusFound)
}

// GoogleCallback handles GET /api/v1/auth/google/callback.
func (h *authHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if err := h.state.Check(q.Get("state")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_state", "state parameter is missing or invalid")
		return
	}

	code := q.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "code parameter is required")
		return
	}

	profile, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.metrics.IncAuthFailure(auth.MethodGoogle)
		writeError(w, http.StatusUnauthorized, "exchange_failed", "could not verify the sign-in")
		return
	}
	if !profile.EmailVerified {
		h.metrics.IncAuthFailure(auth.MethodGoogle)
		writeError(w, http.StatusUnauthorized, "unverified_email", "the Google account's email is not verified")
		return
	}

	acct, err := h.svc.Reconcile(r.Context(), profile.Email, profile.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "sign-in failed")
		return
	}

	token, err := h.codec.Mint(acct, auth.MethodGoogle)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create session")
		return
	}

	h.metrics.IncAuthSuccess(auth.MethodGoogle)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  accountPayload(acct),
	})
}
