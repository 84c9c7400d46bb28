package api

import (
	"errors"
	"net/http"

	"github.com/jclermont/botdeck/internal/auth"
	"github.com/jclermont/botdeck/internal/invite"
	"github.com/jclermont/botdeck/internal/metrics"
)

// invitesHandler groups invitation HTTP handlers.
type invitesHandler struct {
	mgr     *invite.Manager
	codec   *auth.TokenCodec
	metrics *metrics.Metrics
}

func newInvitesHandler(mgr *invite.Manager, codec *auth.TokenCodec, m *metrics.Metrics) *invitesHandler {
	return &invitesHandler{mgr: mgr, codec: codec, metrics: m}
}

// Create handles POST /api/v1/invitations.
func (h *invitesHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	var req struct {
		Email string `json:"email"`
		Name  string `json:"name"`
		Role  string `json:"role"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	res, err := h.mgr.Invite(r.Context(), claims.Subject, claims.Role, req.Email, req.Name, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, invite.ErrForbidden):
			writeError(w, http.StatusForbidden, "forbidden", "your role may not issue invitations")
		case errors.Is(err, invite.ErrMissingField), errors.Is(err, invite.ErrInvalidRole):
			writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		case errors.Is(err, invite.ErrConflict):
			h.metrics.IncInvitation("conflict")
			writeError(w, http.StatusConflict, "already_registered", "this email already has an active account")
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to create invitation")
		}
		return
	}

	h.metrics.IncInvitation(res.Status)
	if !res.MailSent {
		h.metrics.IncMailFailure()
	}
	auditLog(r, "invitation."+res.Status, "identity", res.Identity.ID, "invitee_email", res.Identity.Email)

	status := http.StatusCreated
	if res.Status == invite.StatusReissued {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]interface{}{
		"identity":  res.Identity,
		"status":    res.Status,
		"mail_sent": res.MailSent,
	})
}

// Redeem handles POST /api/v1/invitations/redeem.
func (h *invitesHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if len(req.Password) < 8 {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "password must be at least 8 characters")
		return
	}

	ident, err := h.mgr.Redeem(r.Context(), req.Token, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, invite.ErrInvalidToken):
			writeError(w, http.StatusUnprocessableEntity, "invalid_token", "invitation token is invalid or expired")
		case errors.Is(err, invite.ErrMissingField):
			writeError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to redeem invitation")
		}
		return
	}

	// Sign the new user straight in so the first password is also the
	// first login.
	acct := &auth.Account{
		ID:            ident.ID,
		Email:         ident.Email,
		Name:          ident.Name,
		Role:          ident.Role,
		EmailVerified: ident.EmailVerified,
		Active:        ident.Active,
	}
	token, err := h.codec.Mint(acct, auth.MethodPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create session")
		return
	}

	h.metrics.IncInvitation("redeemed")
	auditLog(r, "invitation.redeemed", "identity", ident.ID)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  accountPayload(acct),
	})
}
