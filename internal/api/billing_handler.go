package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/jclermont/botdeck/internal/auth"
	"github.com/jclermont/botdeck/internal/billing"
	"github.com/jclermont/botdeck/internal/identity"
	"github.com/jclermont/botdeck/internal/metrics"
)

// identityGetter resolves the caller's identity row for purchaser checks.
type identityGetter interface {
	GetByID(ctx context.Context, id string) (*identity.Identity, error)
}

// billingHandler groups checkout HTTP handlers.
type billingHandler struct {
	mat        *billing.Materializer
	identities identityGetter
	metrics    *metrics.Metrics
}

func newBillingHandler(mat *billing.Materializer, identities identityGetter, m *metrics.Metrics) *billingHandler {
	return &billingHandler{mat: mat, identities: identities, metrics: m}
}

// Finalize handles POST /api/v1/billing/checkout/finalize.
func (h *billingHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "session_id is required")
		return
	}

	// The email fallback of the purchaser check compares against the
	// identity's current email, not a claim minted at login time.
	ident, err := h.identities.GetByID(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to resolve account")
		return
	}

	res, err := h.mat.Finalize(r.Context(), req.SessionID, ident.ID, ident.Email)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrSessionNotFound):
			h.metrics.IncFinalize("not_found")
			writeError(w, http.StatusNotFound, "session_not_found", "no such checkout session")
		case errors.Is(err, billing.ErrForbidden):
			h.metrics.IncFinalize("forbidden")
			writeError(w, http.StatusForbidden, "forbidden", "checkout session belongs to a different account")
		case errors.Is(err, billing.ErrPaymentIncomplete):
			h.metrics.IncFinalize("incomplete")
			writeError(w, http.StatusUnprocessableEntity, "payment_incomplete", "payment has not completed; retry after checkout finishes")
		default:
			h.metrics.IncFinalize("error")
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to finalize checkout")
		}
		return
	}

	body := map[string]interface{}{
		"bot":     res.Bot,
		"created": res.Created,
		"payment": res.Payment,
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
		// The plaintext access key is returned exactly once.
		body["access_key"] = res.AccessKey
		h.metrics.IncFinalize("created")
		h.metrics.IncBotMaterialized()
		auditLog(r, "checkout.finalized", "bot", res.Bot.ID, "session_id", req.SessionID)
	} else {
		h.metrics.IncFinalize("existing")
	}

	writeJSON(w, status, body)
}
