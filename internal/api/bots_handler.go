package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jclermont/botdeck/internal/auth"
	"github.com/jclermont/botdeck/internal/bot"
	"github.com/jclermont/botdeck/internal/identity"
)

// botStore is the subset of the bot store used by the HTTP handlers.
type botStore interface {
	GetByID(ctx context.Context, id string) (*bot.Bot, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*bot.Bot, error)
}

// botsHandler groups bot HTTP handlers.
type botsHandler struct {
	store botStore
}

func newBotsHandler(store botStore) *botsHandler {
	return &botsHandler{store: store}
}

// List handles GET /api/v1/bots. It returns the caller's own bots.
func (h *botsHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	bots, err := h.store.ListByOwner(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list bots")
		return
	}
	if bots == nil {
		bots = []*bot.Bot{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"bots": bots})
}

// Get handles GET /api/v1/bots/{id}. Non-owners get the same 404 as a
// missing bot so IDs cannot be probed.
func (h *botsHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	b, err := h.store.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, bot.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "bot not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load bot")
		return
	}

	if b.OwnerID != claims.Subject && claims.Role != identity.RoleAdmin {
		writeError(w, http.StatusNotFound, "not_found", "bot not found")
		return
	}

	writeJSON(w, http.StatusOK, b)
}
