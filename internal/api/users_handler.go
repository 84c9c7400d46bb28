package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jclermont/botdeck/internal/identity"
)

// identityLister is the subset of the identity store used for user listing.
type identityLister interface {
	List(ctx context.Context) ([]*identity.Identity, error)
}

// usersHandler groups user-management HTTP handlers.
type usersHandler struct {
	store identityLister
}

func newUsersHandler(store identityLister) *usersHandler {
	return &usersHandler{store: store}
}

// userView is the listing projection of an identity.
type userView struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	Role          string     `json:"role"`
	EmailVerified bool       `json:"email_verified"`
	Active        bool       `json:"active"`
	InvitePending bool       `json:"invite_pending"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// List handles GET /api/v1/users.
func (h *usersHandler) List(w http.ResponseWriter, r *http.Request) {
	idents, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list users")
		return
	}

	users := make([]userView, 0, len(idents))
	for _, i := range idents {
		users = append(users, userView{
			ID:            i.ID,
			Email:         i.Email,
			Name:          i.Name,
			Role:          i.Role,
			EmailVerified: i.EmailVerified,
			Active:        i.Active,
			InvitePending: i.InvitePending(),
			LastLoginAt:   i.LastLoginAt,
			CreatedAt:     i.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}
