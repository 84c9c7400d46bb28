package identity

import "time"

// Role values assignable to an identity.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleMember  = "member"
)

// ValidRole reports whether s is one of the known roles.
func ValidRole(s string) bool {
	return s == RoleAdmin || s == RoleManager || s == RoleMember
}

// Identity represents a principal capable of authenticating against the
// dashboard. PasswordHash is nil for identities that were invited but have
// not yet redeemed their invitation.
type Identity struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	PasswordHash    *string    `json:"-"`
	Name            string     `json:"name"`
	Role            string     `json:"role"`
	EmailVerified   bool       `json:"email_verified"`
	Active          bool       `json:"active"`
	InviteTokenHash *string    `json:"-"`
	InviteExpiresAt *time.Time `json:"-"`
	InvitedBy       *string    `json:"invited_by,omitempty"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HasCredential reports whether password authentication is enabled for this
// identity. An identity without a credential and without a pending invitation
// is unreachable and indicates a data-integrity problem.
func (i *Identity) HasCredential() bool {
	return i.PasswordHash != nil && *i.PasswordHash != ""
}

// InvitePending reports whether the identity carries an unredeemed
// invitation token.
func (i *Identity) InvitePending() bool {
	return i.InviteTokenHash != nil && *i.InviteTokenHash != ""
}

// CanInvite reports whether an identity with the given role may issue
// invitations.
func CanInvite(role string) bool {
	return role == RoleAdmin || role == RoleManager
}

// CreateInput holds the fields for creating a credentialed identity.
type CreateInput struct {
	Email         string
	Name          string
	Role          string
	PasswordHash  string
	EmailVerified bool
	Active        bool
}

// InviteInput holds the fields for creating an invited, uncredentialed
// identity. TokenHash and ExpiresAt are always set together.
type InviteInput struct {
	Email     string
	Name      string
	Role      string
	TokenHash string
	ExpiresAt time.Time
	InvitedBy string
}
