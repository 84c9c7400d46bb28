package invite

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jclermont/botdeck/internal/identity"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrForbidden is returned when the requester's role may not issue
	// invitations.
	ErrForbidden = errors.New("requester may not issue invitations")

	// ErrMissingField is returned for empty required input.
	ErrMissingField = errors.New("email and name are required")

	// ErrInvalidRole is returned for an unknown invitee role.
	ErrInvalidRole = errors.New("unknown role")

	// ErrConflict is returned when the invitee already redeemed an
	// invitation and has a password set. The record is never touched.
	ErrConflict = errors.New("invitation already redeemed")

	// ErrInvalidToken is returned on redemption for unknown, expired, or
	// superseded tokens. The three cases are indistinguishable on purpose.
	ErrInvalidToken = errors.New("invalid or expired invitation token")
)

// Invitation outcomes.
const (
	StatusCreated  = "created"
	StatusReissued = "reissued"
)

// Store is the subset of the identity store used by the manager.
type Store interface {
	GetByEmail(ctx context.Context, email string) (*identity.Identity, error)
	CreateInvited(ctx context.Context, in identity.InviteInput) (*identity.Identity, error)
	ReissueInvite(ctx context.Context, id, tokenHash string, expiresAt time.Time, invitedBy string) (*identity.Identity, error)
	GetByInviteTokenHash(ctx context.Context, tokenHash string) (*identity.Identity, error)
	Redeem(ctx context.Context, id, passwordHash string) (*identity.Identity, error)
}

// Sender dispatches invitation email.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Result describes the outcome of an Invite call. MailSent is false when the
// invitation record was persisted but the email could not be delivered; an
// operator can re-invite to resend.
type Result struct {
	Identity *identity.Identity `json:"identity"`
	Status   string             `json:"status"`
	MailSent bool               `json:"mail_sent"`
}

// Manager issues, reissues, and redeems time-boxed invitation tokens.
type Manager struct {
	store   Store
	mail    Sender
	ttl     time.Duration
	baseURL string
	now     func() time.Time // injectable clock for testing
}

// NewManager creates an invitation manager. Invitations expire ttl after
// issuance; redemption links are built on baseURL.
func NewManager(store Store, mail Sender, ttl time.Duration, baseURL string) *Manager {
	return &Manager{
		store:   store,
		mail:    mail,
		ttl:     ttl,
		baseURL: baseURL,
		now:     time.Now,
	}
}

// GenerateToken creates a new invitation token. It returns the plaintext
// (mailed to the invitee, never stored) and its hex-encoded SHA-256 hash
// (stored, so a database leak does not yield redeemable tokens).
func GenerateToken() (plaintext, hash string, err error) {
	b := make([]byte, 24) // 24 bytes -> 32 base64url chars
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generating random bytes: %w", err)
	}
	plaintext = base64.RawURLEncoding.EncodeToString(b)
	return plaintext, HashToken(plaintext), nil
}

// HashToken returns the hex-encoded SHA-256 hash of a plaintext token.
func HashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

// Invite provisions a not-yet-existing identity behind a time-boxed token,
// or reissues the token for an identity that was invited but has not
// redeemed. Reissuing replaces the stored hash, so the previous token is
// invalid the instant the new one is persisted.
func (m *Manager) Invite(ctx context.Context, requesterID, requesterRole, email, name, role string) (*Result, error) {
	if !identity.CanInvite(requesterRole) {
		return nil, ErrForbidden
	}
	if email == "" || name == "" {
		return nil, ErrMissingField
	}
	if role == "" {
		role = identity.RoleMember
	}
	if !identity.ValidRole(role) {
		return nil, ErrInvalidRole
	}

	plaintext, hash, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	expiresAt := m.now().Add(m.ttl)

	existing, err := m.store.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, identity.ErrNotFound) {
		return nil, fmt.Errorf("looking up invitee: %w", err)
	}

	if errors.Is(err, identity.ErrNotFound) {
		created, err := m.store.CreateInvited(ctx, identity.InviteInput{
			Email:     email,
			Name:      name,
			Role:      role,
			TokenHash: hash,
			ExpiresAt: expiresAt,
			InvitedBy: requesterID,
		})
		if err == nil {
			return m.finish(ctx, created, StatusCreated, plaintext), nil
		}
		if !errors.Is(err, identity.ErrEmailTaken) {
			return nil, fmt.Errorf("creating invited identity: %w", err)
		}
		// A concurrent invite for the same email won the insert; fall
		// through and reissue against the winner's row.
		existing, err = m.store.GetByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("re-reading invitee after conflict: %w", err)
		}
	}

	if existing.HasCredential() {
		return nil, ErrConflict
	}

	reissued, err := m.store.ReissueInvite(ctx, existing.ID, hash, expiresAt, requesterID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			// The invitee redeemed between our read and the update.
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("reissuing invite: %w", err)
	}

	return m.finish(ctx, reissued, StatusReissued, plaintext), nil
}

// finish dispatches the invitation email. Delivery failure is non-fatal:
// the token is already persisted, so the caller learns the record state and
// that the message did not go out.
func (m *Manager) finish(ctx context.Context, ident *identity.Identity, status, plaintext string) *Result {
	link := fmt.Sprintf("%s/invite/%s", m.baseURL, plaintext)
	body := fmt.Sprintf(
		"Hi %s,\n\nYou have been invited to Botdeck. Set your password here:\n\n%s\n\nThe link expires in %s.\n",
		ident.Name, link, m.ttl)

	sent := true
	if err := m.mail.Send(ctx, ident.Email, "You're invited to Botdeck", body); err != nil {
		slog.Error("invitation email delivery failed", "identity_id", ident.ID, "error", err)
		sent = false
	}

	slog.Info("invitation issued", "identity_id", ident.ID, "status", status, "mail_sent", sent)
	return &Result{Identity: ident, Status: status, MailSent: sent}
}

// Redeem exchanges a valid invitation token for a first password. The
// transition is terminal for the token value.
func (m *Manager) Redeem(ctx context.Context, token, newPassword string) (*identity.Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	if newPassword == "" {
		return nil, ErrMissingField
	}

	ident, err := m.store.GetByInviteTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("looking up invitation: %w", err)
	}

	if ident.InviteExpiresAt == nil || m.now().After(*ident.InviteExpiresAt) {
		return nil, ErrInvalidToken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	redeemed, err := m.store.Redeem(ctx, ident.ID, string(hash))
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("redeeming invite: %w", err)
	}

	slog.Info("invitation redeemed", "identity_id", redeemed.ID)
	return redeemed, nil
}
