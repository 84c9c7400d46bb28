package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jclermont/botdeck/internal/identity"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is the single failure value for password
// authentication. Every failure branch (unknown email, inactive account,
// unverified email, pending invitation, wrong password) returns this same
// value so callers cannot distinguish them. The specific branch is logged
// at debug level only.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Account is the minimal identity projection carried through the rest of a
// request after authentication.
type Account struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
	Active        bool   `json:"active"`
}

// IdentityStore is the subset of the identity store used by the auth service.
type IdentityStore interface {
	GetByEmail(ctx context.Context, email string) (*identity.Identity, error)
	Create(ctx context.Context, in identity.CreateInput) (*identity.Identity, error)
	SetVerified(ctx context.Context, id string) (*identity.Identity, error)
	TouchLastLogin(ctx context.Context, id string) error
}

// Service provides password authentication and external-identity
// reconciliation backed by the identity store.
type Service struct {
	store IdentityStore
	// googleRole is the role assigned to identities created on first Google
	// sign-in (config: auth.google_default_role).
	googleRole string
}

// NewService creates a new authentication service.
func NewService(store IdentityStore, googleRole string) *Service {
	return &Service{store: store, googleRole: googleRole}
}

// Authenticate verifies an email/password pair and returns the account
// projection on success. All failures surface as ErrInvalidCredentials;
// infrastructure errors are returned wrapped and must be translated to a
// generic failure by the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Account, error) {
	ident, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			slog.Debug("authentication failed", "reason", "unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up identity: %w", err)
	}

	if !ident.Active || !ident.EmailVerified {
		slog.Debug("authentication failed", "reason", "inactive or unverified", "identity_id", ident.ID)
		return nil, ErrInvalidCredentials
	}

	if !ident.HasCredential() {
		// Invited but never redeemed; password auth is not enabled yet.
		slog.Debug("authentication failed", "reason", "no credential", "identity_id", ident.ID)
		return nil, ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(*ident.PasswordHash), []byte(password)) != nil {
		slog.Debug("authentication failed", "reason", "password mismatch", "identity_id", ident.ID)
		return nil, ErrInvalidCredentials
	}

	if err := s.store.TouchLastLogin(ctx, ident.ID); err != nil {
		// The login itself succeeded; losing the timestamp is not worth
		// failing the request over.
		slog.Warn("failed to record last login", "identity_id", ident.ID, "error", err)
	}

	return accountOf(ident), nil
}

// Reconcile maps an externally verified email + display name onto a local
// identity, creating one if absent. Google's sign-in is treated as proof of
// email ownership, so an existing unverified identity is flipped verified
// and reactivated.
func (s *Service) Reconcile(ctx context.Context, email, name string) (*Account, error) {
	ident, err := s.store.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, identity.ErrNotFound) {
		return nil, fmt.Errorf("looking up identity: %w", err)
	}

	if errors.Is(err, identity.ErrNotFound) {
		// New identities get a random, unguessable credential hash so they
		// never sit in the "no credential" state reserved for pending
		// invitations.
		hash, err := randomCredentialHash()
		if err != nil {
			return nil, fmt.Errorf("generating placeholder credential: %w", err)
		}

		created, err := s.store.Create(ctx, identity.CreateInput{
			Email:         email,
			Name:          name,
			Role:          s.googleRole,
			PasswordHash:  hash,
			EmailVerified: true,
			Active:        true,
		})
		if err == nil {
			slog.Info("identity created from google sign-in", "identity_id", created.ID, "role", created.Role)
			return accountOf(created), nil
		}
		if !errors.Is(err, identity.ErrEmailTaken) {
			return nil, fmt.Errorf("creating identity: %w", err)
		}

		// Lost a creation race; the unique constraint on email decided the
		// winner. Re-read and reconcile that row instead.
		ident, err = s.store.GetByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("re-reading identity after conflict: %w", err)
		}
	}

	if !ident.EmailVerified {
		ident, err = s.store.SetVerified(ctx, ident.ID)
		if err != nil {
			return nil, fmt.Errorf("verifying identity: %w", err)
		}
	}

	if err := s.store.TouchLastLogin(ctx, ident.ID); err != nil {
		slog.Warn("failed to record last login", "identity_id", ident.ID, "error", err)
	}

	return accountOf(ident), nil
}

func accountOf(i *identity.Identity) *Account {
	return &Account{
		ID:            i.ID,
		Email:         i.Email,
		Name:          i.Name,
		Role:          i.Role,
		EmailVerified: i.EmailVerified,
		Active:        i.Active,
	}
}

// randomCredentialHash returns a bcrypt hash of 32 random bytes. The
// preimage is discarded, so the resulting credential can never be presented.
func randomCredentialHash() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(b)), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing placeholder credential: %w", err)
	}
	return string(hash), nil
}
