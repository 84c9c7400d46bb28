package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no identity matches the lookup.
var ErrNotFound = errors.New("identity not found")

// ErrEmailTaken is returned when an insert would violate the email uniqueness
// constraint. Callers treat it as a normal, recoverable outcome: the losing
// writer re-reads the winner's row.
var ErrEmailTaken = errors.New("email already registered")

// Store provides database operations for identities.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new identity store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NormalizeEmail lowercases and trims an email address. Every read and write
// goes through this so the uniqueness constraint sees one canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

const identityColumns = `id, email, password_hash, name, role, email_verified, active,
	invite_token_hash, invite_expires_at, invited_by, last_login_at, created_at, updated_at`

func scanIdentity(row pgx.Row) (*Identity, error) {
	var i Identity
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.PasswordHash,
		&i.Name,
		&i.Role,
		&i.EmailVerified,
		&i.Active,
		&i.InviteTokenHash,
		&i.InviteExpiresAt,
		&i.InvitedBy,
		&i.LastLoginAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &i, nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Create inserts a credentialed identity. Returns ErrEmailTaken if the email
// is already registered.
func (s *Store) Create(ctx context.Context, in CreateInput) (*Identity, error) {
	query := fmt.Sprintf(`INSERT INTO identities
		(id, email, password_hash, name, role, email_verified, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING %s`, identityColumns)

	row := s.pool.QueryRow(ctx, query,
		uuid.NewString(),
		NormalizeEmail(in.Email),
		in.PasswordHash,
		in.Name,
		in.Role,
		in.EmailVerified,
		in.Active,
	)
	ident, err := scanIdentity(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating identity: %w", err)
	}
	return ident, nil
}

// CreateInvited inserts an uncredentialed identity carrying an invitation
// token hash and expiry. Returns ErrEmailTaken on a duplicate email.
func (s *Store) CreateInvited(ctx context.Context, in InviteInput) (*Identity, error) {
	query := fmt.Sprintf(`INSERT INTO identities
		(id, email, name, role, email_verified, active, invite_token_hash, invite_expires_at, invited_by)
		VALUES ($1, $2, $3, $4, false, false, $5, $6, $7)
		RETURNING %s`, identityColumns)

	row := s.pool.QueryRow(ctx, query,
		uuid.NewString(),
		NormalizeEmail(in.Email),
		in.Name,
		in.Role,
		in.TokenHash,
		in.ExpiresAt,
		in.InvitedBy,
	)
	ident, err := scanIdentity(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating invited identity: %w", err)
	}
	return ident, nil
}

// GetByEmail retrieves an identity by normalized email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*Identity, error) {
	query := fmt.Sprintf(`SELECT %s FROM identities WHERE email = $1`, identityColumns)
	ident, err := scanIdentity(s.pool.QueryRow(ctx, query, NormalizeEmail(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting identity by email: %w", err)
	}
	return ident, nil
}

// GetByID retrieves an identity by primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*Identity, error) {
	query := fmt.Sprintf(`SELECT %s FROM identities WHERE id = $1`, identityColumns)
	ident, err := scanIdentity(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting identity by id: %w", err)
	}
	return ident, nil
}

// GetByInviteTokenHash retrieves an identity by the hash of its invitation
// token. Only the current token matches; reissuing replaces the stored hash
// and instantly invalidates the previous token.
func (s *Store) GetByInviteTokenHash(ctx context.Context, tokenHash string) (*Identity, error) {
	query := fmt.Sprintf(`SELECT %s FROM identities WHERE invite_token_hash = $1`, identityColumns)
	ident, err := scanIdentity(s.pool.QueryRow(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting identity by invite token: %w", err)
	}
	return ident, nil
}

// ReissueInvite replaces the invitation token, expiry, and inviter on an
// identity that has not yet set a password. The WHERE clause guards against
// racing a concurrent redemption: once password_hash is set the update
// matches nothing and ErrNotFound is returned.
func (s *Store) ReissueInvite(ctx context.Context, id, tokenHash string, expiresAt time.Time, invitedBy string) (*Identity, error) {
	query := fmt.Sprintf(`UPDATE identities
		SET invite_token_hash = $2, invite_expires_at = $3, invited_by = $4, updated_at = now()
		WHERE id = $1 AND password_hash IS NULL
		RETURNING %s`, identityColumns)

	ident, err := scanIdentity(s.pool.QueryRow(ctx, query, id, tokenHash, expiresAt, invitedBy))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reissuing invite: %w", err)
	}
	return ident, nil
}

// Redeem sets the identity's first password and clears the invitation state.
// The transition is one-way: the WHERE clause only matches while a token is
// still stored, so a redeemed token can never be redeemed again.
func (s *Store) Redeem(ctx context.Context, id, passwordHash string) (*Identity, error) {
	query := fmt.Sprintf(`UPDATE identities
		SET password_hash = $2, invite_token_hash = NULL, invite_expires_at = NULL,
			email_verified = true, active = true, updated_at = now()
		WHERE id = $1 AND invite_token_hash IS NOT NULL
		RETURNING %s`, identityColumns)

	ident, err := scanIdentity(s.pool.QueryRow(ctx, query, id, passwordHash))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redeeming invite: %w", err)
	}
	return ident, nil
}

// SetVerified marks an identity's email verified and reactivates it. Used
// when an external-provider sign-in proves ownership of the address.
func (s *Store) SetVerified(ctx context.Context, id string) (*Identity, error) {
	query := fmt.Sprintf(`UPDATE identities
		SET email_verified = true, active = true, updated_at = now()
		WHERE id = $1
		RETURNING %s`, identityColumns)

	ident, err := scanIdentity(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("marking identity verified: %w", err)
	}
	return ident, nil
}

// TouchLastLogin records a successful authentication.
func (s *Store) TouchLastLogin(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE identities SET last_login_at = now(), updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

// List returns all identities ordered by created_at DESC.
func (s *Store) List(ctx context.Context) ([]*Identity, error) {
	query := fmt.Sprintf(`SELECT %s FROM identities ORDER BY created_at DESC`, identityColumns)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	defer rows.Close()

	var idents []*Identity
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning identity row: %w", err)
		}
		idents = append(idents, i)
	}
	return idents, rows.Err()
}
