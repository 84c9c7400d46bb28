package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no bot matches the lookup.
var ErrNotFound = errors.New("bot not found")

// ErrDuplicateSession is returned when a bot already exists for the payment
// session, which happens when two finalize calls race on the same session.
var ErrDuplicateSession = errors.New("payment session already materialized")

const botColumns = `id, name, description, plan, owner_id, payment_session_id,
	access_key_hash, access_key_prefix, created_at`

// Store provides database operations for bots.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new bot store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanBot(row pgx.Row) (*Bot, error) {
	b := &Bot{}
	err := row.Scan(&b.ID, &b.Name, &b.Description, &b.Plan, &b.OwnerID,
		&b.PaymentSessionID, &b.AccessKeyHash, &b.AccessKeyPrefix, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Create inserts a new bot. The unique constraint on payment_session_id is
// the arbiter when concurrent finalize calls insert for the same session;
// the loser gets ErrDuplicateSession.
func (s *Store) Create(ctx context.Context, in CreateInput) (*Bot, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO bots (id, name, description, plan, owner_id, payment_session_id,
		   access_key_hash, access_key_prefix)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+botColumns,
		uuid.NewString(), in.Name, in.Description, in.Plan, in.OwnerID,
		in.PaymentSessionID, in.AccessKeyHash, in.AccessKeyPrefix,
	)
	b, err := scanBot(row)
	if isUniqueViolation(err) {
		return nil, ErrDuplicateSession
	}
	if err != nil {
		return nil, fmt.Errorf("creating bot: %w", err)
	}
	return b, nil
}

// GetByID retrieves a bot by its primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*Bot, error) {
	b, err := scanBot(s.pool.QueryRow(ctx,
		`SELECT `+botColumns+` FROM bots WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting bot by id: %w", err)
	}
	return b, nil
}

// GetByPaymentSession retrieves the bot materialized from the given checkout
// session, if any.
func (s *Store) GetByPaymentSession(ctx context.Context, sessionID string) (*Bot, error) {
	b, err := scanBot(s.pool.QueryRow(ctx,
		`SELECT `+botColumns+` FROM bots WHERE payment_session_id = $1`, sessionID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting bot by payment session: %w", err)
	}
	return b, nil
}

// ListByOwner returns all bots owned by the given identity, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]*Bot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+botColumns+` FROM bots
		 WHERE owner_id = $1
		 ORDER BY created_at DESC, id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing bots: %w", err)
	}
	defer rows.Close()

	var bots []*Bot
	for rows.Next() {
		b := &Bot{}
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.Plan, &b.OwnerID,
			&b.PaymentSessionID, &b.AccessKeyHash, &b.AccessKeyPrefix, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning bot row: %w", err)
		}
		bots = append(bots, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bot rows: %w", err)
	}
	return bots, nil
}
