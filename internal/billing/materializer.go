package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jclermont/botdeck/internal/bot"
)

// ErrForbidden is returned when the caller is not the checkout session's
// purchaser.
var ErrForbidden = errors.New("session belongs to a different purchaser")

// ErrPaymentIncomplete is returned when the checkout session has not been
// paid. The caller may retry after payment completes.
var ErrPaymentIncomplete = errors.New("payment not completed")

// BotStore is the subset of the bot store the materializer needs.
type BotStore interface {
	Create(ctx context.Context, in bot.CreateInput) (*bot.Bot, error)
	GetByPaymentSession(ctx context.Context, sessionID string) (*bot.Bot, error)
}

// Result is the outcome of finalizing a checkout session. AccessKey is the
// plaintext bot key, present only when this call created the bot; repeat
// calls return the existing bot with no key. Payment echoes the session's
// normalized state on every successful call.
type Result struct {
	Bot       *bot.Bot
	Created   bool
	AccessKey string
	Payment   PaymentView
}

// Materializer turns completed checkout sessions into provisioned bots,
// exactly once per session.
type Materializer struct {
	provider Provider
	bots     BotStore
	logger   *slog.Logger
}

func NewMaterializer(provider Provider, bots BotStore, logger *slog.Logger) *Materializer {
	return &Materializer{provider: provider, bots: bots, logger: logger}
}

// Finalize verifies the checkout session and materializes its bot. It is
// idempotent: the unique constraint on payment_session_id arbitrates
// concurrent calls, and every successful call for a given session returns
// the same bot.
func (m *Materializer) Finalize(ctx context.Context, sessionID, callerID, callerEmail string) (*Result, error) {
	sess, err := m.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Ownership is checked before payment status so a mismatched caller
	// learns nothing about the session's state. Sessions created by the
	// dashboard stamp the purchasing account's id into metadata; email
	// equality covers sessions that predate the stamp.
	if pid := strings.TrimSpace(sess.Metadata["purchaser_id"]); pid != "" {
		if pid != callerID {
			return nil, ErrForbidden
		}
	} else if !strings.EqualFold(strings.TrimSpace(sess.PurchaserEmail), strings.TrimSpace(callerEmail)) {
		return nil, ErrForbidden
	}
	if !sess.Paid {
		return nil, ErrPaymentIncomplete
	}

	if existing, err := m.bots.GetByPaymentSession(ctx, sessionID); err == nil {
		return &Result{Bot: existing, Created: false, Payment: sess.View()}, nil
	} else if !errors.Is(err, bot.ErrNotFound) {
		return nil, err
	}

	key, plaintext, err := bot.GenerateAccessKey()
	if err != nil {
		return nil, fmt.Errorf("generating access key: %w", err)
	}

	in := bot.CreateInput{
		Name:             metadataOr(sess.Metadata, "bot_name", "Support Bot"),
		Description:      sess.Metadata["bot_description"],
		Plan:             metadataOr(sess.Metadata, "plan", "starter"),
		OwnerID:          callerID,
		PaymentSessionID: sessionID,
		AccessKeyHash:    key.Hash,
		AccessKeyPrefix:  key.Prefix,
	}

	created, err := m.bots.Create(ctx, in)
	if errors.Is(err, bot.ErrDuplicateSession) {
		// A concurrent finalize won the insert. Return its bot.
		winner, rerr := m.bots.GetByPaymentSession(ctx, sessionID)
		if rerr != nil {
			return nil, fmt.Errorf("reading bot after duplicate session: %w", rerr)
		}
		return &Result{Bot: winner, Created: false, Payment: sess.View()}, nil
	}
	if err != nil {
		return nil, err
	}

	m.logger.Info("bot materialized",
		"bot_id", created.ID,
		"session_id", sessionID,
		"plan", created.Plan)

	return &Result{Bot: created, Created: true, AccessKey: plaintext, Payment: sess.View()}, nil
}

func metadataOr(md map[string]string, key, fallback string) string {
	if v := md[key]; v != "" {
		return v
	}
	return fallback
}
