package bot

import "time"

// Bot represents a provisioned support bot owned by an identity. Each bot
// is materialized from exactly one completed checkout session.
type Bot struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	Plan             string    `json:"plan"`
	OwnerID          string    `json:"owner_id"`
	PaymentSessionID string    `json:"-"`
	AccessKeyHash    string    `json:"-"`
	AccessKeyPrefix  string    `json:"access_key_prefix"`
	CreatedAt        time.Time `json:"created_at"`
}

// CreateInput holds the fields required to materialize a new bot.
type CreateInput struct {
	Name             string
	Description      string
	Plan             string
	OwnerID          string
	PaymentSessionID string
	AccessKeyHash    string
	AccessKeyPrefix  string
}
