package oauth

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/jclermont/botdeck/internal/crypto"
)

// ErrBadState is returned when a callback state value fails to unseal,
// fails to parse, or has expired.
var ErrBadState = errors.New("invalid oauth state")

// stateTTL bounds how long a consent-screen round trip may take.
const stateTTL = 10 * time.Minute

type statePayload struct {
	Nonce    string `json:"n"`
	IssuedAt int64  `json:"t"`
}

// StateSealer produces and checks the opaque state parameter carried
// through the OAuth redirect. The value is AES-GCM sealed so callbacks
// cannot be forged or replayed past the TTL.
type StateSealer struct {
	cipher *crypto.Cipher
	now    func() time.Time
}

func NewStateSealer(cipher *crypto.Cipher) *StateSealer {
	return &StateSealer{cipher: cipher, now: time.Now}
}

// Seal mints a fresh sealed state value.
func (s *StateSealer) Seal() (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	payload, err := json.Marshal(statePayload{
		Nonce:    hex.EncodeToString(nonce),
		IssuedAt: s.now().Unix(),
	})
	if err != nil {
		return "", err
	}
	return s.cipher.Seal(payload)
}

// Check unseals a callback state value and enforces the TTL.
func (s *StateSealer) Check(state string) error {
	plain, err := s.cipher.Open(state)
	if err != nil {
		return ErrBadState
	}
	var payload statePayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return ErrBadState
	}
	issued := time.Unix(payload.IssuedAt, 0)
	if s.now().Sub(issued) > stateTTL {
		return ErrBadState
	}
	return nil
}
