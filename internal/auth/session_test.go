package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jclermont/botdeck/internal/identity"
)

func testAccount() *Account {
	return &Account{
		ID:            "acct-1",
		Email:         "u1@example.com",
		Name:          "Test User",
		Role:          identity.RoleManager,
		EmailVerified: true,
		Active:        true,
	}
}

func TestMintVerifyRoundTrip(t *testing.T) {
	codec := NewTokenCodec("test-secret", time.Hour)

	token, err := codec.Mint(testAccount(), MethodPassword)
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	claims, err := codec.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "acct-1" {
		t.Errorf("subject mismatch: %q", claims.Subject)
	}
	if claims.Role != identity.RoleManager {
		t.Errorf("role mismatch: %q", claims.Role)
	}
	if !claims.EmailVerified || !claims.Active {
		t.Error("verified/active flags lost in round trip")
	}
	if claims.AuthMethod != MethodPassword {
		t.Errorf("auth method mismatch: %q", claims.AuthMethod)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	token, err := NewTokenCodec("secret-a", time.Hour).Mint(testAccount(), MethodPassword)
	if err != nil {
		t.Fatal(err)
	}

	_, err = NewTokenCodec("secret-b", time.Hour).Verify(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerify_Tampered(t *testing.T) {
	codec := NewTokenCodec("test-secret", time.Hour)
	token, err := codec.Mint(testAccount(), MethodPassword)
	if err != nil {
		t.Fatal(err)
	}

	// Flip a character in the payload segment.
	parts := strings.Split(token, ".")
	payload := []byte(parts[1])
	if payload[0] == 'A' {
		payload[0] = 'B'
	} else {
		payload[0] = 'A'
	}
	parts[1] = string(payload)

	if _, err := codec.Verify(strings.Join(parts, ".")); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for tampered token, got %v", err)
	}
}

func TestVerify_Garbage(t *testing.T) {
	codec := NewTokenCodec("test-secret", time.Hour)
	for _, tok := range []string{"", "not-a-jwt", "a.b", "a.b.c.d"} {
		if _, err := codec.Verify(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify(%q): expected ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestVerify_Expired(t *testing.T) {
	codec := NewTokenCodec("test-secret", time.Hour)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	codec.now = func() time.Time { return base }

	token, err := codec.Mint(testAccount(), MethodPassword)
	if err != nil {
		t.Fatal(err)
	}

	// Still valid just before expiry.
	codec.now = func() time.Time { return base.Add(time.Hour - time.Second) }
	if _, err := codec.Verify(token); err != nil {
		t.Fatalf("token should still verify before expiry: %v", err)
	}

	// Invalid just after.
	codec.now = func() time.Time { return base.Add(time.Hour + time.Second) }
	if _, err := codec.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after expiry, got %v", err)
	}
}

func TestRefresh_CarriesClaimsForwardWithoutStoreRead(t *testing.T) {
	codec := NewTokenCodec("test-secret", time.Hour)

	acct := testAccount()
	token, err := codec.Mint(acct, MethodGoogle)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := codec.Verify(token)
	if err != nil {
		t.Fatal(err)
	}

	// The identity's role changes in the store after minting. A refresh
	// derives from prior claims only, so the old role is carried forward
	// until the session expires.
	refreshed, err := codec.Refresh(claims)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	refreshedClaims, err := codec.Verify(refreshed)
	if err != nil {
		t.Fatal(err)
	}
	if refreshedClaims.Role != identity.RoleManager {
		t.Errorf("refresh must carry forward the minted role, got %q", refreshedClaims.Role)
	}
	if refreshedClaims.AuthMethod != MethodGoogle {
		t.Errorf("refresh must preserve auth method, got %q", refreshedClaims.AuthMethod)
	}
	if refreshedClaims.Subject != claims.Subject {
		t.Errorf("subject changed across refresh: %q", refreshedClaims.Subject)
	}
}

func TestRefresh_ExtendsExpiry(t *testing.T) {
	codec := NewTokenCodec("test-secret", time.Hour)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	codec.now = func() time.Time { return base }

	token, err := codec.Mint(testAccount(), MethodPassword)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := codec.Verify(token)
	if err != nil {
		t.Fatal(err)
	}

	// Refresh 50 minutes in; the new token must outlive the original expiry.
	codec.now = func() time.Time { return base.Add(50 * time.Minute) }
	refreshed, err := codec.Refresh(claims)
	if err != nil {
		t.Fatal(err)
	}

	codec.now = func() time.Time { return base.Add(90 * time.Minute) }
	if _, err := codec.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Error("original token should have expired")
	}
	if _, err := codec.Verify(refreshed); err != nil {
		t.Errorf("refreshed token should still verify: %v", err)
	}
}
