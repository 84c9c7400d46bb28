package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestNormalizeEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Bob@Example.com", "bob@example.com"},
		{"  alice@example.com  ", "alice@example.com"},
		{"MIXED.Case+tag@Host.NET", "mixed.case+tag@host.net"},
		{"already@lower.org", "already@lower.org"},
	}
	for _, tc := range cases {
		if got := NormalizeEmail(tc.in); got != tc.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Error("expected 23505 to be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign key violation should not be a unique violation")
	}
	if isUniqueViolation(errors.New("plain error")) {
		t.Error("plain error should not be a unique violation")
	}
	// Wrapped errors should still be detected.
	wrapped := errorsJoin(&pgconn.PgError{Code: "23505"})
	if !isUniqueViolation(wrapped) {
		t.Error("wrapped unique violation not detected")
	}
}

func errorsJoin(err error) error {
	return &wrapErr{err}
}

type wrapErr struct{ inner error }

func (w *wrapErr) Error() string { return "wrapped: " + w.inner.Error() }
func (w *wrapErr) Unwrap() error { return w.inner }

func TestHasCredential(t *testing.T) {
	var i Identity
	if i.HasCredential() {
		t.Error("identity without hash should not have a credential")
	}

	empty := ""
	i.PasswordHash = &empty
	if i.HasCredential() {
		t.Error("empty hash should not count as a credential")
	}

	hash := "$2a$10$abcdefghijklmnopqrstuv"
	i.PasswordHash = &hash
	if !i.HasCredential() {
		t.Error("identity with hash should have a credential")
	}
}

func TestInvitePending(t *testing.T) {
	var i Identity
	if i.InvitePending() {
		t.Error("identity without token should not have a pending invite")
	}

	token := "deadbeef"
	exp := time.Now().Add(time.Hour)
	i.InviteTokenHash = &token
	i.InviteExpiresAt = &exp
	if !i.InvitePending() {
		t.Error("identity with token should have a pending invite")
	}
}

func TestCanInvite(t *testing.T) {
	if !CanInvite(RoleAdmin) || !CanInvite(RoleManager) {
		t.Error("admin and manager should be allowed to invite")
	}
	if CanInvite(RoleMember) || CanInvite("") || CanInvite("root") {
		t.Error("member and unknown roles must not be allowed to invite")
	}
}

func TestValidRole(t *testing.T) {
	for _, r := range []string{RoleAdmin, RoleManager, RoleMember} {
		if !ValidRole(r) {
			t.Errorf("expected %q to be valid", r)
		}
	}
	for _, r := range []string{"", "org_admin", "Member"} {
		if ValidRole(r) {
			t.Errorf("expected %q to be invalid", r)
		}
	}
}
