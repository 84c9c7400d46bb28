package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/jclermont/botdeck/internal/identity"
	"golang.org/x/crypto/bcrypt"
)

// --- mock store ---

type mockIdentityStore struct {
	byEmail map[string]*identity.Identity

	created      []identity.CreateInput
	createErr    error
	createResult *identity.Identity
	verified     []string
	touched      []string
	touchErr     error
	// missFirstLookup makes the first GetByEmail report not-found even when
	// the row exists, simulating a concurrent writer landing in between.
	missFirstLookup bool
}

func (m *mockIdentityStore) GetByEmail(_ context.Context, email string) (*identity.Identity, error) {
	if m.missFirstLookup {
		m.missFirstLookup = false
		return nil, identity.ErrNotFound
	}
	i, ok := m.byEmail[identity.NormalizeEmail(email)]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return i, nil
}

func (m *mockIdentityStore) Create(_ context.Context, in identity.CreateInput) (*identity.Identity, error) {
	m.created = append(m.created, in)
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.createResult, nil
}

func (m *mockIdentityStore) SetVerified(_ context.Context, id string) (*identity.Identity, error) {
	m.verified = append(m.verified, id)
	for _, i := range m.byEmail {
		if i.ID == id {
			i.EmailVerified = true
			i.Active = true
			return i, nil
		}
	}
	return nil, identity.ErrNotFound
}

func (m *mockIdentityStore) TouchLastLogin(_ context.Context, id string) error {
	m.touched = append(m.touched, id)
	return m.touchErr
}

func hashOf(t *testing.T, password string) *string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	s := string(h)
	return &s
}

func activeIdentity(t *testing.T, id, email, password string) *identity.Identity {
	t.Helper()
	return &identity.Identity{
		ID:            id,
		Email:         email,
		PasswordHash:  hashOf(t, password),
		Name:          "Test User",
		Role:          identity.RoleMember,
		EmailVerified: true,
		Active:        true,
	}
}

// --- Authenticate ---

func TestAuthenticate_Success(t *testing.T) {
	store := &mockIdentityStore{byEmail: map[string]*identity.Identity{
		"u1@example.com": activeIdentity(t, "id-1", "u1@example.com", "correct-horse"),
	}}
	svc := NewService(store, identity.RoleMember)

	acct, err := svc.Authenticate(context.Background(), "U1@Example.com", "correct-horse")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if acct.ID != "id-1" || acct.Role != identity.RoleMember || !acct.Active || !acct.EmailVerified {
		t.Errorf("unexpected account projection: %+v", acct)
	}
	if len(store.touched) != 1 || store.touched[0] != "id-1" {
		t.Errorf("expected last login touch for id-1, got %v", store.touched)
	}
}

func TestAuthenticate_FailureBranchesAreIdentical(t *testing.T) {
	inactive := activeIdentity(t, "id-2", "inactive@example.com", "pw")
	inactive.Active = false

	unverified := activeIdentity(t, "id-3", "unverified@example.com", "pw")
	unverified.EmailVerified = false

	invited := &identity.Identity{
		ID:            "id-4",
		Email:         "invited@example.com",
		Name:          "Invited",
		Role:          identity.RoleMember,
		EmailVerified: true,
		Active:        true,
	}

	store := &mockIdentityStore{byEmail: map[string]*identity.Identity{
		"inactive@example.com":   inactive,
		"unverified@example.com": unverified,
		"invited@example.com":    invited,
		"known@example.com":      activeIdentity(t, "id-5", "known@example.com", "right-password"),
	}}
	svc := NewService(store, identity.RoleMember)

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "nobody@example.com", "whatever"},
		{"inactive account", "inactive@example.com", "pw"},
		{"unverified email", "unverified@example.com", "pw"},
		{"pending invitation", "invited@example.com", "any-password"},
		{"wrong password", "known@example.com", "wrong-password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			acct, err := svc.Authenticate(context.Background(), tc.email, tc.password)
			if acct != nil {
				t.Fatal("expected nil account")
			}
			// Every branch must yield the exact same error value.
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
			if err.Error() != ErrInvalidCredentials.Error() {
				t.Errorf("error message differs between branches: %q", err.Error())
			}
		})
	}
	if len(store.touched) != 0 {
		t.Errorf("failed attempts must not touch last login, got %v", store.touched)
	}
}

func TestAuthenticate_InactiveIgnoresCorrectPassword(t *testing.T) {
	ident := activeIdentity(t, "id-6", "locked@example.com", "correct-horse")
	ident.Active = false
	store := &mockIdentityStore{byEmail: map[string]*identity.Identity{"locked@example.com": ident}}
	svc := NewService(store, identity.RoleMember)

	_, err := svc.Authenticate(context.Background(), "locked@example.com", "correct-horse")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("inactive identity must fail even with correct password, got %v", err)
	}
}

func TestAuthenticate_TouchFailureDoesNotFailLogin(t *testing.T) {
	store := &mockIdentityStore{
		byEmail: map[string]*identity.Identity{
			"u1@example.com": activeIdentity(t, "id-1", "u1@example.com", "pw"),
		},
		touchErr: errors.New("db unavailable"),
	}
	svc := NewService(store, identity.RoleMember)

	if _, err := svc.Authenticate(context.Background(), "u1@example.com", "pw"); err != nil {
		t.Fatalf("login should survive a failed last-login write, got %v", err)
	}
}

// --- Reconcile ---

func TestReconcile_CreatesNewIdentity(t *testing.T) {
	store := &mockIdentityStore{byEmail: map[string]*identity.Identity{}}
	store.createResult = &identity.Identity{
		ID:            "new-id",
		Email:         "new@example.com",
		Name:          "New Person",
		Role:          identity.RoleManager,
		EmailVerified: true,
		Active:        true,
	}
	svc := NewService(store, identity.RoleManager)

	acct, err := svc.Reconcile(context.Background(), "new@example.com", "New Person")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if acct.ID != "new-id" || acct.Role != identity.RoleManager {
		t.Errorf("unexpected account: %+v", acct)
	}

	if len(store.created) != 1 {
		t.Fatalf("expected one create, got %d", len(store.created))
	}
	in := store.created[0]
	if in.Role != identity.RoleManager {
		t.Errorf("expected configured role, got %q", in.Role)
	}
	if !in.EmailVerified || !in.Active {
		t.Error("google sign-ups must be created verified and active")
	}
	if in.PasswordHash == "" {
		t.Error("new identity must receive a placeholder credential hash")
	}
}

func TestReconcile_DefaultRoleIsConfigurable(t *testing.T) {
	store := &mockIdentityStore{byEmail: map[string]*identity.Identity{}}
	store.createResult = &identity.Identity{ID: "x", Role: identity.RoleMember, EmailVerified: true, Active: true}
	svc := NewService(store, identity.RoleMember)

	if _, err := svc.Reconcile(context.Background(), "m@example.com", "M"); err != nil {
		t.Fatal(err)
	}
	if store.created[0].Role != identity.RoleMember {
		t.Errorf("expected member role, got %q", store.created[0].Role)
	}
}

func TestReconcile_LosingRaceReturnsWinner(t *testing.T) {
	winner := activeIdentity(t, "winner-id", "race@example.com", "pw")
	store := &mockIdentityStore{
		byEmail:         map[string]*identity.Identity{"race@example.com": winner},
		createErr:       identity.ErrEmailTaken,
		missFirstLookup: true,
	}
	svc := NewService(store, identity.RoleMember)

	// The initial lookup misses, the insert hits the unique constraint, and
	// the re-read must return the winner's row.
	acct, err := svc.Reconcile(context.Background(), "race@example.com", "Racer")
	if err != nil {
		t.Fatalf("loser of the race must recover, got %v", err)
	}
	if acct.ID != "winner-id" {
		t.Errorf("expected winner's row, got %+v", acct)
	}
	if len(store.created) != 1 {
		t.Errorf("expected exactly one create attempt, got %d", len(store.created))
	}
}

func TestReconcile_VerifiesExistingUnverified(t *testing.T) {
	ident := activeIdentity(t, "id-7", "old@example.com", "pw")
	ident.EmailVerified = false
	ident.Active = false
	store := &mockIdentityStore{byEmail: map[string]*identity.Identity{"old@example.com": ident}}
	svc := NewService(store, identity.RoleMember)

	acct, err := svc.Reconcile(context.Background(), "old@example.com", "Old")
	if err != nil {
		t.Fatal(err)
	}
	if !acct.EmailVerified || !acct.Active {
		t.Error("reconcile must verify and reactivate an existing identity")
	}
	if len(store.verified) != 1 || store.verified[0] != "id-7" {
		t.Errorf("expected SetVerified call for id-7, got %v", store.verified)
	}
	if len(store.created) != 0 {
		t.Error("existing identity must not be re-created")
	}
}

func TestRandomCredentialHash(t *testing.T) {
	h1, err := randomCredentialHash()
	if err != nil {
		t.Fatal(err)
	}
	h2, err := randomCredentialHash()
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("placeholder hashes must be unique")
	}
	if len(h1) == 0 {
		t.Error("expected non-empty hash")
	}
}
