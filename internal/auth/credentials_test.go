package auth

import (
	"context"
	"errors"
	"testing"

	"tally/internal/storage"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := NewService(storage.NewMemoryRepository())
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", "Abc123"); err != nil {
		t.Fatalf("register: %v", err)
	}

	id, err := svc.Authenticate(ctx, "alice", "Abc123")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id.Username != "alice" || id.UserID == "" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc := NewService(storage.NewMemoryRepository())
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", "Abc123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.Register(ctx, "alice", "Other456"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestRegisterRejectsMalformedInput(t *testing.T) {
	svc := NewService(storage.NewMemoryRepository())
	ctx := context.Background()

	cases := []struct {
		name     string
		username string
		password string
	}{
		{"empty username", "", "Abc123"},
		{"empty password", "alice", ""},
		{"username with space", "al ice", "Abc123"},
		{"username with slash", "al/ice", "Abc123"},
		{"password with quote", "alice", "ab'c"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := svc.Register(ctx, tc.username, tc.password); !errors.Is(err, ErrInvalidFormat) {
				t.Fatalf("expected ErrInvalidFormat, got %v", err)
			}
		})
	}

	// Dots and underscores are allowed.
	if err := svc.Register(ctx, "a_l.ice", "p_w.123"); err != nil {
		t.Fatalf("allow-listed characters rejected: %v", err)
	}
}

func TestAuthenticateFailuresAreIndistinguishable(t *testing.T) {
	svc := NewService(storage.NewMemoryRepository())
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", "Abc123"); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Unknown user and wrong password must surface as the same error so
	// failed logins leak nothing about which usernames exist.
	if _, err := svc.Authenticate(ctx, "bob", "Abc123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestPasswordIsStoredHashed(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewService(repo)
	ctx := context.Background()

	if err := svc.Register(ctx, "alice", "Abc123"); err != nil {
		t.Fatalf("register: %v", err)
	}
	user, err := repo.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if string(user.PasswordHash) == "Abc123" {
		t.Fatal("password stored in plaintext")
	}
	if len(user.PasswordHash) == 0 {
		t.Fatal("no password hash stored")
	}
}
