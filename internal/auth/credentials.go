package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"tally/internal/core"
	"tally/internal/storage"
)

const bcryptCost = 10

// UserStore persists username -> password-hash pairs. Both the SQLite and
// the in-memory repositories implement it.
type UserStore interface {
	CreateUser(ctx context.Context, u core.User) error
	GetUserByUsername(ctx context.Context, username string) (core.User, error)
}

// Service is the credential store: it registers users and verifies logins.
type Service struct {
	users UserStore
}

func NewService(users UserStore) *Service {
	return &Service{users: users}
}

// Register creates a new user with a salted bcrypt hash of the password.
// The plaintext is never stored. Fails with ErrInvalidFormat on malformed
// input and ErrAlreadyExists on a duplicate username.
func (s *Service) Register(ctx context.Context, username, password string) error {
	if !validCredentialString(username) || !validCredentialString(password) {
		return ErrInvalidFormat
	}

	// bcrypt ignores input past 72 bytes; truncate explicitly so the same
	// boundary applies on registration and login.
	passwordBytes := []byte(password)
	if len(passwordBytes) > 72 {
		passwordBytes = passwordBytes[:72]
	}
	hash, err := bcrypt.GenerateFromPassword(passwordBytes, bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := core.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "User registered", "user_id", user.ID, "username", username)
	return nil
}

// Authenticate verifies a username/password pair and returns an Identity on
// success. Unknown users and wrong passwords are reported identically.
func (s *Service) Authenticate(ctx context.Context, username, password string) (Identity, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, fmt.Errorf("load user: %w", err)
	}

	passwordBytes := []byte(password)
	if len(passwordBytes) > 72 {
		passwordBytes = passwordBytes[:72]
	}
	// CompareHashAndPassword is constant time over the hash comparison.
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, passwordBytes); err != nil {
		return Identity{}, ErrInvalidCredentials
	}

	return Identity{UserID: user.ID, Username: user.Username}, nil
}

// validCredentialString reports whether s is non-empty and contains only
// letters, digits, underscore, and dot.
func validCredentialString(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}
