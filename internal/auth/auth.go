// Package auth implements the credential store and session handling:
// registration, login, opaque identities, and signed session tokens.
package auth

import "errors"

var (
	// ErrInvalidFormat is returned when a username or password is empty or
	// contains characters outside the allow-listed set.
	ErrInvalidFormat = errors.New("invalid username or password format")

	// ErrAlreadyExists is returned when registering a username that is taken.
	ErrAlreadyExists = errors.New("username already exists")

	// ErrInvalidCredentials covers both unknown usernames and wrong
	// passwords so login failures do not leak which usernames exist.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthenticated is returned when an operation requires an active
	// session and none is set.
	ErrUnauthenticated = errors.New("not authenticated")
)

// Identity is the opaque handle returned by a successful login. It is
// threaded explicitly into every ledger and recurrence call; there is no
// process-global logged-in flag.
type Identity struct {
	UserID   string
	Username string
}
