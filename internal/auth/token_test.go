package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	want := Identity{UserID: "u1", Username: "alice"}

	token, err := SignToken(want, secret, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := ParseToken(token, secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != want {
		t.Fatalf("identity: got %+v, want %+v", got, want)
	}
}

func TestTokenRejections(t *testing.T) {
	secret := []byte("test-secret")
	id := Identity{UserID: "u1", Username: "alice"}

	expired, err := SignToken(id, secret, -time.Minute)
	if err != nil {
		t.Fatalf("sign expired: %v", err)
	}
	valid, err := SignToken(id, secret, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := []struct {
		name   string
		token  string
		secret []byte
	}{
		{"garbage", "not-a-token", secret},
		{"empty", "", secret},
		{"wrong secret", valid, []byte("other-secret")},
		{"expired", expired, secret},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseToken(tc.token, tc.secret); !errors.Is(err, ErrUnauthenticated) {
				t.Fatalf("expected ErrUnauthenticated, got %v", err)
			}
		})
	}
}
