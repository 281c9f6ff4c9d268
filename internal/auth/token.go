package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignToken creates a signed HMAC-SHA256 session token for the identity.
func SignToken(id Identity, secret []byte, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      id.UserID,
		"username": id.Username,
		"iss":      "tally",
		"iat":      now.Unix(),
		"exp":      now.Add(expiry).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseToken validates a session token and reconstructs the Identity.
// Any parse, signature, or expiry failure is reported as ErrUnauthenticated.
func ParseToken(tokenString string, secret []byte) (Identity, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrUnauthenticated
	}

	sub, _ := claims["sub"].(string)
	username, _ := claims["username"].(string)
	if sub == "" || username == "" {
		return Identity{}, ErrUnauthenticated
	}
	return Identity{UserID: sub, Username: username}, nil
}
