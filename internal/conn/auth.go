package conn

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired is returned when the bearer token's exp claim has passed.
var ErrTokenExpired = errors.New("token expired")

// CheckToken inspects a bearer token before it is sent to the server.
//
// The signature is NOT verified here; the server owns the key. The check
// only avoids a round trip with a token that is malformed or already
// expired. An empty token is accepted (anonymous session).
func CheckToken(token string, now time.Time) error {
	if token == "" {
		return nil
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("malformed token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("malformed exp claim: %w", err)
	}
	if exp != nil && !now.Before(exp.Time) {
		return fmt.Errorf("%w at %s", ErrTokenExpired, exp.Time.UTC().Format(time.RFC3339))
	}

	nbf, err := claims.GetNotBefore()
	if err != nil {
		return fmt.Errorf("malformed nbf claim: %w", err)
	}
	if nbf != nil && now.Before(nbf.Time) {
		return fmt.Errorf("token not valid before %s", nbf.Time.UTC().Format(time.RFC3339))
	}

	return nil
}
