// Package tokenx inspects bearer tokens issued by the Inkwell API.
//
// The client never verifies signatures (the server does that on every
// request); it only reads the registered claims, so an already-expired
// stored credential can be discarded without a network round-trip.
package tokenx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoExpiry is returned when the token carries no exp claim.
var ErrNoExpiry = errors.New("token has no expiry claim")

// ExpiresAt returns the expiry time encoded in the token. The signature
// is not verified. Malformed tokens return an error.
func ExpiresAt(raw string) (time.Time, error) {
	parser := jwt.NewParser()

	var claims jwt.RegisteredClaims
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}

// Expired reports whether the token's expiry lies in the past. Tokens
// without an exp claim, or tokens that cannot be parsed at all, are not
// treated as expired here; the server remains the authority for those.
func Expired(raw string, now time.Time) bool {
	exp, err := ExpiresAt(raw)
	if err != nil {
		return false
	}
	return exp.Before(now)
}
