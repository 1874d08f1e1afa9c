package transport

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpiry extracts the expiry claim from a JWT access token without
// verifying its signature; verification is the server's job, the claim is
// only used to anticipate expiry locally.
func TokenExpiry(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, err
	}
	expiry, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if expiry == nil {
		return time.Time{}, errors.New("token has no expiry claim")
	}
	return expiry.Time, nil
}
