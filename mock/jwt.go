package mock

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// createAccessToken mints a signed HS256 access token for user with the
// service's configured lifetime.
func (s *Service) createAccessToken(user *account) (string, error) {
	s.mu.Lock()
	ttl := s.accessTTL
	s.mu.Unlock()
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  user.username,
		"uid":  user.id,
		"role": user.role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// verifyAccessToken validates signature and expiry and returns the subject.
func (s *Service) verifyAccessToken(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("token is not valid")
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	return subject, nil
}
