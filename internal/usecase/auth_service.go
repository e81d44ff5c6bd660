package usecase

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"craftshop-backend/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

const tokenTTL = 7 * 24 * time.Hour

// AuthService issues and verifies the bearer tokens that carry caller
// identity. Only the admin has a credential check here; user tokens come
// from the account service and share the secret.
type AuthService struct {
	JWTSecret     string
	AdminEmail    string
	AdminPassword string
}

func (s *AuthService) Issue(c domain.Caller, ttl time.Duration) (string, error) {
	if s.JWTSecret == "" {
		return "", errors.New("jwt secret not configured")
	}
	if ttl == 0 {
		ttl = tokenTTL
	}
	claims := jwt.MapClaims{
		"user_id": c.UserID,
		"role":    string(c.Role),
		"exp":     time.Now().Add(ttl).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(s.JWTSecret))
}

func (s *AuthService) AdminLogin(email, password string) (string, error) {
	if s.AdminEmail == "" || s.AdminPassword == "" {
		return "", ErrUnauthorized
	}
	okEmail := subtle.ConstantTimeCompare([]byte(email), []byte(s.AdminEmail)) == 1
	okPass := subtle.ConstantTimeCompare([]byte(password), []byte(s.AdminPassword)) == 1
	if !okEmail || !okPass {
		return "", ErrUnauthorized
	}
	return s.Issue(domain.Caller{UserID: "admin", Role: domain.RoleAdmin}, 0)
}

func (s *AuthService) Verify(token string) (domain.Caller, error) {
	if s.JWTSecret == "" || token == "" {
		return domain.Caller{}, ErrUnauthorized
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return []byte(s.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return domain.Caller{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	m, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Caller{}, ErrUnauthorized
	}
	uid, _ := m["user_id"].(string)
	role, _ := m["role"].(string)
	c := domain.Caller{UserID: uid, Role: domain.Role(role)}
	if c.Role == "" {
		c.Role = domain.RoleUser
	}
	if c.Role != domain.RoleUser && c.Role != domain.RoleAdmin {
		return domain.Caller{}, ErrUnauthorized
	}
	if !c.Authenticated() {
		return domain.Caller{}, ErrUnauthorized
	}
	return c, nil
}
