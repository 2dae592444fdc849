// Package auth resolves bearer tokens to users. Identity itself lives in an
// external service; this is only the token boundary the daemon needs.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNotAdmin         = errors.New("not enough permissions")
)

// User is the resolved identity of a caller.
type User struct {
	ID    string
	Email string
}

// Resolver validates HMAC-signed bearer tokens. An empty Secret disables
// authentication entirely (development mode).
type Resolver struct {
	Secret     []byte
	AdminEmail string
}

// UserID resolves a token to a user id for optional-auth paths. It returns
// "" for missing or invalid tokens and never errors.
func (r *Resolver) UserID(token string) string {
	u, err := r.User(token)
	if err != nil {
		return ""
	}
	return u.ID
}

// User resolves a token or fails for required-auth paths.
func (r *Resolver) User(token string) (*User, error) {
	if len(r.Secret) == 0 {
		return &User{ID: "dev", Email: r.AdminEmail}, nil
	}
	if token == "" {
		return nil, ErrNotAuthenticated
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrNotAuthenticated
	}

	u := &User{}
	if sub, ok := claims["sub"].(string); ok {
		u.ID = sub
	}
	if email, ok := claims["email"].(string); ok {
		u.Email = email
	}
	if u.ID == "" {
		return nil, ErrNotAuthenticated
	}
	return u, nil
}

// Admin resolves a token and requires the configured admin identity.
func (r *Resolver) Admin(token string) (*User, error) {
	u, err := r.User(token)
	if err != nil {
		return nil, err
	}
	if r.AdminEmail != "" && u.Email != r.AdminEmail {
		return nil, ErrNotAdmin
	}
	return u, nil
}
