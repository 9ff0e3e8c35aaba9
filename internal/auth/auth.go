// Package auth resolves the authenticated identity attached to a transport
// session. Credential issuance lives outside this core; the server only
// verifies tokens minted by the auth collaborator.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cazapp/famicall/internal/domain"
)

var (
	ErrMissingToken = errors.New("missing auth token")
	ErrInvalidToken = errors.New("invalid auth token")
)

// Resolver turns a bearer token into the user it names. Invoked once at
// transport-connect time; a failure fails the connection.
type Resolver interface {
	Resolve(token string) (*domain.User, error)
}

// JWTResolver verifies HS256 tokens carrying the identity in the "email"
// claim and an optional "name" claim.
type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

func (r *JWTResolver) Resolve(token string) (*domain.User, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return r.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	user, err := domain.NewUser(domain.Identity(email), name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return user, nil
}

// Sign mints a token for a user. Exists for the auth collaborator's tests
// and local tooling; production tokens come from the account service.
func (r *JWTResolver) Sign(user *domain.User) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": string(user.Identity),
		"name":  user.Name,
	})
	return t.SignedString(r.secret)
}
