// Package auth mints and verifies the HS256 access tokens handed to members.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const RoleAuthenticated = "authenticated"

type AccessTokenPayload struct {
	PrincipalID uuid.UUID
	Email       string
	JTI         string
}

// AccessTokenClaims carries the principal id in sub and the refresh session
// key in jti.
type AccessTokenClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func (c *AccessTokenClaims) PrincipalID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid subject claim: %w", err)
	}
	return id, nil
}
