package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/studiopass/pkg/db/models"
)

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "bearer"

// CredentialsRequest carries email and password for sign-up and sign-in.
type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest carries the refresh token paired with the bearer access token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// PrincipalDTO is the public view of an identity principal.
type PrincipalDTO struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	LastSignInAt *time.Time `json:"last_sign_in_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// SessionDTO is the token pair returned by sign-up, sign-in and refresh.
type SessionDTO struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int64         `json:"expires_in"`
	ExpiresAt    int64         `json:"expires_at"`
	User         *PrincipalDTO `json:"user"`
}

// PrincipalFromModel maps the persisted principal into a DTO.
func PrincipalFromModel(m *models.Principal) *PrincipalDTO {
	if m == nil {
		return nil
	}
	return &PrincipalDTO{
		ID:           m.ID,
		Email:        m.Email,
		LastSignInAt: m.LastSignInAt,
		CreatedAt:    m.CreatedAt,
	}
}
