package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/studiopass/pkg/db/models"
)

// Repository exposes principal persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a principal repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new, already signed-in principal and returns the persisted model.
func (r *Repository) Create(ctx context.Context, email, passwordHash string, signedInAt time.Time) (*models.Principal, error) {
	principal := &models.Principal{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: passwordHash,
		IsActive:     true,
		LastSignInAt: &signedInAt,
	}
	if err := r.db.WithContext(ctx).Create(principal).Error; err != nil {
		return nil, err
	}
	return principal, nil
}

// FindByEmail retrieves the principal matching the normalized email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Principal, error) {
	var principal models.Principal
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&principal).Error; err != nil {
		return nil, err
	}
	return &principal, nil
}

// FindByID loads a principal by id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Principal, error) {
	var principal models.Principal
	if err := r.db.WithContext(ctx).First(&principal, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &principal, nil
}

// UpdateLastSignIn refreshes last_sign_in_at.
func (r *Repository) UpdateLastSignIn(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Principal{}).
		Where("id = ?", id).
		UpdateColumn("last_sign_in_at", at).Error
}

func (r *Repository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.db.WithContext(ctx).
		Model(&models.Principal{}).
		Where("id = ?", id).
		UpdateColumn("password_hash", hash).Error
}

// Delete removes a principal that never received a session.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Principal{}, "id = ?", id).Error
}
