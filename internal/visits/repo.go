package visits

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/studiopass/pkg/db/models"
)

// Repository exposes check-in persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CountForMember returns how many check-ins the member has recorded.
func (r *Repository) CountForMember(ctx context.Context, memberID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Visit{}).
		Where("clan_id = ?", memberID).
		Count(&count).Error
	return count, err
}
