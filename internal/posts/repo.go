package posts

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/studiopass/pkg/db/models"
	pkgpagination "github.com/angelmondragon/studiopass/pkg/pagination"
)

// Repository exposes announcement persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListRecent returns posts newest first, strictly after the given key when provided.
func (r *Repository) ListRecent(ctx context.Context, limit int, after *pkgpagination.Key) ([]models.Post, error) {
	query := r.db.WithContext(ctx).Model(&models.Post{})
	if after != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}

	var rows []models.Post
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
