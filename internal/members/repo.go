package members

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/studiopass/pkg/db/models"
)

// upsertColumns are overwritten when a member row already exists. The member
// code, creation time, staff-managed status and role, and the issued
// credential are fixed once the row exists.
var upsertColumns = []string{
	"ime_prezime",
	"telefon",
	"email",
}

// Repository exposes member persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID loads exactly one member by its principal id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Member, error) {
	var member models.Member
	if err := r.db.WithContext(ctx).First(&member, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// Upsert inserts the member or updates the mutable columns of an existing row
// and returns the stored row read in the same transaction.
func (r *Repository) Upsert(ctx context.Context, member *models.Member) (*models.Member, error) {
	var stored models.Member
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).Create(member).Error
		if err != nil {
			return err
		}
		return tx.First(&stored, "id = ?", member.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// UpdateBarcodeImage stores the public credential image URL.
func (r *Repository) UpdateBarcodeImage(ctx context.Context, id uuid.UUID, url string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("id = ?", id).
		UpdateColumn("barcode_image_url", url)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListMissingBarcodeImage returns members holding a barcode value but no image, oldest first.
func (r *Repository) ListMissingBarcodeImage(ctx context.Context, limit int) ([]models.Member, error) {
	var rows []models.Member
	err := r.db.WithContext(ctx).
		Where("barcode_value IS NOT NULL AND barcode_value <> '' AND barcode_image_url IS NULL").
		Order("napravljeno ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListOrphanPrincipals returns principals created before olderThan that never
// received a member row.
func (r *Repository) ListOrphanPrincipals(ctx context.Context, olderThan time.Time, limit int) ([]models.Principal, error) {
	var rows []models.Principal
	err := r.db.WithContext(ctx).
		Model(&models.Principal{}).
		Select("auth_principals.*").
		Joins("LEFT JOIN clanovi ON clanovi.id = auth_principals.id").
		Where("clanovi.id IS NULL AND auth_principals.created_at < ?", olderThan.UTC()).
		Order("auth_principals.created_at ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
