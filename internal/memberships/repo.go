package memberships

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/studiopass/pkg/db/models"
	dbtypes "github.com/angelmondragon/studiopass/pkg/db/types"
	"github.com/angelmondragon/studiopass/pkg/enums"
)

// currentOrder ranks open-ended periods first, then the latest end and start
// dates, then the smaller id so the selection is deterministic.
const currentOrder = "zavrsetak DESC NULLS FIRST, pocetak DESC NULLS LAST, id ASC"

// Repository exposes membership and membership type persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Current returns the member's current membership among the given statuses.
func (r *Repository) Current(ctx context.Context, memberID uuid.UUID, statuses []enums.MembershipStatus) (*models.Membership, error) {
	if len(statuses) == 0 {
		statuses = enums.CurrentMembershipStatuses
	}
	var membership models.Membership
	err := r.db.WithContext(ctx).
		Where("clan_id = ? AND status IN ?", memberID, statuses).
		Order(currentOrder).
		Limit(1).
		Take(&membership).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// ListForMember returns every membership of the member in current-first order.
func (r *Repository) ListForMember(ctx context.Context, memberID uuid.UUID) ([]models.Membership, error) {
	var rows []models.Membership
	err := r.db.WithContext(ctx).
		Where("clan_id = ?", memberID).
		Order(currentOrder).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ExpireEnded marks active memberships whose end date is before today as expired.
func (r *Repository) ExpireEnded(ctx context.Context, today dbtypes.Date) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("status IN ? AND zavrsetak IS NOT NULL AND zavrsetak < ?",
			[]enums.MembershipStatus{enums.MembershipStatusActive, enums.MembershipStatusActiveLegacy}, today).
		UpdateColumn("status", enums.MembershipStatusExpired)
	return res.RowsAffected, res.Error
}

// FindTypeByID loads a membership type.
func (r *Repository) FindTypeByID(ctx context.Context, id uuid.UUID) (*models.MembershipType, error) {
	var membershipType models.MembershipType
	if err := r.db.WithContext(ctx).First(&membershipType, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &membershipType, nil
}

// ListTypes returns the membership catalog ordered by duration.
func (r *Repository) ListTypes(ctx context.Context) ([]models.MembershipType, error) {
	var rows []models.MembershipType
	err := r.db.WithContext(ctx).
		Order("trajanje_dana ASC, naziv ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
