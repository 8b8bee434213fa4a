package memberships

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/studiopass/pkg/db/models"
	dbtypes "github.com/angelmondragon/studiopass/pkg/db/types"
	"github.com/angelmondragon/studiopass/pkg/enums"
)

// MembershipDTO is the wire shape of a clanarine_clanova row.
type MembershipDTO struct {
	ID       uuid.UUID              `json:"id"`
	MemberID uuid.UUID              `json:"clan_id"`
	TypeID   *uuid.UUID             `json:"tip_clanarine_id"`
	Price    decimal.Decimal        `json:"cijena"`
	StartsOn *dbtypes.Date          `json:"pocetak"`
	EndsOn   *dbtypes.Date          `json:"zavrsetak"`
	Status   enums.MembershipStatus `json:"status"`
}

// TypeDTO is the wire shape of a tipovi_clanarina row.
type TypeDTO struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"naziv"`
	DurationDays int             `json:"trajanje_dana"`
	DefaultPrice decimal.Decimal `json:"cijena_default"`
}

// FromModel maps the persisted membership into a DTO.
func FromModel(m *models.Membership) *MembershipDTO {
	if m == nil {
		return nil
	}
	return &MembershipDTO{
		ID:       m.ID,
		MemberID: m.MemberID,
		TypeID:   m.TypeID,
		Price:    m.Price,
		StartsOn: m.StartsOn,
		EndsOn:   m.EndsOn,
		Status:   m.Status,
	}
}

// FromModels maps a slice of memberships.
func FromModels(rows []models.Membership) []MembershipDTO {
	out := make([]MembershipDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out
}

// TypeFromModel maps the persisted membership type into a DTO.
func TypeFromModel(m *models.MembershipType) *TypeDTO {
	if m == nil {
		return nil
	}
	return &TypeDTO{
		ID:           m.ID,
		Name:         m.Name,
		DurationDays: m.DurationDays,
		DefaultPrice: m.DefaultPrice,
	}
}
