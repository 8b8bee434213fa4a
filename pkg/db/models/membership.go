package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/studiopass/pkg/db/types"
	"github.com/angelmondragon/studiopass/pkg/enums"
)

// Membership is one paid period ("clanarina") of a member.
type Membership struct {
	ID       uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	MemberID uuid.UUID              `gorm:"column:clan_id;type:uuid;not null"`
	TypeID   *uuid.UUID             `gorm:"column:tip_clanarine_id;type:uuid"`
	Price    decimal.Decimal        `gorm:"column:cijena;type:numeric(10,2);not null;default:0"`
	StartsOn *dbtypes.Date          `gorm:"column:pocetak"`
	EndsOn   *dbtypes.Date          `gorm:"column:zavrsetak"`
	Status   enums.MembershipStatus `gorm:"column:status;not null"`
}

func (Membership) TableName() string { return "clanarine_clanova" }

// MembershipType is a catalog entry ("tip clanarine").
type MembershipType struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string          `gorm:"column:naziv;not null"`
	DurationDays int             `gorm:"column:trajanje_dana;not null"`
	DefaultPrice decimal.Decimal `gorm:"column:cijena_default;type:numeric(10,2);not null;default:0"`
}

func (MembershipType) TableName() string { return "tipovi_clanarina" }
