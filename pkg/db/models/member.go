package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/studiopass/pkg/enums"
)

// Member is the studio profile ("clan") linked one-to-one with a principal.
type Member struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	MemberCode      string             `gorm:"column:clan_kod;not null"`
	FullName        string             `gorm:"column:ime_prezime;not null"`
	Phone           *string            `gorm:"column:telefon"`
	Email           *string            `gorm:"column:email"`
	CreatedAt       time.Time          `gorm:"column:napravljeno;autoCreateTime"`
	Status          enums.MemberStatus `gorm:"column:status;not null"`
	Role            enums.MemberRole   `gorm:"column:role;not null"`
	Note            *string            `gorm:"column:napomena"`
	BarcodeValue    *string            `gorm:"column:barcode_value"`
	BarcodeImageURL *string            `gorm:"column:barcode_image_url"`
}

func (Member) TableName() string { return "clanovi" }
