package members

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/studiopass/pkg/db/models"
	"github.com/angelmondragon/studiopass/pkg/enums"
)

// MemberDTO is the wire shape of a clanovi row.
type MemberDTO struct {
	ID              uuid.UUID          `json:"id"`
	MemberCode      string             `json:"clan_kod"`
	FullName        string             `json:"ime_prezime"`
	Phone           *string            `json:"telefon"`
	Email           *string            `json:"email"`
	CreatedAt       time.Time          `json:"napravljeno"`
	Status          enums.MemberStatus `json:"status"`
	Role            enums.MemberRole   `json:"role"`
	Note            *string            `json:"napomena"`
	BarcodeValue    *string            `json:"barcode_value"`
	BarcodeImageURL *string            `json:"barcode_image_url"`
}

// UpsertInput carries the writable member columns. Status and barcode value
// apply only when the row is created; the image URL is set by the credential
// function and ignored here.
type UpsertInput struct {
	MemberCode      string             `json:"clan_kod" validate:"required,max=64"`
	FullName        string             `json:"ime_prezime" validate:"required,max=200"`
	Phone           *string            `json:"telefon" validate:"omitempty,max=40"`
	Email           *string            `json:"email" validate:"omitempty,email"`
	Status          enums.MemberStatus `json:"status" validate:"omitempty,member_status"`
	Role            enums.MemberRole   `json:"role" validate:"omitempty,member_role"`
	BarcodeValue    *string            `json:"barcode_value" validate:"omitempty,max=64"`
	BarcodeImageURL *string            `json:"barcode_image_url" validate:"omitempty,url"`
}

// FromModel maps the persisted member into a DTO.
func FromModel(m *models.Member) *MemberDTO {
	if m == nil {
		return nil
	}
	return &MemberDTO{
		ID:              m.ID,
		MemberCode:      m.MemberCode,
		FullName:        m.FullName,
		Phone:           m.Phone,
		Email:           m.Email,
		CreatedAt:       m.CreatedAt,
		Status:          m.Status,
		Role:            m.Role,
		Note:            m.Note,
		BarcodeValue:    m.BarcodeValue,
		BarcodeImageURL: m.BarcodeImageURL,
	}
}

// ToModel builds the row for id, applying column defaults.
func (in UpsertInput) ToModel(id uuid.UUID) *models.Member {
	status := in.Status
	if status == "" {
		status = enums.MemberStatusActive
	}
	role := in.Role
	if role == "" {
		role = enums.MemberRoleMember
	}
	return &models.Member{
		ID:              id,
		MemberCode:      strings.TrimSpace(in.MemberCode),
		FullName:        strings.TrimSpace(in.FullName),
		Phone:           blankToNil(in.Phone),
		Email:           blankToNil(in.Email),
		Status:          status,
		Role:            role,
		BarcodeValue:    blankToNil(in.BarcodeValue),
		BarcodeImageURL: blankToNil(in.BarcodeImageURL),
	}
}

func blankToNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
