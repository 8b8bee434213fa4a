package gateway

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/angelmondragon/studiopass/pkg/db/types"
	"github.com/angelmondragon/studiopass/pkg/enums"
)

// Principal is the authenticated account as reported by the identity service.
type Principal struct {
	ID           uuid.UUID  `json:"id"`
	Email        string     `json:"email"`
	LastSignInAt *time.Time `json:"last_sign_in_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Session is an authenticated token pair bound to one principal.
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
	Principal    Principal
}

// ExpiresWithin reports whether the access token expires before now+d.
func (s *Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.After(now.Add(d))
}

// Member is a clanovi row. Its ID equals the owning principal's ID.
type Member struct {
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

// MemberUpsert carries the member columns a client may write.
type MemberUpsert struct {
	MemberCode      string             `json:"clan_kod"`
	FullName        string             `json:"ime_prezime"`
	Phone           *string            `json:"telefon"`
	Email           *string            `json:"email"`
	Status          enums.MemberStatus `json:"status"`
	Role            enums.MemberRole   `json:"role"`
	BarcodeValue    *string            `json:"barcode_value"`
	BarcodeImageURL *string            `json:"barcode_image_url"`
}

// Membership is one paid period of a member.
type Membership struct {
	ID       uuid.UUID              `json:"id"`
	MemberID uuid.UUID              `json:"clan_id"`
	TypeID   *uuid.UUID             `json:"tip_clanarine_id"`
	Price    decimal.Decimal        `json:"cijena"`
	StartsOn *dbtypes.Date          `json:"pocetak"`
	EndsOn   *dbtypes.Date          `json:"zavrsetak"`
	Status   enums.MembershipStatus `json:"status"`
}

// MembershipType is a purchasable membership plan.
type MembershipType struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"naziv"`
	DurationDays int             `json:"trajanje_dana"`
	DefaultPrice decimal.Decimal `json:"cijena_default"`
}

// Post is a studio announcement.
type Post struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ImageURL  *string   `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PostPage is one page of the announcement feed, newest first.
type PostPage struct {
	Items  []Post `json:"items"`
	Cursor string `json:"cursor"`
}

// CredentialImage reports where a rendered check-in credential was stored.
type CredentialImage struct {
	MemberID uuid.UUID `json:"memberId"`
	URL      string    `json:"barcode_image_url"`
}
