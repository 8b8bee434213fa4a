// Package gateway describes the remote studio backend as seen by the member
// client: identity, hosted tables and the credential-image function.
package gateway

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/studiopass/pkg/enums"
)

// AuthEventKind names a session change reported by the identity service.
type AuthEventKind string

const (
	EventInitialSession AuthEventKind = "initial_session"
	EventSignedIn       AuthEventKind = "signed_in"
	EventSignedOut      AuthEventKind = "signed_out"
	EventTokenRefreshed AuthEventKind = "token_refreshed"
)

// AuthEvent carries the session after the change; Session is nil when signed out.
type AuthEvent struct {
	Kind    AuthEventKind
	Session *Session
}

// Subscription delivers auth events in emission order until Unsubscribe.
type Subscription interface {
	Events() <-chan AuthEvent
	Unsubscribe()
}

// Identity is the remote identity service.
type Identity interface {
	// GetSession returns the persisted session or nil when there is none.
	GetSession(ctx context.Context) (*Session, error)
	Subscribe() Subscription
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
}

// Members is the clanovi table.
type Members interface {
	Get(ctx context.Context, id uuid.UUID) (*Member, error)
	Upsert(ctx context.Context, id uuid.UUID, in MemberUpsert) (*Member, error)
}

// Memberships is the clanarine_clanova and tipovi_clanarina tables.
type Memberships interface {
	// Current returns nil without an error when no membership qualifies.
	Current(ctx context.Context, memberID uuid.UUID, statuses []enums.MembershipStatus) (*Membership, error)
	List(ctx context.Context, memberID uuid.UUID) ([]Membership, error)
	GetType(ctx context.Context, id uuid.UUID) (*MembershipType, error)
}

// Posts is the announcement feed.
type Posts interface {
	Recent(ctx context.Context, limit int, cursor string) (*PostPage, error)
}

// Visits is the dolasci table.
type Visits interface {
	Count(ctx context.Context, memberID uuid.UUID) (int64, error)
}

// Functions are the server-side functions callable by a signed-in member.
type Functions interface {
	GenerateMemberBarcode(ctx context.Context, memberID uuid.UUID, barcodeValue string) (*CredentialImage, error)
}

// Gateway bundles every remote surface the client uses.
type Gateway struct {
	Identity    Identity
	Members     Members
	Memberships Memberships
	Posts       Posts
	Visits      Visits
	Functions   Functions
}
