// Package gatewaytest provides an in-memory studio backend for client tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/studiopass/internal/client/gateway"
	"github.com/angelmondragon/studiopass/pkg/enums"
	pkgerrors "github.com/angelmondragon/studiopass/pkg/errors"
)

type account struct {
	principal gateway.Principal
	password  string
}

// Backend implements every gateway interface in memory. The exported error
// fields make the matching call fail when set.
type Backend struct {
	SignUpErr     error
	SignInErr     error
	SignOutErr    error
	GetSessionErr error
	MemberGetErr  error
	UpsertErr     error
	FunctionErr   error

	events gateway.Broadcaster

	mu          sync.Mutex
	now         func() time.Time
	accounts    map[string]*account
	session     *gateway.Session
	members     map[uuid.UUID]*gateway.Member
	memberships []gateway.Membership
	types       map[uuid.UUID]*gateway.MembershipType
	posts       []gateway.Post
	visits      map[uuid.UUID]int64
	calls       []string
}

func New() *Backend {
	return &Backend{
		now:      time.Now,
		accounts: make(map[string]*account),
		members:  make(map[uuid.UUID]*gateway.Member),
		types:    make(map[uuid.UUID]*gateway.MembershipType),
		visits:   make(map[uuid.UUID]int64),
	}
}

// Gateway exposes the backend through every gateway surface.
func (b *Backend) Gateway() gateway.Gateway {
	return gateway.Gateway{
		Identity:    b,
		Members:     b,
		Memberships: b,
		Posts:       b,
		Visits:      b,
		Functions:   b,
	}
}

// Calls returns the names of the gateway methods invoked so far.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *Backend) record(name string) {
	b.calls = append(b.calls, name)
}

// SeedAccount registers a principal without signing it in.
func (b *Backend) SeedAccount(email, password string) uuid.UUID {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc := b.newAccount(email, password)
	return acc.principal.ID
}

// SeedSession stores a session as if it had been persisted by an earlier run.
func (b *Backend) SeedSession(email, password string) *gateway.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[strings.ToLower(email)]
	if !ok {
		acc = b.newAccount(email, password)
	}
	b.session = b.issue(acc.principal)
	return b.session
}

func (b *Backend) newAccount(email, password string) *account {
	acc := &account{
		principal: gateway.Principal{ID: uuid.New(), Email: strings.ToLower(email), CreatedAt: b.now()},
		password:  password,
	}
	b.accounts[acc.principal.Email] = acc
	return acc
}

func (b *Backend) issue(p gateway.Principal) *gateway.Session {
	return &gateway.Session{
		AccessToken:  "access-" + uuid.NewString(),
		RefreshToken: "refresh-" + uuid.NewString(),
		TokenType:    "bearer",
		ExpiresAt:    b.now().Add(time.Hour),
		Principal:    p,
	}
}

// PutMember stores a member row directly.
func (b *Backend) PutMember(m gateway.Member) {
	b.mu.Lock()
	defer b.mu.Unlock()
	row := m
	b.members[m.ID] = &row
}

// Member returns a copy of the stored member row.
func (b *Backend) Member(id uuid.UUID) (gateway.Member, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.members[id]
	if !ok {
		return gateway.Member{}, false
	}
	return *m, true
}

// MemberCount returns the number of member rows.
func (b *Backend) MemberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.members)
}

func (b *Backend) AddMembership(m gateway.Membership) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.memberships = append(b.memberships, m)
}

func (b *Backend) AddType(t gateway.MembershipType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	row := t
	b.types[t.ID] = &row
}

func (b *Backend) AddPost(p gateway.Post) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.posts = append(b.posts, p)
}

func (b *Backend) SetVisits(memberID uuid.UUID, count int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.visits[memberID] = count
}

func (b *Backend) GetSession(ctx context.Context) (*gateway.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("GetSession")
	if b.GetSessionErr != nil {
		return nil, b.GetSessionErr
	}
	return b.session, nil
}

func (b *Backend) Subscribe() gateway.Subscription {
	return b.events.Subscribe()
}

func (b *Backend) SignInWithPassword(ctx context.Context, email, password string) (*gateway.Session, error) {
	b.mu.Lock()
	b.record("SignInWithPassword")
	if b.SignInErr != nil {
		b.mu.Unlock()
		return nil, b.SignInErr
	}
	acc, ok := b.accounts[strings.ToLower(email)]
	if !ok || acc.password != password {
		b.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid email or password")
	}
	b.session = b.issue(acc.principal)
	sess := b.session
	b.mu.Unlock()

	b.events.Emit(gateway.AuthEvent{Kind: gateway.EventSignedIn, Session: sess})
	return sess, nil
}

func (b *Backend) SignUp(ctx context.Context, email, password string) (*gateway.Session, error) {
	b.mu.Lock()
	b.record("SignUp")
	if b.SignUpErr != nil {
		b.mu.Unlock()
		return nil, b.SignUpErr
	}
	if _, exists := b.accounts[strings.ToLower(email)]; exists {
		b.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
	}
	acc := b.newAccount(email, password)
	b.session = b.issue(acc.principal)
	sess := b.session
	b.mu.Unlock()

	b.events.Emit(gateway.AuthEvent{Kind: gateway.EventSignedIn, Session: sess})
	return sess, nil
}

func (b *Backend) SignOut(ctx context.Context) error {
	b.mu.Lock()
	b.record("SignOut")
	if b.SignOutErr != nil {
		b.mu.Unlock()
		return b.SignOutErr
	}
	b.session = nil
	b.mu.Unlock()

	b.events.Emit(gateway.AuthEvent{Kind: gateway.EventSignedOut})
	return nil
}

// ExpireSession drops the session server-side and reports it as signed out.
func (b *Backend) ExpireSession() {
	b.mu.Lock()
	b.session = nil
	b.mu.Unlock()
	b.events.Emit(gateway.AuthEvent{Kind: gateway.EventSignedOut})
}

func (b *Backend) Get(ctx context.Context, id uuid.UUID) (*gateway.Member, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Members.Get")
	if b.MemberGetErr != nil {
		return nil, b.MemberGetErr
	}
	m, ok := b.members[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
	}
	row := *m
	return &row, nil
}

func (b *Backend) Upsert(ctx context.Context, id uuid.UUID, in gateway.MemberUpsert) (*gateway.Member, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Members.Upsert")
	if b.UpsertErr != nil {
		return nil, b.UpsertErr
	}
	// Existing rows only take profile columns, as on the studio backend.
	row, ok := b.members[id]
	if !ok {
		row = &gateway.Member{
			ID:           id,
			CreatedAt:    b.now(),
			MemberCode:   in.MemberCode,
			Status:       in.Status,
			Role:         in.Role,
			BarcodeValue: in.BarcodeValue,
		}
		b.members[id] = row
	}
	row.FullName = in.FullName
	row.Phone = in.Phone
	row.Email = in.Email
	out := *row
	return &out, nil
}

func (b *Backend) Current(ctx context.Context, memberID uuid.UUID, statuses []enums.MembershipStatus) (*gateway.Membership, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Memberships.Current")
	var best *gateway.Membership
	for i := range b.memberships {
		row := b.memberships[i]
		if row.MemberID != memberID || !containsStatus(statuses, row.Status) {
			continue
		}
		if best == nil || ranksBefore(row, *best) {
			r := row
			best = &r
		}
	}
	return best, nil
}

func (b *Backend) List(ctx context.Context, memberID uuid.UUID) ([]gateway.Membership, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Memberships.List")
	var out []gateway.Membership
	for _, row := range b.memberships {
		if row.MemberID == memberID {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return ranksBefore(out[i], out[j]) })
	return out, nil
}

func (b *Backend) GetType(ctx context.Context, id uuid.UUID) (*gateway.MembershipType, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Memberships.GetType")
	t, ok := b.types[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership type not found")
	}
	out := *t
	return &out, nil
}

func (b *Backend) Recent(ctx context.Context, limit int, cursor string) (*gateway.PostPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Posts.Recent")
	items := append([]gateway.Post(nil), b.posts...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return &gateway.PostPage{Items: items}, nil
}

func (b *Backend) Count(ctx context.Context, memberID uuid.UUID) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Visits.Count")
	return b.visits[memberID], nil
}

func (b *Backend) GenerateMemberBarcode(ctx context.Context, memberID uuid.UUID, barcodeValue string) (*gateway.CredentialImage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record("Functions.GenerateMemberBarcode")
	if b.FunctionErr != nil {
		return nil, b.FunctionErr
	}
	m, ok := b.members[memberID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
	}
	url := fmt.Sprintf("https://storage.test/barcodes/%s.png", memberID)
	m.BarcodeImageURL = &url
	return &gateway.CredentialImage{MemberID: memberID, URL: url}, nil
}

func containsStatus(statuses []enums.MembershipStatus, s enums.MembershipStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ranksBefore mirrors the backend ordering: open-ended first, then latest end,
// latest start, smallest id.
func ranksBefore(a, b gateway.Membership) bool {
	switch {
	case a.EndsOn == nil && b.EndsOn != nil:
		return true
	case a.EndsOn != nil && b.EndsOn == nil:
		return false
	case a.EndsOn != nil && !a.EndsOn.Equal(b.EndsOn.Time):
		return a.EndsOn.After(b.EndsOn.Time)
	}
	switch {
	case a.StartsOn != nil && b.StartsOn == nil:
		return true
	case a.StartsOn == nil && b.StartsOn != nil:
		return false
	case a.StartsOn != nil && !a.StartsOn.Equal(b.StartsOn.Time):
		return a.StartsOn.After(b.StartsOn.Time)
	}
	return a.ID.String() < b.ID.String()
}
