// Package dashboard assembles the member's home and profile screens.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/studiopass/internal/client/gateway"
	"github.com/angelmondragon/studiopass/pkg/enums"
)

// FeedLimit is the number of announcements shown on the home screen.
const FeedLimit = 20

const dateLayout = "02.01.2006."

// MembershipView is a membership together with its plan.
type MembershipView struct {
	Membership *gateway.Membership
	Type       *gateway.MembershipType
}

func (v MembershipView) Title() string {
	if v.Type != nil && v.Type.Name != "" {
		return v.Type.Name
	}
	return "Članarina"
}

func (v MembershipView) ExpiryText() string {
	if v.Membership == nil || v.Membership.EndsOn == nil {
		return "Nema aktivne članarine"
	}
	return "Ističe: " + v.Membership.EndsOn.Format(dateLayout)
}

// DaysLeft returns the whole days until the end date, or nil without one.
func (v MembershipView) DaysLeft(now time.Time) *int {
	if v.Membership == nil || v.Membership.EndsOn == nil {
		return nil
	}
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	days := int(math.Round(v.Membership.EndsOn.Sub(today).Hours() / 24))
	if days < 0 {
		days = 0
	}
	return &days
}

type Home struct {
	Membership MembershipView
	Posts      []gateway.Post
	CheckIn    string
}

type Profile struct {
	Member      *gateway.Member
	Membership  MembershipView
	History     []gateway.Membership
	Visits      int64
	MemberSince time.Time
}

// FormatDate renders a date the way the studio prints it.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Format(dateLayout)
}

type Params struct {
	Memberships gateway.Memberships
	Posts       gateway.Posts
	Visits      gateway.Visits
}

type Service struct {
	memberships gateway.Memberships
	posts       gateway.Posts
	visits      gateway.Visits
}

func NewService(p Params) (*Service, error) {
	if p.Memberships == nil || p.Posts == nil || p.Visits == nil {
		return nil, errors.New("dashboard requires memberships, posts and visits gateways")
	}
	return &Service{memberships: p.Memberships, posts: p.Posts, visits: p.Visits}, nil
}

// Home loads the current membership and recent announcements. Sections that
// fail to load are left empty and their errors are combined in the result.
func (s *Service) Home(ctx context.Context, member *gateway.Member, principal *gateway.Principal) (*Home, error) {
	home := &Home{CheckIn: CheckInValue(member, principal)}
	var errs error

	if member != nil {
		view, err := s.currentMembership(ctx, member)
		home.Membership = view
		errs = multierr.Append(errs, err)
	}

	page, err := s.posts.Recent(ctx, FeedLimit, "")
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("load announcements: %w", err))
	} else {
		home.Posts = page.Items
	}

	return home, errs
}

// Profile loads the member's membership history, current plan and visit count.
func (s *Service) Profile(ctx context.Context, member *gateway.Member) (*Profile, error) {
	if member == nil {
		return nil, errors.New("no member profile")
	}
	profile := &Profile{Member: member, MemberSince: member.CreatedAt}
	var errs error

	history, err := s.memberships.List(ctx, member.ID)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("load memberships: %w", err))
	} else {
		profile.History = history
		profile.Membership.Membership = SelectCurrent(history)
		typ, err := s.membershipType(ctx, profile.Membership.Membership)
		profile.Membership.Type = typ
		errs = multierr.Append(errs, err)
	}

	count, err := s.visits.Count(ctx, member.ID)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("load visits: %w", err))
	} else {
		profile.Visits = count
	}

	return profile, errs
}

func (s *Service) currentMembership(ctx context.Context, member *gateway.Member) (MembershipView, error) {
	current, err := s.memberships.Current(ctx, member.ID, enums.CurrentMembershipStatuses)
	if err != nil {
		return MembershipView{}, fmt.Errorf("load current membership: %w", err)
	}
	if current == nil {
		return MembershipView{}, nil
	}
	typ, err := s.membershipType(ctx, current)
	return MembershipView{Membership: current, Type: typ}, err
}

func (s *Service) membershipType(ctx context.Context, m *gateway.Membership) (*gateway.MembershipType, error) {
	if m == nil || m.TypeID == nil {
		return nil, nil
	}
	typ, err := s.memberships.GetType(ctx, *m.TypeID)
	if gateway.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load membership type: %w", err)
	}
	return typ, nil
}
