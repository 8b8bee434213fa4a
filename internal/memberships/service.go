package memberships

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/studiopass/internal/members"
	"github.com/angelmondragon/studiopass/pkg/db"
	"github.com/angelmondragon/studiopass/pkg/db/models"
	dbtypes "github.com/angelmondragon/studiopass/pkg/db/types"
	"github.com/angelmondragon/studiopass/pkg/enums"
	pkgerrors "github.com/angelmondragon/studiopass/pkg/errors"
)

type membershipRepository interface {
	Current(ctx context.Context, memberID uuid.UUID, statuses []enums.MembershipStatus) (*models.Membership, error)
	ListForMember(ctx context.Context, memberID uuid.UUID) ([]models.Membership, error)
	ExpireEnded(ctx context.Context, today dbtypes.Date) (int64, error)
	FindTypeByID(ctx context.Context, id uuid.UUID) (*models.MembershipType, error)
	ListTypes(ctx context.Context) ([]models.MembershipType, error)
}

// Service exposes membership reads to the API and the expiry job.
type Service interface {
	Current(ctx context.Context, callerID, memberID uuid.UUID, statuses []enums.MembershipStatus) (*MembershipDTO, error)
	List(ctx context.Context, callerID, memberID uuid.UUID) ([]MembershipDTO, error)
	GetType(ctx context.Context, id uuid.UUID) (*TypeDTO, error)
	ListTypes(ctx context.Context) ([]TypeDTO, error)
	ExpireEnded(ctx context.Context, now time.Time) (int64, error)
}

type service struct {
	repo membershipRepository
}

// NewService builds a membership service.
func NewService(repo membershipRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("membership repository required")
	}
	return &service{repo: repo}, nil
}

// ParseStatuses parses a comma separated status filter; empty input selects
// the statuses eligible to be current.
func ParseStatuses(raw string) ([]enums.MembershipStatus, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return enums.CurrentMembershipStatuses, nil
	}
	parts := strings.Split(raw, ",")
	statuses := make([]enums.MembershipStatus, 0, len(parts))
	for _, part := range parts {
		status, err := enums.ParseMembershipStatus(strings.TrimSpace(part))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (s *service) Current(ctx context.Context, callerID, memberID uuid.UUID, statuses []enums.MembershipStatus) (*MembershipDTO, error) {
	if err := members.EnsureOwner(callerID, memberID); err != nil {
		return nil, err
	}
	membership, err := s.repo.Current(ctx, memberID, statuses)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load current membership")
	}
	return FromModel(membership), nil
}

func (s *service) List(ctx context.Context, callerID, memberID uuid.UUID) ([]MembershipDTO, error) {
	if err := members.EnsureOwner(callerID, memberID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListForMember(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list memberships")
	}
	return FromModels(rows), nil
}

func (s *service) GetType(ctx context.Context, id uuid.UUID) (*TypeDTO, error) {
	membershipType, err := s.repo.FindTypeByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership type not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load membership type")
	}
	return TypeFromModel(membershipType), nil
}

func (s *service) ListTypes(ctx context.Context) ([]TypeDTO, error) {
	rows, err := s.repo.ListTypes(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list membership types")
	}
	out := make([]TypeDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *TypeFromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) ExpireEnded(ctx context.Context, now time.Time) (int64, error) {
	count, err := s.repo.ExpireEnded(ctx, dbtypes.NewDate(now))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire memberships")
	}
	return count, nil
}
