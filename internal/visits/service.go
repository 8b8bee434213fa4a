package visits

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/studiopass/internal/members"
	pkgerrors "github.com/angelmondragon/studiopass/pkg/errors"
)

type visitRepository interface {
	CountForMember(ctx context.Context, memberID uuid.UUID) (int64, error)
}

// CountDTO is the visit counter response.
type CountDTO struct {
	MemberID uuid.UUID `json:"clan_id"`
	Count    int64     `json:"count"`
}

// Service exposes visit statistics.
type Service interface {
	Count(ctx context.Context, callerID, memberID uuid.UUID) (*CountDTO, error)
}

type service struct {
	repo visitRepository
}

// NewService builds a visits service.
func NewService(repo visitRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("visit repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Count(ctx context.Context, callerID, memberID uuid.UUID) (*CountDTO, error) {
	if err := members.EnsureOwner(callerID, memberID); err != nil {
		return nil, err
	}
	count, err := s.repo.CountForMember(ctx, memberID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count visits")
	}
	return &CountDTO{MemberID: memberID, Count: count}, nil
}
