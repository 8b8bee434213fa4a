package members

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/studiopass/pkg/db"
	"github.com/angelmondragon/studiopass/pkg/db/models"
	"github.com/angelmondragon/studiopass/pkg/enums"
	pkgerrors "github.com/angelmondragon/studiopass/pkg/errors"
)

type memberRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
	Upsert(ctx context.Context, member *models.Member) (*models.Member, error)
}

// Service exposes member profile operations to the API.
type Service interface {
	Get(ctx context.Context, callerID, memberID uuid.UUID) (*MemberDTO, error)
	Upsert(ctx context.Context, callerID, memberID uuid.UUID, input UpsertInput) (*MemberDTO, error)
}

type service struct {
	repo memberRepository
}

// NewService builds a member service with the provided repository.
func NewService(repo memberRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("member repository required")
	}
	return &service{repo: repo}, nil
}

// EnsureOwner rejects access to member-scoped rows owned by someone else.
func EnsureOwner(callerID, memberID uuid.UUID) error {
	if callerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if callerID != memberID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "member belongs to another account")
	}
	return nil
}

func (s *service) Get(ctx context.Context, callerID, memberID uuid.UUID) (*MemberDTO, error) {
	if err := EnsureOwner(callerID, memberID); err != nil {
		return nil, err
	}
	member, err := s.repo.FindByID(ctx, memberID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
	}
	return FromModel(member), nil
}

func (s *service) Upsert(ctx context.Context, callerID, memberID uuid.UUID, input UpsertInput) (*MemberDTO, error) {
	if err := EnsureOwner(callerID, memberID); err != nil {
		return nil, err
	}
	if input.Status != "" && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid member status")
	}
	if input.Role != "" && input.Role != enums.MemberRoleMember {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "members cannot assign staff roles")
	}

	row := input.ToModel(memberID)
	if row.MemberCode == "" || row.FullName == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "clan_kod and ime_prezime are required")
	}

	// Only the credential function records the image.
	row.BarcodeImageURL = nil

	existing, err := s.repo.FindByID(ctx, memberID)
	switch {
	case err == nil:
		if existing.MemberCode != row.MemberCode {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "clan_kod cannot be changed")
		}
		row.Status = existing.Status
		row.Role = existing.Role
		row.BarcodeValue = existing.BarcodeValue
		row.BarcodeImageURL = existing.BarcodeImageURL
	case !db.IsNotFound(err):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
	}

	saved, err := s.repo.Upsert(ctx, row)
	if err != nil {
		if db.IsUniqueViolation(err, "clanovi_clan_kod_key") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "clan_kod already in use")
		}
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "member already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upsert member")
	}
	return FromModel(saved), nil
}
