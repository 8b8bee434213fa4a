package credentials

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/studiopass/internal/members"
	"github.com/angelmondragon/studiopass/pkg/barcode"
	"github.com/angelmondragon/studiopass/pkg/config"
	"github.com/angelmondragon/studiopass/pkg/db"
	"github.com/angelmondragon/studiopass/pkg/db/models"
	pkgerrors "github.com/angelmondragon/studiopass/pkg/errors"
	"github.com/angelmondragon/studiopass/pkg/storage/gcs"
)

const pngContentType = "image/png"

type memberRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Member, error)
	UpdateBarcodeImage(ctx context.Context, id uuid.UUID, url string) error
}

// IssueRequest is the generate_member_barcode function payload.
type IssueRequest struct {
	MemberID     uuid.UUID `json:"memberId" validate:"required"`
	BarcodeValue string    `json:"barcodeValue" validate:"required,max=64"`
}

// IssueResult reports where the rendered credential was stored.
type IssueResult struct {
	MemberID        uuid.UUID `json:"memberId"`
	BarcodeImageURL string    `json:"barcode_image_url"`
}

// Service renders and stores member credential images.
type Service interface {
	Issue(ctx context.Context, callerID uuid.UUID, req IssueRequest) (*IssueResult, error)
	Reissue(ctx context.Context, member *models.Member) (string, error)
}

// ServiceParams bundles the credential service dependencies. Uploader may be
// nil when no bucket is configured.
type ServiceParams struct {
	Repo     memberRepository
	Uploader gcs.Uploader
	Config   config.CredentialsConfig
}

type service struct {
	repo     memberRepository
	uploader gcs.Uploader
	cfg      config.CredentialsConfig
}

// NewService builds a credential image service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("member repository required")
	}
	return &service{
		repo:     params.Repo,
		uploader: params.Uploader,
		cfg:      params.Config,
	}, nil
}

func (s *service) Issue(ctx context.Context, callerID uuid.UUID, req IssueRequest) (*IssueResult, error) {
	if err := members.EnsureOwner(callerID, req.MemberID); err != nil {
		return nil, err
	}
	value := strings.TrimSpace(req.BarcodeValue)
	if value == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "barcodeValue is required")
	}

	member, err := s.repo.FindByID(ctx, req.MemberID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load member")
	}
	if member.BarcodeValue == nil || *member.BarcodeValue != value {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "barcodeValue does not match the member credential")
	}

	url, err := s.Reissue(ctx, member)
	if err != nil {
		return nil, err
	}
	return &IssueResult{MemberID: member.ID, BarcodeImageURL: url}, nil
}

// Reissue renders the member's stored barcode value, uploads it and records the URL.
func (s *service) Reissue(ctx context.Context, member *models.Member) (string, error) {
	if member == nil || member.BarcodeValue == nil || strings.TrimSpace(*member.BarcodeValue) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "member has no barcode value")
	}
	if s.uploader == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "credential storage is not configured")
	}

	var buf bytes.Buffer
	if err := barcode.WritePNG(&buf, *member.BarcodeValue, s.imageOptions()); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render barcode")
	}

	url, err := s.uploader.Upload(ctx, s.objectName(member.ID), pngContentType, &buf)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload barcode image")
	}
	if err := s.repo.UpdateBarcodeImage(ctx, member.ID, url); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store barcode image url")
	}
	member.BarcodeImageURL = &url
	return url, nil
}

func (s *service) imageOptions() barcode.ImageOptions {
	return barcode.ImageOptions{
		ModuleWidth: s.cfg.ModuleWidth,
		Height:      s.cfg.Height,
		MaxWidth:    s.cfg.MaxWidth,
		Margin:      8,
	}
}

func (s *service) objectName(memberID uuid.UUID) string {
	dir := strings.Trim(s.cfg.ObjectDir, "/")
	if dir == "" {
		dir = "barcodes"
	}
	return path.Join(dir, memberID.String()+".png")
}
