package posts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/studiopass/pkg/db/models"
	pkgerrors "github.com/angelmondragon/studiopass/pkg/errors"
	pkgpagination "github.com/angelmondragon/studiopass/pkg/pagination"
)

// DefaultFeedLimit is the home feed page size.
const DefaultFeedLimit = pkgpagination.DefaultLimit

type postRepository interface {
	ListRecent(ctx context.Context, limit int, after *pkgpagination.Key) ([]models.Post, error)
}

// PostDTO is the wire shape of a post.
type PostDTO struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	ImageURL  *string   `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListResult is one page of the feed.
type ListResult struct {
	Items  []PostDTO `json:"items"`
	Cursor string    `json:"cursor"`
}

// Service exposes the announcement feed.
type Service interface {
	List(ctx context.Context, params pkgpagination.Params) (*ListResult, error)
}

type service struct {
	repo postRepository
}

// NewService builds a posts service.
func NewService(repo postRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("post repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) List(ctx context.Context, params pkgpagination.Params) (*ListResult, error) {
	page, err := params.Resolve()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.repo.ListRecent(ctx, page.Fetch(), page.After)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list posts")
	}
	rows, next := pkgpagination.Cut(page, rows, postKey)

	items := make([]PostDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, PostDTO{
			ID:        row.ID,
			Title:     row.Title,
			Content:   row.Content,
			ImageURL:  row.ImageURL,
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		})
	}
	return &ListResult{Items: items, Cursor: next}, nil
}

func postKey(p models.Post) pkgpagination.Key {
	return pkgpagination.Key{CreatedAt: p.CreatedAt, ID: p.ID}
}
