package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/studiopass/internal/client/gateway"
	"github.com/angelmondragon/studiopass/pkg/enums"
)

func memberPath(id uuid.UUID, suffix string) string {
	return fmt.Sprintf("/rest/v1/members/%s%s", url.PathEscape(id.String()), suffix)
}

type membersAPI struct {
	c *Client
}

func (a *membersAPI) Get(ctx context.Context, id uuid.UUID) (*gateway.Member, error) {
	var out gateway.Member
	if err := a.c.do(ctx, request{method: http.MethodGet, path: memberPath(id, ""), authed: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *membersAPI) Upsert(ctx context.Context, id uuid.UUID, in gateway.MemberUpsert) (*gateway.Member, error) {
	var out gateway.Member
	if err := a.c.do(ctx, request{method: http.MethodPut, path: memberPath(id, ""), body: in, authed: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type membershipsAPI struct {
	c *Client
}

func (a *membershipsAPI) Current(ctx context.Context, memberID uuid.UUID, statuses []enums.MembershipStatus) (*gateway.Membership, error) {
	query := url.Values{}
	if len(statuses) > 0 {
		parts := make([]string, 0, len(statuses))
		for _, s := range statuses {
			parts = append(parts, s.String())
		}
		query.Set("status", strings.Join(parts, ","))
	}

	// The backend answers {"data": null} when nothing qualifies.
	var out *gateway.Membership
	if err := a.c.do(ctx, request{
		method: http.MethodGet,
		path:   memberPath(memberID, "/memberships/current"),
		query:  query,
		authed: true,
	}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *membershipsAPI) List(ctx context.Context, memberID uuid.UUID) ([]gateway.Membership, error) {
	var out []gateway.Membership
	if err := a.c.do(ctx, request{method: http.MethodGet, path: memberPath(memberID, "/memberships"), authed: true}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *membershipsAPI) GetType(ctx context.Context, id uuid.UUID) (*gateway.MembershipType, error) {
	var out gateway.MembershipType
	path := "/rest/v1/membership-types/" + url.PathEscape(id.String())
	if err := a.c.do(ctx, request{method: http.MethodGet, path: path, authed: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type postsAPI struct {
	c *Client
}

func (a *postsAPI) Recent(ctx context.Context, limit int, cursor string) (*gateway.PostPage, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		query.Set("cursor", cursor)
	}

	var out gateway.PostPage
	if err := a.c.do(ctx, request{method: http.MethodGet, path: "/rest/v1/posts", query: query, authed: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type visitsAPI struct {
	c *Client
}

func (a *visitsAPI) Count(ctx context.Context, memberID uuid.UUID) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	if err := a.c.do(ctx, request{method: http.MethodGet, path: memberPath(memberID, "/visits/count"), authed: true}, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

type functionsAPI struct {
	c *Client
}

type generateBarcodeBody struct {
	MemberID     uuid.UUID `json:"memberId"`
	BarcodeValue string    `json:"barcodeValue"`
}

func (a *functionsAPI) GenerateMemberBarcode(ctx context.Context, memberID uuid.UUID, barcodeValue string) (*gateway.CredentialImage, error) {
	var out gateway.CredentialImage
	if err := a.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/functions/v1/generate_member_barcode",
		body:   generateBarcodeBody{MemberID: memberID, BarcodeValue: barcodeValue},
		authed: true,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
