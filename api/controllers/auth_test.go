package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/studiopass/api/middleware"
	"github.com/angelmondragon/studiopass/internal/identity"
	pkgerrors "github.com/angelmondragon/studiopass/pkg/errors"
)

type stubIdentityService struct {
	signUpFn    func(ctx context.Context, req identity.CredentialsRequest) (*identity.SessionDTO, error)
	signInFn    func(ctx context.Context, req identity.CredentialsRequest) (*identity.SessionDTO, error)
	refreshFn   func(ctx context.Context, accessToken, refreshToken string) (*identity.SessionDTO, error)
	signOutFn   func(ctx context.Context, accessToken string) error
	principalFn func(ctx context.Context, id uuid.UUID) (*identity.PrincipalDTO, error)
}

func (s stubIdentityService) SignUp(ctx context.Context, req identity.CredentialsRequest) (*identity.SessionDTO, error) {
	return s.signUpFn(ctx, req)
}

func (s stubIdentityService) SignIn(ctx context.Context, req identity.CredentialsRequest) (*identity.SessionDTO, error) {
	return s.signInFn(ctx, req)
}

func (s stubIdentityService) Refresh(ctx context.Context, accessToken, refreshToken string) (*identity.SessionDTO, error) {
	return s.refreshFn(ctx, accessToken, refreshToken)
}

func (s stubIdentityService) SignOut(ctx context.Context, accessToken string) error {
	return s.signOutFn(ctx, accessToken)
}

func (s stubIdentityService) Principal(ctx context.Context, id uuid.UUID) (*identity.PrincipalDTO, error) {
	return s.principalFn(ctx, id)
}

func testSession(id uuid.UUID) *identity.SessionDTO {
	return &identity.SessionDTO{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    identity.TokenTypeBearer,
		ExpiresIn:    3600,
		User:         &identity.PrincipalDTO{ID: id, Email: "member@example.com"},
	}
}

func TestAuthSignUpReturnsCreated(t *testing.T) {
	principalID := uuid.New()
	svc := stubIdentityService{
		signUpFn: func(ctx context.Context, req identity.CredentialsRequest) (*identity.SessionDTO, error) {
			if req.Email != "member@example.com" {
				t.Fatalf("unexpected email %s", req.Email)
			}
			return testSession(principalID), nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/v1/signup", bytes.NewBufferString(`{"email":"member@example.com","password":"secret1"}`))
	rec := httptest.NewRecorder()
	AuthSignUp(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", rec.Code)
	}
	var envelope struct {
		Data identity.SessionDTO `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.User == nil || envelope.Data.User.ID != principalID {
		t.Fatalf("unexpected user in session %+v", envelope.Data.User)
	}
}

func TestAuthSignUpRejectsMalformedEmail(t *testing.T) {
	svc := stubIdentityService{
		signUpFn: func(ctx context.Context, req identity.CredentialsRequest) (*identity.SessionDTO, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/v1/signup", bytes.NewBufferString(`{"email":"nope","password":"secret1"}`))
	rec := httptest.NewRecorder()
	AuthSignUp(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAuthTokenMapsInvalidCredentials(t *testing.T) {
	svc := stubIdentityService{
		signInFn: func(ctx context.Context, req identity.CredentialsRequest) (*identity.SessionDTO, error) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/v1/token", bytes.NewBufferString(`{"email":"member@example.com","password":"wrong"}`))
	rec := httptest.NewRecorder()
	AuthToken(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Error.Message != "invalid credentials" {
		t.Fatalf("unexpected message %q", envelope.Error.Message)
	}
}

func TestAuthRefreshPassesBothTokens(t *testing.T) {
	var gotAccess, gotRefresh string
	svc := stubIdentityService{
		refreshFn: func(ctx context.Context, accessToken, refreshToken string) (*identity.SessionDTO, error) {
			gotAccess, gotRefresh = accessToken, refreshToken
			return testSession(uuid.New()), nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/v1/refresh", bytes.NewBufferString(`{"refresh_token":"old-refresh"}`))
	req.Header.Set("Authorization", "Bearer old-access")
	rec := httptest.NewRecorder()
	AuthRefresh(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if gotAccess != "old-access" || gotRefresh != "old-refresh" {
		t.Fatalf("unexpected tokens %q %q", gotAccess, gotRefresh)
	}
}

func TestAuthRefreshRequiresBearer(t *testing.T) {
	svc := stubIdentityService{}
	req := httptest.NewRequest(http.MethodPost, "/auth/v1/refresh", bytes.NewBufferString(`{"refresh_token":"old-refresh"}`))
	rec := httptest.NewRecorder()
	AuthRefresh(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestAuthLogout(t *testing.T) {
	var revoked string
	svc := stubIdentityService{
		signOutFn: func(ctx context.Context, accessToken string) error {
			revoked = accessToken
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/v1/logout", nil)
	req.Header.Set("Authorization", "Bearer access")
	rec := httptest.NewRecorder()
	AuthLogout(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if revoked != "access" {
		t.Fatalf("expected token revoked got %q", revoked)
	}
}

func TestAuthUserUsesContextPrincipal(t *testing.T) {
	principalID := uuid.New()
	svc := stubIdentityService{
		principalFn: func(ctx context.Context, id uuid.UUID) (*identity.PrincipalDTO, error) {
			if id != principalID {
				t.Fatalf("expected %s got %s", principalID, id)
			}
			return &identity.PrincipalDTO{ID: id, Email: "member@example.com"}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/v1/user", nil)
	req = req.WithContext(middleware.WithPrincipalID(req.Context(), principalID))
	rec := httptest.NewRecorder()
	AuthUser(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestAuthUserWithoutPrincipal(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/auth/v1/user", nil)
	rec := httptest.NewRecorder()
	AuthUser(stubIdentityService{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}
