package identity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	pkgAuth "github.com/angelmondragon/studiopass/pkg/auth"
	"github.com/angelmondragon/studiopass/pkg/auth/session"
	"github.com/angelmondragon/studiopass/pkg/config"
	"github.com/angelmondragon/studiopass/pkg/db/models"
	pkgerrors "github.com/angelmondragon/studiopass/pkg/errors"
	"github.com/angelmondragon/studiopass/pkg/logger"
	"github.com/angelmondragon/studiopass/pkg/security"
)

var fixedNow = time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)

type stubSessionManager struct {
	records   map[string]uuid.UUID
	tokens    map[string]string
	revoked     []string
	rotateErr   error
	generateErr error
}

func newStubSessionManager() *stubSessionManager {
	return &stubSessionManager{records: map[string]uuid.UUID{}, tokens: map[string]string{}}
}

func (s *stubSessionManager) Generate(ctx context.Context, accessID string, principalID uuid.UUID) (string, error) {
	if s.generateErr != nil {
		return "", s.generateErr
	}
	token := "refresh-" + accessID
	s.records[accessID] = principalID
	s.tokens[accessID] = token
	return token, nil
}

func (s *stubSessionManager) Rotate(ctx context.Context, oldAccessID, provided string) (session.Rotation, error) {
	if s.rotateErr != nil {
		return session.Rotation{}, s.rotateErr
	}
	principalID, ok := s.records[oldAccessID]
	if !ok || s.tokens[oldAccessID] != provided {
		return session.Rotation{}, session.ErrInvalidRefreshToken
	}
	delete(s.records, oldAccessID)
	delete(s.tokens, oldAccessID)
	newID := session.NewAccessID()
	token, _ := s.Generate(ctx, newID, principalID)
	return session.Rotation{AccessID: newID, RefreshToken: token, PrincipalID: principalID}, nil
}

func (s *stubSessionManager) Revoke(ctx context.Context, accessID string) error {
	s.revoked = append(s.revoked, accessID)
	delete(s.records, accessID)
	delete(s.tokens, accessID)
	return nil
}

type stubAuthMetrics struct {
	calls []string
}

func (s *stubAuthMetrics) IncAuth(kind, outcome string) {
	s.calls = append(s.calls, kind+":"+outcome)
}

func setupIdentityTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.Exec(`
CREATE TABLE IF NOT EXISTS auth_principals (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  last_sign_in_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`).Error)
	return conn
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:                 "test-secret",
		Issuer:                 "studiopass-test",
		ExpirationMinutes:      60,
		RefreshTokenTTLMinutes: 60 * 24,
	}
}

func testPasswordConfig() config.PasswordConfig {
	return config.PasswordConfig{
		MinLength:        6,
		ArgonMemoryKB:    64,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
}

type identityFixture struct {
	db       *gorm.DB
	sessions *stubSessionManager
	metrics  *stubAuthMetrics
	svc      Service
}

func newIdentityFixture(t *testing.T) identityFixture {
	t.Helper()

	conn := setupIdentityTestDB(t)
	sessions := newStubSessionManager()
	metrics := &stubAuthMetrics{}
	svc, err := NewService(ServiceParams{
		Repo:           NewRepository(conn),
		SessionManager: sessions,
		JWTConfig:      testJWTConfig(),
		PasswordConfig: testPasswordConfig(),
		Metrics:        metrics,
		Now:            func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return identityFixture{db: conn, sessions: sessions, metrics: metrics, svc: svc}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{SessionManager: newStubSessionManager()}); err == nil {
		t.Fatal("expected error without repository")
	}
	if _, err := NewService(ServiceParams{Repo: NewRepository(nil)}); err == nil {
		t.Fatal("expected error without session manager")
	}
}

func TestSignUpIssuesSession(t *testing.T) {
	fx := newIdentityFixture(t)

	dto, err := fx.svc.SignUp(context.Background(), CredentialsRequest{Email: "  Ana@Example.com ", Password: "tajna123"})
	require.NoError(t, err)
	assert.Equal(t, TokenTypeBearer, dto.TokenType)
	assert.Equal(t, int64(3600), dto.ExpiresIn)
	assert.Equal(t, fixedNow.Add(time.Hour).Unix(), dto.ExpiresAt)
	require.NotNil(t, dto.User)
	assert.Equal(t, "ana@example.com", dto.User.Email)
	require.NotNil(t, dto.User.LastSignInAt)

	claims, err := pkgAuth.ParseAccessTokenAllowExpired(testJWTConfig(), dto.AccessToken)
	require.NoError(t, err)
	principalID, err := claims.PrincipalID()
	require.NoError(t, err)
	assert.Equal(t, dto.User.ID, principalID)
	assert.Equal(t, "refresh-"+claims.ID, dto.RefreshToken)

	var stored models.Principal
	require.NoError(t, fx.db.First(&stored, "id = ?", principalID).Error)
	assert.NotEqual(t, "tajna123", stored.PasswordHash)
	assert.Equal(t, []string{"signup:ok"}, fx.metrics.calls)
}

func TestSignUpRejectsShortPassword(t *testing.T) {
	fx := newIdentityFixture(t)

	_, err := fx.svc.SignUp(context.Background(), CredentialsRequest{Email: "ana@example.com", Password: "12345"})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, "password should be at least 6 characters", typed.Message())
	assert.Equal(t, []string{"signup:validation_error"}, fx.metrics.calls)
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	fx := newIdentityFixture(t)
	ctx := context.Background()

	_, err := fx.svc.SignUp(ctx, CredentialsRequest{Email: "ana@example.com", Password: "tajna123"})
	require.NoError(t, err)

	_, err = fx.svc.SignUp(ctx, CredentialsRequest{Email: "ANA@example.com", Password: "drugatajna"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestSignInFlows(t *testing.T) {
	fx := newIdentityFixture(t)
	ctx := context.Background()

	_, err := fx.svc.SignUp(ctx, CredentialsRequest{Email: "ana@example.com", Password: "tajna123"})
	require.NoError(t, err)

	dto, err := fx.svc.SignIn(ctx, CredentialsRequest{Email: "ana@example.com", Password: "tajna123"})
	require.NoError(t, err)
	assert.NotEmpty(t, dto.AccessToken)

	_, err = fx.svc.SignIn(ctx, CredentialsRequest{Email: "ana@example.com", Password: "pogresna"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = fx.svc.SignIn(ctx, CredentialsRequest{Email: "nepoznat@example.com", Password: "tajna123"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	require.NoError(t, fx.db.Model(&models.Principal{}).Where("email = ?", "ana@example.com").UpdateColumn("is_active", false).Error)
	_, err = fx.svc.SignIn(ctx, CredentialsRequest{Email: "ana@example.com", Password: "tajna123"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestSignInUpgradesStaleHash(t *testing.T) {
	fx := newIdentityFixture(t)
	ctx := context.Background()

	weaker := testPasswordConfig()
	weaker.ArgonMemoryKB = 32
	stale, err := security.HashPassword("tajna123", weaker)
	require.NoError(t, err)

	principal, err := NewRepository(fx.db).Create(ctx, "ana@example.com", stale, fixedNow)
	require.NoError(t, err)

	_, err = fx.svc.SignIn(ctx, CredentialsRequest{Email: "ana@example.com", Password: "tajna123"})
	require.NoError(t, err)

	var stored models.Principal
	require.NoError(t, fx.db.First(&stored, "id = ?", principal.ID).Error)
	assert.NotEqual(t, stale, stored.PasswordHash)
	assert.False(t, security.NeedsRehash(stored.PasswordHash, testPasswordConfig()))

	_, err = fx.svc.SignIn(ctx, CredentialsRequest{Email: "ana@example.com", Password: "tajna123"})
	require.NoError(t, err, "upgraded hash must still verify")
}

func TestRefreshRotatesSession(t *testing.T) {
	fx := newIdentityFixture(t)
	ctx := context.Background()

	first, err := fx.svc.SignUp(ctx, CredentialsRequest{Email: "ana@example.com", Password: "tajna123"})
	require.NoError(t, err)

	second, err := fx.svc.Refresh(ctx, first.AccessToken, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, first.User.ID, second.User.ID)

	_, err = fx.svc.Refresh(ctx, first.AccessToken, first.RefreshToken)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized), "old refresh token must not be reusable")
}

func TestRefreshRejectsGarbageToken(t *testing.T) {
	fx := newIdentityFixture(t)

	_, err := fx.svc.Refresh(context.Background(), "not-a-jwt", "x")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestRefreshDependencyFailure(t *testing.T) {
	fx := newIdentityFixture(t)
	ctx := context.Background()
	first, err := fx.svc.SignUp(ctx, CredentialsRequest{Email: "ana@example.com", Password: "tajna123"})
	require.NoError(t, err)

	fx.sessions.rotateErr = errors.New("redis down")
	_, err = fx.svc.Refresh(ctx, first.AccessToken, first.RefreshToken)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestSignOutRevokes(t *testing.T) {
	fx := newIdentityFixture(t)
	ctx := context.Background()
	dto, err := fx.svc.SignUp(ctx, CredentialsRequest{Email: "ana@example.com", Password: "tajna123"})
	require.NoError(t, err)

	require.NoError(t, fx.svc.SignOut(ctx, dto.AccessToken))
	require.Len(t, fx.sessions.revoked, 1)

	_, err = fx.svc.Refresh(ctx, dto.AccessToken, dto.RefreshToken)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestPrincipalNotFound(t *testing.T) {
	fx := newIdentityFixture(t)

	_, err := fx.svc.Principal(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestSignUpRemovesPrincipalWhenSessionFails(t *testing.T) {
	fx := newIdentityFixture(t)
	ctx := context.Background()
	req := CredentialsRequest{Email: "ana@example.com", Password: "tajna123"}

	fx.sessions.generateErr = errors.New("redis: connection refused")
	_, err := fx.svc.SignUp(ctx, req)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency), "got %v", err)

	var count int64
	require.NoError(t, fx.db.Model(&models.Principal{}).Where("email = ?", "ana@example.com").Count(&count).Error)
	assert.Zero(t, count)

	fx.sessions.generateErr = nil
	dto, err := fx.svc.SignUp(ctx, req)
	require.NoError(t, err, "retry after a failed session must not report the email as taken")
	assert.Equal(t, "ana@example.com", dto.User.Email)
}

type undeletableRepo struct {
	*Repository
}

func (undeletableRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return errors.New("db: connection reset")
}

func TestSignUpReportsPrincipalItCannotRemove(t *testing.T) {
	conn := setupIdentityTestDB(t)
	sessions := newStubSessionManager()
	sessions.generateErr = errors.New("redis: connection refused")
	var buf bytes.Buffer
	svc, err := NewService(ServiceParams{
		Repo:           undeletableRepo{Repository: NewRepository(conn)},
		SessionManager: sessions,
		JWTConfig:      testJWTConfig(),
		PasswordConfig: testPasswordConfig(),
		Logger:         logger.New(logger.Options{Output: &buf}),
		Now:            func() time.Time { return fixedNow },
	})
	require.NoError(t, err)

	_, err = svc.SignUp(context.Background(), CredentialsRequest{Email: "ana@example.com", Password: "tajna123"})
	require.Error(t, err)
	assert.Contains(t, buf.String(), "identity.signup_orphaned_principal")
	assert.Contains(t, buf.String(), string(pkgerrors.CodeMemberProvisioning))
}
