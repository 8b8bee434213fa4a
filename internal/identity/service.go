package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgAuth "github.com/angelmondragon/studiopass/pkg/auth"
	"github.com/angelmondragon/studiopass/pkg/auth/session"
	"github.com/angelmondragon/studiopass/pkg/config"
	"github.com/angelmondragon/studiopass/pkg/db"
	"github.com/angelmondragon/studiopass/pkg/db/models"
	pkgerrors "github.com/angelmondragon/studiopass/pkg/errors"
	"github.com/angelmondragon/studiopass/pkg/logger"
	"github.com/angelmondragon/studiopass/pkg/security"
)

const (
	invalidCredentialsMessage = "invalid credentials"
	inactiveAccountMessage    = "account is not active"
	invalidRefreshMessage     = "invalid refresh token"
	emailTakenMessage         = "email already registered"

	principalEmailConstraint = "auth_principals_email_key"
)

// Service defines the identity operations exposed under /auth/v1.
type Service interface {
	SignUp(ctx context.Context, req CredentialsRequest) (*SessionDTO, error)
	SignIn(ctx context.Context, req CredentialsRequest) (*SessionDTO, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) (*SessionDTO, error)
	SignOut(ctx context.Context, accessToken string) error
	Principal(ctx context.Context, id uuid.UUID) (*PrincipalDTO, error)
}

type principalRepository interface {
	Create(ctx context.Context, email, passwordHash string, signedInAt time.Time) (*models.Principal, error)
	Delete(ctx context.Context, id uuid.UUID) error
	FindByEmail(ctx context.Context, email string) (*models.Principal, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Principal, error)
	UpdateLastSignIn(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type sessionManager interface {
	Generate(ctx context.Context, accessID string, principalID uuid.UUID) (string, error)
	Rotate(ctx context.Context, oldAccessID, provided string) (session.Rotation, error)
	Revoke(ctx context.Context, accessID string) error
}

type authMetrics interface {
	IncAuth(kind, outcome string)
}

// ServiceParams bundles the dependencies required to build an identity service.
type ServiceParams struct {
	Repo           principalRepository
	SessionManager sessionManager
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	Metrics        authMetrics
	Logger         *logger.Logger
	Now            func() time.Time
}

type service struct {
	repo        principalRepository
	session     sessionManager
	jwtCfg      config.JWTConfig
	passwordCfg config.PasswordConfig
	metrics     authMetrics
	logg        *logger.Logger
	now         func() time.Time
}

// NewService constructs an identity service with the provided dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("principal repository is required")
	}
	if params.SessionManager == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Discard()
	}
	return &service{
		repo:        params.Repo,
		session:     params.SessionManager,
		jwtCfg:      params.JWTConfig,
		passwordCfg: params.PasswordConfig,
		metrics:     params.Metrics,
		logg:        logg,
		now:         now,
	}, nil
}

func (s *service) SignUp(ctx context.Context, req CredentialsRequest) (*SessionDTO, error) {
	dto, err := s.signUp(ctx, req)
	s.record("signup", err)
	return dto, err
}

func (s *service) signUp(ctx context.Context, req CredentialsRequest) (*SessionDTO, error) {
	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid email")
	}
	minLength := s.passwordCfg.MinLength
	if minLength <= 0 {
		minLength = security.DefaultMinPasswordLength
	}
	if err := security.CheckPasswordLength(req.Password, minLength); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, emailTakenMessage)
	} else if !db.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check principal email")
	}

	hash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	now := s.now().UTC()
	principal, err := s.repo.Create(ctx, email, hash, now)
	if err != nil {
		if db.IsUniqueViolation(err, principalEmailConstraint) || db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, emailTakenMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create principal")
	}

	dto, err := s.issue(ctx, principal, now)
	if err != nil {
		s.discardPrincipal(ctx, principal)
		return nil, err
	}
	return dto, nil
}

// discardPrincipal removes a principal whose sign-up could not issue a
// session, so the address can be registered again. A principal that cannot be
// removed is reported for manual reconciliation.
func (s *service) discardPrincipal(ctx context.Context, principal *models.Principal) {
	cleanupCtx := context.WithoutCancel(ctx)
	err := s.repo.Delete(cleanupCtx, principal.ID)
	if err == nil {
		return
	}
	logCtx := s.logg.WithFields(s.logg.WithPrincipalID(ctx, principal.ID.String()), map[string]any{
		"error_code": pkgerrors.CodeMemberProvisioning,
	})
	s.logg.Error(logCtx, "identity.signup_orphaned_principal", err)
}

func (s *service) SignIn(ctx context.Context, req CredentialsRequest) (*SessionDTO, error) {
	dto, err := s.signIn(ctx, req)
	s.record("signin", err)
	return dto, err
}

func (s *service) signIn(ctx context.Context, req CredentialsRequest) (*SessionDTO, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	principal, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup principal")
	}

	valid, err := security.VerifyPassword(req.Password, principal.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}
	if !principal.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, inactiveAccountMessage)
	}
	s.upgradeHash(ctx, principal, req.Password)

	now, err := s.recordSignIn(ctx, principal)
	if err != nil {
		return nil, err
	}
	return s.issue(ctx, principal, now)
}

func (s *service) Refresh(ctx context.Context, accessToken, refreshToken string) (*SessionDTO, error) {
	dto, err := s.refresh(ctx, accessToken, refreshToken)
	s.record("refresh", err)
	return dto, err
}

func (s *service) refresh(ctx context.Context, accessToken, refreshToken string) (*SessionDTO, error) {
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(s.jwtCfg, accessToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid access token")
	}

	rotation, err := s.session.Rotate(ctx, claims.ID, refreshToken)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidRefreshMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotate refresh token")
	}

	principal, err := s.repo.FindByID(ctx, rotation.PrincipalID)
	if err != nil {
		s.revokeQuietly(ctx, rotation.AccessID)
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidRefreshMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load principal")
	}
	if !principal.IsActive {
		s.revokeQuietly(ctx, rotation.AccessID)
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, inactiveAccountMessage)
	}

	return s.mint(principal, s.now().UTC(), rotation.AccessID, rotation.RefreshToken)
}

func (s *service) SignOut(ctx context.Context, accessToken string) error {
	err := s.signOut(ctx, accessToken)
	s.record("signout", err)
	return err
}

func (s *service) signOut(ctx context.Context, accessToken string) error {
	claims, err := pkgAuth.ParseAccessTokenAllowExpired(s.jwtCfg, accessToken)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid access token")
	}
	if strings.TrimSpace(claims.ID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid access token")
	}
	if err := s.session.Revoke(ctx, claims.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

func (s *service) Principal(ctx context.Context, id uuid.UUID) (*PrincipalDTO, error) {
	principal, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "principal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load principal")
	}
	return PrincipalFromModel(principal), nil
}

func (s *service) issue(ctx context.Context, principal *models.Principal, now time.Time) (*SessionDTO, error) {
	accessID := session.NewAccessID()
	refreshToken, err := s.session.Generate(ctx, accessID, principal.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store refresh token")
	}
	return s.mint(principal, now, accessID, refreshToken)
}

func (s *service) mint(principal *models.Principal, now time.Time, accessID, refreshToken string) (*SessionDTO, error) {
	accessToken, err := pkgAuth.MintAccessToken(s.jwtCfg, now, pkgAuth.AccessTokenPayload{
		PrincipalID: principal.ID,
		Email:       principal.Email,
		JTI:         accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}
	ttl := pkgAuth.AccessTokenTTL(s.jwtCfg)
	return &SessionDTO{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(ttl / time.Second),
		ExpiresAt:    now.Add(ttl).Unix(),
		User:         PrincipalFromModel(principal),
	}, nil
}

func (s *service) recordSignIn(ctx context.Context, principal *models.Principal) (time.Time, error) {
	now := s.now().UTC()
	if err := s.repo.UpdateLastSignIn(ctx, principal.ID, now); err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update last sign in")
	}
	principal.LastSignInAt = &now
	return now, nil
}

// upgradeHash re-encodes the password when the stored hash predates the
// configured Argon2 costs. Failures leave the old hash in place.
func (s *service) upgradeHash(ctx context.Context, principal *models.Principal, password string) {
	if !security.NeedsRehash(principal.PasswordHash, s.passwordCfg) {
		return
	}
	logCtx := s.logg.WithPrincipalID(ctx, principal.ID.String())
	hash, err := security.HashPassword(password, s.passwordCfg)
	if err != nil {
		s.logg.Error(logCtx, "identity.rehash_failed", err)
		return
	}
	if err := s.repo.UpdatePasswordHash(ctx, principal.ID, hash); err != nil {
		s.logg.Error(logCtx, "identity.rehash_failed", err)
		return
	}
	principal.PasswordHash = hash
	s.logg.Info(logCtx, "identity.password_rehashed")
}

func (s *service) revokeQuietly(ctx context.Context, accessID string) {
	_ = s.session.Revoke(ctx, accessID)
}

func (s *service) record(kind string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(pkgerrors.As(err).Code()))
	}
	s.metrics.IncAuth(kind, outcome)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
