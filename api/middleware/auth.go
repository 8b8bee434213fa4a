package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/studiopass/api/responses"
	pkgAuth "github.com/angelmondragon/studiopass/pkg/auth"
	"github.com/angelmondragon/studiopass/pkg/auth/session"
	"github.com/angelmondragon/studiopass/pkg/config"
	pkgerrors "github.com/angelmondragon/studiopass/pkg/errors"
	"github.com/angelmondragon/studiopass/pkg/logger"
)

var errMissingCredentials = pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")

// BearerToken reads the Authorization header. The "Bearer " scheme prefix is
// optional and matched case-insensitively.
func BearerToken(r *http.Request) (string, error) {
	token := strings.TrimSpace(r.Header.Get("Authorization"))
	if scheme, rest, ok := strings.Cut(token, " "); ok && strings.EqualFold(scheme, "bearer") {
		token = strings.TrimSpace(rest)
	}
	if token == "" || strings.EqualFold(token, "bearer") {
		return "", errMissingCredentials
	}
	return token, nil
}

// Auth admits requests carrying a valid access token whose refresh session is
// still live, and attaches the caller's Identity to the request context.
func Auth(cfg config.JWTConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := authenticate(r, cfg, verifier)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithIdentity(r.Context(), id)
			if logg != nil {
				ctx = logg.WithPrincipalID(ctx, id.PrincipalID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, cfg config.JWTConfig, verifier session.AccessSessionChecker) (Identity, error) {
	token, err := BearerToken(r)
	if err != nil {
		return Identity{}, err
	}

	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	switch {
	case errors.Is(err, pkgAuth.ErrTokenExpired):
		return Identity{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "token expired")
	case err != nil:
		return Identity{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	case claims.ID == "":
		return Identity{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id")
	}

	principalID, err := claims.PrincipalID()
	if err != nil {
		return Identity{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if err := checkSession(r.Context(), verifier, claims.ID); err != nil {
		return Identity{}, err
	}
	return Identity{PrincipalID: principalID, Email: claims.Email, AccessID: claims.ID}, nil
}

func checkSession(ctx context.Context, verifier session.AccessSessionChecker, accessID string) error {
	if verifier == nil {
		return nil
	}
	ok, err := verifier.HasSession(ctx, accessID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable")
	}
	return nil
}
