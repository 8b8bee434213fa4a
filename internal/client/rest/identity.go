package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/studiopass/internal/client/gateway"
	pkgerrors "github.com/angelmondragon/studiopass/pkg/errors"
)

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	AccessToken  string             `json:"access_token"`
	RefreshToken string             `json:"refresh_token"`
	TokenType    string             `json:"token_type"`
	ExpiresIn    int64              `json:"expires_in"`
	ExpiresAt    int64              `json:"expires_at"`
	User         *gateway.Principal `json:"user"`
}

func (r sessionResponse) toSession(now time.Time) (*gateway.Session, error) {
	if r.AccessToken == "" || r.User == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "identity service returned no session")
	}
	expiresAt := now.Add(time.Duration(r.ExpiresIn) * time.Second)
	if r.ExpiresAt > 0 {
		expiresAt = time.Unix(r.ExpiresAt, 0).UTC()
	}
	return &gateway.Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		ExpiresAt:    expiresAt,
		Principal:    *r.User,
	}, nil
}

// currentSession loads the stored session, refreshing it when it is about to
// expire. A refresh the server rejects signs the client out.
func (c *Client) currentSession(ctx context.Context) (*gateway.Session, error) {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	session, err := c.store.Load(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load local session")
	}
	if session == nil || !session.ExpiresWithin(c.now(), refreshMargin) {
		return session, nil
	}

	var resp sessionResponse
	err = c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/refresh",
		body:   refreshBody{RefreshToken: session.RefreshToken},
		bearer: session.AccessToken,
	}, &resp)
	if pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) {
		c.logg.Info(ctx, "session.refresh_rejected")
		if clearErr := c.store.Clear(ctx); clearErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, clearErr, "clear local session")
		}
		c.events.Emit(gateway.AuthEvent{Kind: gateway.EventSignedOut})
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	refreshed, err := resp.toSession(c.now())
	if err != nil {
		return nil, err
	}
	if err := c.store.Save(ctx, refreshed); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist refreshed session")
	}
	c.events.Emit(gateway.AuthEvent{Kind: gateway.EventTokenRefreshed, Session: refreshed})
	return refreshed, nil
}

// establish persists a freshly issued session and announces the sign-in.
func (c *Client) establish(ctx context.Context, resp sessionResponse) (*gateway.Session, error) {
	session, err := resp.toSession(c.now())
	if err != nil {
		return nil, err
	}

	c.sessionMu.Lock()
	err = c.store.Save(ctx, session)
	c.sessionMu.Unlock()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist session")
	}

	c.events.Emit(gateway.AuthEvent{Kind: gateway.EventSignedIn, Session: session})
	return session, nil
}

type identityAPI struct {
	c *Client
}

func (a *identityAPI) GetSession(ctx context.Context) (*gateway.Session, error) {
	return a.c.currentSession(ctx)
}

func (a *identityAPI) Subscribe() gateway.Subscription {
	return a.c.events.Subscribe()
}

func (a *identityAPI) SignInWithPassword(ctx context.Context, email, password string) (*gateway.Session, error) {
	var resp sessionResponse
	if err := a.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		body:   credentialsBody{Email: email, Password: password},
	}, &resp); err != nil {
		return nil, err
	}
	return a.c.establish(ctx, resp)
}

func (a *identityAPI) SignUp(ctx context.Context, email, password string) (*gateway.Session, error) {
	var resp sessionResponse
	if err := a.c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body:   credentialsBody{Email: email, Password: password},
	}, &resp); err != nil {
		return nil, err
	}
	return a.c.establish(ctx, resp)
}

// SignOut revokes the session server-side and clears it locally. A session the
// server no longer knows is cleared as well; transport and server failures
// keep the local session so the call can be retried.
func (a *identityAPI) SignOut(ctx context.Context) error {
	c := a.c
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()

	session, err := c.store.Load(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load local session")
	}
	if session != nil {
		err = c.do(ctx, request{
			method: http.MethodPost,
			path:   "/auth/v1/logout",
			bearer: session.AccessToken,
		}, nil)
		if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized) && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return err
		}
		if err := c.store.Clear(ctx); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear local session")
		}
	}

	c.events.Emit(gateway.AuthEvent{Kind: gateway.EventSignedOut})
	return nil
}
