// Package rest implements the client gateway over the studio backend's HTTP API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/studiopass/internal/client/gateway"
	pkgerrors "github.com/angelmondragon/studiopass/pkg/errors"
	"github.com/angelmondragon/studiopass/pkg/logger"
	"github.com/angelmondragon/studiopass/pkg/types"
)

const (
	defaultTimeout           = 15 * time.Second
	refreshMargin            = 30 * time.Second
	errorBodyReadLimit int64 = 4096
)

var errBaseURLRequired = errors.New("api base url is required")

// SessionStore persists the signed-in session between runs.
type SessionStore interface {
	Load(ctx context.Context) (*gateway.Session, error)
	Save(ctx context.Context, session *gateway.Session) error
	Clear(ctx context.Context) error
}

// Client talks to the studio backend and owns the local session.
type Client struct {
	httpClient *http.Client
	baseURL    string
	store      SessionStore
	logg       *logger.Logger
	now        func() time.Time

	events gateway.Broadcaster

	// sessionMu serializes reads of the stored session with refresh and sign-out.
	sessionMu sync.Mutex
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClock overrides the clock used for session expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient builds a backend client rooted at baseURL.
func NewClient(baseURL string, store SessionStore, logg *logger.Logger, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	client := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    trimmed,
		store:      store,
		logg:       logg,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// Gateway exposes the client through every gateway surface.
func (c *Client) Gateway() gateway.Gateway {
	return gateway.Gateway{
		Identity:    &identityAPI{c: c},
		Members:     &membersAPI{c: c},
		Memberships: &membershipsAPI{c: c},
		Posts:       &postsAPI{c: c},
		Visits:      &visitsAPI{c: c},
		Functions:   &functionsAPI{c: c},
	}
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// bearer is sent as the access token; authed requests fill it from the session.
	bearer string
	authed bool
}

func (c *Client) do(ctx context.Context, req request, out any) error {
	if req.authed {
		session, err := c.currentSession(ctx)
		if err != nil {
			return err
		}
		if session == nil {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "not signed in")
		}
		req.bearer = session.AccessToken
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal request")
		}
		body = bytes.NewReader(payload)
	}

	endpoint := c.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.bearer)
	}

	ctx = c.logg.WithFields(ctx, map[string]any{"method": req.method, "path": req.path})
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logg.Debug(ctx, "gateway.transport_error")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("%w: %v", gateway.ErrTransport, err), "request failed")
	}
	defer func() { _ = resp.Body.Close() }()
	c.logg.Debug(c.logg.WithField(ctx, "status", resp.StatusCode), "gateway.response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var envelope types.Envelope[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode response")
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode response data")
	}
	return nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))

	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if typed := envelope.Error.Typed(); typed != nil {
			return typed
		}
	}

	return pkgerrors.Wrap(
		pkgerrors.CodeForStatus(resp.StatusCode),
		fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))),
		http.StatusText(resp.StatusCode),
	)
}
