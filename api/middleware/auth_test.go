package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/studiopass/pkg/auth"
	"github.com/angelmondragon/studiopass/pkg/auth/session"
	"github.com/angelmondragon/studiopass/pkg/config"
	"github.com/angelmondragon/studiopass/pkg/types"
)

var testJWT = config.JWTConfig{Secret: "studio-secret", Issuer: "studiopass", ExpirationMinutes: 15}

type stubSessionVerifier struct {
	ok  bool
	err error
}

func (s stubSessionVerifier) HasSession(ctx context.Context, accessID string) (bool, error) {
	return s.ok, s.err
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, issuedAt time.Time, principalID uuid.UUID) (string, string) {
	t.Helper()
	accessID := session.NewAccessID()
	token, err := auth.MintAccessToken(cfg, issuedAt, auth.AccessTokenPayload{
		PrincipalID: principalID,
		Email:       "ana@studio.ba",
		JTI:         accessID,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token, accessID
}

func serveAuth(verifier session.AccessSessionChecker, authorization string, next http.HandlerFunc) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/rest/v1/members/me", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	Auth(testJWT, verifier, nil)(next).ServeHTTP(rec, req)
	return rec
}

func TestAuthRejects(t *testing.T) {
	valid, _ := mintTestToken(t, testJWT, time.Now(), uuid.New())
	expired, _ := mintTestToken(t, testJWT, time.Now().Add(-time.Hour), uuid.New())
	foreignCfg := testJWT
	foreignCfg.Issuer = "someone-else"
	foreign, _ := mintTestToken(t, foreignCfg, time.Now(), uuid.New())

	cases := []struct {
		name          string
		authorization string
		verifier      stubSessionVerifier
		status        int
		message       string
	}{
		{name: "no header", verifier: stubSessionVerifier{ok: true}, status: http.StatusUnauthorized, message: "missing credentials"},
		{name: "bare scheme", authorization: "Bearer   ", verifier: stubSessionVerifier{ok: true}, status: http.StatusUnauthorized, message: "missing credentials"},
		{name: "garbage token", authorization: "Bearer not-a-jwt", verifier: stubSessionVerifier{ok: true}, status: http.StatusUnauthorized, message: "invalid token"},
		{name: "foreign issuer", authorization: "Bearer " + foreign, verifier: stubSessionVerifier{ok: true}, status: http.StatusUnauthorized, message: "invalid token"},
		{name: "expired", authorization: "Bearer " + expired, verifier: stubSessionVerifier{ok: true}, status: http.StatusUnauthorized, message: "token expired"},
		{name: "revoked session", authorization: "Bearer " + valid, verifier: stubSessionVerifier{ok: false}, status: http.StatusUnauthorized, message: "session unavailable"},
		{name: "session store down", authorization: "Bearer " + valid, verifier: stubSessionVerifier{err: errors.New("redis: connection refused")}, status: http.StatusServiceUnavailable, message: "dependency unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serveAuth(tc.verifier, tc.authorization, func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("rejected request reached the handler")
			})
			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, rec.Code)
			}
			var body types.ErrorEnvelope
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error.Message != tc.message {
				t.Fatalf("expected message %q got %q", tc.message, body.Error.Message)
			}
		})
	}
}

func TestAuthAttachesIdentity(t *testing.T) {
	principalID := uuid.New()
	token, accessID := mintTestToken(t, testJWT, time.Now(), principalID)

	var got Identity
	rec := serveAuth(stubSessionVerifier{ok: true}, "bearer "+token, func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatal("expected identity in context")
		}
		got = id
		if PrincipalIDFromContext(r.Context()) != principalID {
			t.Fatal("principal accessor disagrees with identity")
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
	want := Identity{PrincipalID: principalID, Email: "ana@studio.ba", AccessID: accessID}
	if got != want {
		t.Fatalf("expected %+v got %+v", want, got)
	}
}

func TestBearerTokenAcceptsRawToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "  raw-token ")
	token, err := BearerToken(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "raw-token" {
		t.Fatalf("unexpected token %q", token)
	}
}
