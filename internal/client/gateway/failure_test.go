package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/studiopass/pkg/errors"
)

func TestClassifyMapsCodes(t *testing.T) {
	cases := map[pkgerrors.Code]Reason{
		pkgerrors.CodeUnauthorized:       ReasonInvalidCredentials,
		pkgerrors.CodeForbidden:          ReasonAccountInactive,
		pkgerrors.CodeRateLimit:          ReasonRateLimited,
		pkgerrors.CodeValidation:         ReasonValidation,
		pkgerrors.CodeConflict:           ReasonConflict,
		pkgerrors.CodeNotFound:           ReasonNotFound,
		pkgerrors.CodeDependency:         ReasonService,
		pkgerrors.CodeInternal:           ReasonService,
		pkgerrors.CodeMemberProvisioning: ReasonService,
	}
	for code, want := range cases {
		f := Classify(fmt.Errorf("call: %w", pkgerrors.New(code, "boom")))
		if f.Reason != want {
			t.Fatalf("code %s: expected %s, got %s", code, want, f.Reason)
		}
		if f.Code != code {
			t.Fatalf("expected code %s, got %s", code, f.Code)
		}
		if f.Message != "boom" {
			t.Fatalf("expected message boom, got %q", f.Message)
		}
	}
}

func TestClassifyTransport(t *testing.T) {
	if got := Classify(fmt.Errorf("%w: dial tcp", ErrTransport)).Reason; got != ReasonNetwork {
		t.Fatalf("expected network, got %s", got)
	}
	if got := Classify(context.DeadlineExceeded).Reason; got != ReasonNetwork {
		t.Fatalf("expected network for deadline, got %s", got)
	}
}

func TestClassifyNilAndPassthrough(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatal("expected nil failure for nil error")
	}
	orig := &Failure{Reason: ReasonConflict}
	if got := Classify(fmt.Errorf("wrapped: %w", orig)); got != orig {
		t.Fatalf("expected existing failure to pass through, got %+v", got)
	}
	if got := Classify(errors.New("odd")).Reason; got != ReasonUnknown {
		t.Fatalf("expected unknown, got %s", got)
	}
}

func TestFailureUnwrap(t *testing.T) {
	cause := pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
	f := Classify(cause)
	if !errors.Is(f, cause) {
		t.Fatal("expected failure to unwrap to its cause")
	}
	if !IsNotFound(f) {
		t.Fatal("expected IsNotFound through the failure")
	}
}

func TestSessionExpiresWithin(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{ExpiresAt: now.Add(20 * time.Second)}
	if !s.ExpiresWithin(now, 30*time.Second) {
		t.Fatal("expected session expiring in 20s to be within 30s")
	}
	if s.ExpiresWithin(now, 10*time.Second) {
		t.Fatal("expected session expiring in 20s not to be within 10s")
	}
	var nilSession *Session
	if !nilSession.ExpiresWithin(now, 0) {
		t.Fatal("expected nil session to count as expired")
	}
}
