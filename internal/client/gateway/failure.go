package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"

	pkgerrors "github.com/angelmondragon/studiopass/pkg/errors"
)

// ErrTransport marks failures where no response was received from the backend.
var ErrTransport = errors.New("backend unreachable")

// Reason is the user-facing category of a failed remote call.
type Reason string

const (
	ReasonInvalidCredentials Reason = "invalid_credentials"
	ReasonAccountInactive    Reason = "account_inactive"
	ReasonRateLimited        Reason = "rate_limited"
	ReasonNetwork            Reason = "network"
	ReasonService            Reason = "service"
	ReasonValidation         Reason = "validation"
	ReasonConflict           Reason = "conflict"
	ReasonNotFound           Reason = "not_found"
	ReasonUnknown            Reason = "unknown"
)

// Failure is a classified remote error.
type Failure struct {
	Reason  Reason
	Code    pkgerrors.Code
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Message != "" {
		return fmt.Sprintf("%s: %s", f.Reason, f.Message)
	}
	return string(f.Reason)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Classify maps an error returned by a gateway call to a Failure. It returns
// nil for nil and passes an existing Failure through.
func Classify(err error) *Failure {
	if err == nil {
		return nil
	}
	var existing *Failure
	if errors.As(err, &existing) {
		return existing
	}

	f := &Failure{Reason: ReasonUnknown, Err: err, Message: err.Error()}

	if errors.Is(err, ErrTransport) || errors.Is(err, context.DeadlineExceeded) {
		f.Reason = ReasonNetwork
		return f
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		f.Reason = ReasonNetwork
		return f
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		return f
	}
	f.Code = typed.Code()
	f.Message = typed.Message()
	switch typed.Code() {
	case pkgerrors.CodeUnauthorized:
		f.Reason = ReasonInvalidCredentials
	case pkgerrors.CodeForbidden:
		f.Reason = ReasonAccountInactive
	case pkgerrors.CodeRateLimit:
		f.Reason = ReasonRateLimited
	case pkgerrors.CodeValidation:
		f.Reason = ReasonValidation
	case pkgerrors.CodeConflict:
		f.Reason = ReasonConflict
	case pkgerrors.CodeNotFound:
		f.Reason = ReasonNotFound
	case pkgerrors.CodeInternal, pkgerrors.CodeDependency, pkgerrors.CodeMemberProvisioning:
		f.Reason = ReasonService
	}
	return f
}

// IsNotFound reports whether err is a not-found response from the backend.
func IsNotFound(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeNotFound)
}
