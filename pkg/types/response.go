// Package types holds the JSON envelopes shared by the studio API and its clients.
package types

import pkgerrors "github.com/angelmondragon/studiopass/pkg/errors"

// Envelope wraps every successful response body.
type Envelope[T any] struct {
	Data T `json:"data"`
}

type SuccessEnvelope = Envelope[any]

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Typed rebuilds the error the server encoded. It returns nil when the body
// carried no code.
func (e APIError) Typed() *pkgerrors.Error {
	if e.Code == "" {
		return nil
	}
	return pkgerrors.New(pkgerrors.Code(e.Code), e.Message).WithDetails(e.Details)
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
