package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/studiopass/api/middleware"
	pkgerrors "github.com/angelmondragon/studiopass/pkg/errors"
)

func callerID(r *http.Request) (uuid.UUID, error) {
	id := middleware.PrincipalIDFromContext(r.Context())
	if id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "principal context missing")
	}
	return id, nil
}

func unavailable(name string) error {
	return pkgerrors.New(pkgerrors.CodeInternal, name+" unavailable")
}
