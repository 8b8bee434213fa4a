package controllers

import (
	"net/http"

	"github.com/angelmondragon/studiopass/api/responses"
	"github.com/angelmondragon/studiopass/api/validators"
	"github.com/angelmondragon/studiopass/internal/credentials"
	"github.com/angelmondragon/studiopass/pkg/logger"
)

// GenerateMemberBarcode renders and stores the caller's credential image.
func GenerateMemberBarcode(svc credentials.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("credentials service"))
			return
		}

		caller, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body credentials.IssueRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if logg != nil {
			ctx := logg.WithMemberID(r.Context(), body.MemberID.String())
			r = r.WithContext(ctx)
		}

		result, err := svc.Issue(r.Context(), caller, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
