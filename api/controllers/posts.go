package controllers

import (
	"net/http"

	"github.com/angelmondragon/studiopass/api/responses"
	"github.com/angelmondragon/studiopass/api/validators"
	"github.com/angelmondragon/studiopass/internal/posts"
	"github.com/angelmondragon/studiopass/pkg/logger"
	"github.com/angelmondragon/studiopass/pkg/pagination"
)

const cursorMaxLen = 256

// PostsList pages through announcements newest first.
func PostsList(svc posts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("posts service"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", posts.DefaultFeedLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), pagination.Params{
			Limit:  limit,
			Cursor: validators.ParseQueryString(r, "cursor", cursorMaxLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}
