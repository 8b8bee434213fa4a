package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/studiopass/api/controllers"
	"github.com/angelmondragon/studiopass/api/middleware"
	"github.com/angelmondragon/studiopass/internal/credentials"
	"github.com/angelmondragon/studiopass/internal/identity"
	"github.com/angelmondragon/studiopass/internal/members"
	"github.com/angelmondragon/studiopass/internal/memberships"
	"github.com/angelmondragon/studiopass/internal/posts"
	"github.com/angelmondragon/studiopass/internal/visits"
	"github.com/angelmondragon/studiopass/pkg/auth/session"
	"github.com/angelmondragon/studiopass/pkg/config"
	"github.com/angelmondragon/studiopass/pkg/logger"
	"github.com/angelmondragon/studiopass/pkg/metrics"
	"github.com/angelmondragon/studiopass/pkg/redis"
)

// Params bundles everything the API router serves.
type Params struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       *redis.Client
	Sessions    session.AccessSessionChecker
	HTTPMetrics *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer

	Identity    identity.Service
	Members     members.Service
	Memberships memberships.Service
	Posts       posts.Service
	Visits      visits.Service
	Credentials credentials.Service
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	loginPolicy := middleware.AuthRateLimitPolicy{
		Name:     "login",
		Window:   cfg.AuthRateLimit.LoginWindow,
		PerIP:    cfg.AuthRateLimit.LoginIPLimit,
		PerEmail: cfg.AuthRateLimit.LoginEmailLimit,
	}
	signupPolicy := middleware.AuthRateLimitPolicy{
		Name:     "signup",
		Window:   cfg.AuthRateLimit.SignupWindow,
		PerIP:    cfg.AuthRateLimit.SignupIPLimit,
		PerEmail: cfg.AuthRateLimit.SignupEmailLimit,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.DB, redisPinger(p.Redis), logg))
	})

	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	authenticated := middleware.Auth(cfg.JWT, p.Sessions, logg)

	r.Route("/auth/v1", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(signupPolicy, rateLimiter(p.Redis), logg)).Post("/signup", controllers.AuthSignUp(p.Identity, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, rateLimiter(p.Redis), logg)).Post("/token", controllers.AuthToken(p.Identity, logg))
		r.Post("/refresh", controllers.AuthRefresh(p.Identity, logg))
		r.Post("/logout", controllers.AuthLogout(p.Identity, logg))
		r.With(authenticated).Get("/user", controllers.AuthUser(p.Identity, logg))
	})

	r.Route("/rest/v1", func(r chi.Router) {
		r.Use(authenticated)

		r.Route("/members/{memberId}", func(r chi.Router) {
			r.Get("/", controllers.MemberGet(p.Members, logg))
			r.Put("/", controllers.MemberUpsert(p.Members, logg))
			r.Get("/memberships", controllers.MembershipsList(p.Memberships, logg))
			r.Get("/memberships/current", controllers.MembershipCurrent(p.Memberships, logg))
			r.Get("/visits/count", controllers.VisitCount(p.Visits, logg))
		})

		r.Get("/membership-types", controllers.MembershipTypesList(p.Memberships, logg))
		r.Get("/membership-types/{typeId}", controllers.MembershipTypeGet(p.Memberships, logg))
		r.Get("/posts", controllers.PostsList(p.Posts, logg))
	})

	r.Route("/functions/v1", func(r chi.Router) {
		r.Use(authenticated)
		r.Post("/generate_member_barcode", controllers.GenerateMemberBarcode(p.Credentials, logg))
	})

	return r
}

// rateLimiter keeps a nil client from becoming a non-nil interface value.
func rateLimiter(client *redis.Client) middleware.RateCounter {
	if client == nil {
		return nil
	}
	return client
}

func redisPinger(client *redis.Client) controllers.Pinger {
	if client == nil {
		return nil
	}
	return client
}
