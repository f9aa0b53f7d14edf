package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/peergrade-io/peergrade/internal/auth"
	"github.com/peergrade-io/peergrade/internal/authz"
	"github.com/peergrade-io/peergrade/internal/observability"
	"github.com/peergrade-io/peergrade/internal/platform/httpx"
	"github.com/peergrade-io/peergrade/internal/roles"
	"github.com/peergrade-io/peergrade/internal/shared"
	"github.com/peergrade-io/peergrade/internal/users"
	"github.com/peergrade-io/peergrade/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthHandler    *auth.Handler
	RolesHandler   *roles.Handler
	UsersHandler   *users.Handler
	JobsHandler    *jobs.Handler
	Gate           authz.Gate
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// The root redirects each requester to their role's landing path.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if sess == nil || sess.User() == "" {
			httpx.SeeOther(w, r, "/login")
			return
		}
		role := roles.Role{}
		if id, ok := shared.CurrentUserID(r.Context()); ok {
			if resolved, err := params.Gate.Identity.RequesterRole(r.Context(), id); err == nil {
				role = resolved
			}
		}
		httpx.SeeOther(w, r, authz.HomeDestination(role))
	})

	r.Route("/auth", func(r chi.Router) {
		// Tighter limit than the global one: credential guessing is the
		// threat here, not bulk traffic.
		r.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		params.AuthHandler.MountRoutes(r)
	})
	if params.RolesHandler != nil {
		r.Route("/roles", func(r chi.Router) {
			// The roles package sits below the gate, so the privilege
			// check is applied here at the mount point.
			r.Use(params.Gate.Require(authz.ActionListRoles))
			params.RolesHandler.MountRoutes(r)
		})
	}
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
		r.Route("/anonymized_view", params.UsersHandler.MountAnonymizedView)
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			// Not in the rule table, so this falls to the assistant default.
			r.Use(params.Gate.Require(authz.Action("jobs_health")))
			params.JobsHandler.MountRoutes(r)
		})
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
