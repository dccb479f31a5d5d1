package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"staffdesk.org/internal/audit"
	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/directory"
	"staffdesk.org/internal/obs"
	"staffdesk.org/internal/rbac"
	"staffdesk.org/internal/users"
)

const serviceName = "staffdesk-api"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// ReadyProbe is a simple readiness check, e.g. a database ping.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps are the services the HTTP layer calls into.
type Deps struct {
	Gate      *auth.Gate
	Directory *directory.Service
	Users     *users.Service
	Recorder  *audit.Recorder
	Audit     *audit.Query
	Ready     readinessChecker
}

// Options tune the transport.
type Options struct {
	Version      string
	RateBurst    int
	RatePerSec   float64
	MaxBodyBytes int64
	CORSOrigins  []string
	// DetachedAudit writes audit entries without holding the response.
	DetachedAudit bool
}

// API is the HTTP layer.
type API struct {
	router chi.Router
	deps   Deps
	opts   Options
}

func New(deps Deps, opts Options) (*API, error) {
	if deps.Gate == nil || deps.Directory == nil || deps.Users == nil || deps.Audit == nil {
		return nil, errors.New("httpapi: gate, directory, users and audit query are required")
	}
	if deps.Ready == nil {
		deps.Ready = ReadyProbe{}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	a := &API{deps: deps, opts: opts}
	a.router = a.routes()
	return a, nil
}

// Handler returns the root handler with the middleware chain applied.
func (a *API) Handler() http.Handler {
	return RequestID(LoggingJSON(SecurityHeaders(
		RateLimit(a.router, a.opts.RateBurst, a.opts.RatePerSec),
	)))
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: false,
		MaxAge:           600,
	}))
	r.Use(obs.Instrument)
	r.Use(MaxBodyBytes(a.opts.MaxBodyBytes))
	r.Use(AuditMeta)

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Route("/v1/admin", func(ar chi.Router) {
		ar.With(a.require("")).Get("/me", a.handleMe)
		ar.Post("/bootstrap", a.handleBootstrap)

		ar.Route("/users", func(u chi.Router) {
			u.With(a.require(rbac.PermUsersRead)).Get("/", a.handleListUsers)
			u.With(a.require(rbac.PermUsersRead)).Get("/{uid}", a.handleGetUser)
			u.With(a.require(rbac.PermUsersWrite)).Patch("/{uid}", a.handleUpdateUser)
			u.With(a.require(rbac.PermUsersDelete)).Delete("/{uid}", a.handleDeleteUser)
			u.With(a.require(rbac.PermCreditsRead)).Get("/{uid}/credits", a.handleGetCredits)
			u.With(a.require(rbac.PermCreditsWrite)).Post("/{uid}/credits", a.handleAdjustCredits)
		})

		ar.With(a.require(rbac.PermAnalyticsRead)).Get("/analytics/summary", a.handleSummary)

		// The audit query authorizes itself.
		ar.Get("/audit", a.handleAudit)

		ar.Route("/admins", func(ad chi.Router) {
			ad.With(a.require(rbac.PermAdminsRead)).Get("/", a.handleListAdmins)
			ad.With(a.require(rbac.PermAdminsWrite)).Post("/", a.handleGrantAdmin)
			ad.With(a.require(rbac.PermAdminsWrite)).Patch("/{uid}", a.handleUpdateAdmin)
			ad.With(a.require(rbac.PermAdminsWrite)).Delete("/{uid}", a.handleRevokeAdmin)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.deps.Ready.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
