// Package web serves the HTML board and the JSON API over net/http.
package web

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/Proton-105/workout-ledger/internal/civil"
	"github.com/Proton-105/workout-ledger/internal/domain"
	apperrors "github.com/Proton-105/workout-ledger/internal/errors"
	"github.com/Proton-105/workout-ledger/internal/grid"
	"github.com/Proton-105/workout-ledger/internal/health"
	"github.com/Proton-105/workout-ledger/internal/idempotency"
	"github.com/Proton-105/workout-ledger/internal/ledger"
	"github.com/Proton-105/workout-ledger/internal/middleware"
	"github.com/Proton-105/workout-ledger/internal/ratelimit"
	"github.com/Proton-105/workout-ledger/pkg/config"
	"github.com/Proton-105/workout-ledger/pkg/logger"
	"github.com/Proton-105/workout-ledger/pkg/metrics"
)

//go:embed templates/*.html
var templateFS embed.FS

// Ledger records days and reads history.
type Ledger interface {
	RecordWorkout(ctx context.Context, userID string, date civil.Date) (ledger.Outcome, error)
	RecordSkip(ctx context.Context, userID string, date civil.Date) (ledger.Outcome, error)
	History(ctx context.Context, userID string) ([]domain.DayRecord, error)
	HistoryBetween(ctx context.Context, userID string, from, to civil.Date) ([]domain.DayRecord, error)
}

// Users resolves slots and profiles.
type Users interface {
	List(ctx context.Context) ([]domain.User, error)
	Get(ctx context.Context, id string) (*domain.User, error)
	Profile(ctx context.Context, id string) (*domain.Profile, error)
	Rename(ctx context.Context, id, name string) (*domain.User, error)
}

// Probes answers health endpoints.
type Probes interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) error
	Report(ctx context.Context) health.Report
}

// Deps groups what the server needs. Guard, Idempotency and Probes are optional.
type Deps struct {
	Ledger      Ledger
	Users       Users
	Probes      Probes
	Guard       *ratelimit.Guard
	Idempotency idempotency.Manager
	Errors      *apperrors.Handler
	Config      config.WebConfig
	Location    *time.Location
	Log         *slog.Logger
	Now         func() time.Time
}

// Server holds the HTTP handlers.
type Server struct {
	ledger      Ledger
	users       Users
	probes      Probes
	guard       *ratelimit.Guard
	idempotency idempotency.Manager
	errors      *apperrors.Handler
	cfg         config.WebConfig
	loc         *time.Location
	log         *slog.Logger
	now         func() time.Time
	tmpl        *template.Template
}

// NewServer validates deps and parses the page templates.
func NewServer(deps Deps) (*Server, error) {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	cfg := deps.Config
	if cfg.GridWeeks <= 0 {
		cfg.GridWeeks = grid.DefaultWeeks
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "ledger_user"
	}
	errHandler := deps.Errors
	if errHandler == nil {
		errHandler = apperrors.NewHandler(log, false)
	}

	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Server{
		ledger:      deps.Ledger,
		users:       deps.Users,
		probes:      deps.Probes,
		guard:       deps.Guard,
		idempotency: deps.Idempotency,
		errors:      errHandler,
		cfg:         cfg,
		loc:         loc,
		log:         log.With(slog.String("component", "web")),
		now:         now,
		tmpl:        tmpl,
	}, nil
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mutation := func(h http.HandlerFunc) http.Handler {
		return middleware.Chain(h,
			middleware.RateLimit(s.guard, ratelimit.ScopeMutation, s.subject, s.log),
			middleware.Idempotency(s.idempotency, s.subject, idempotency.DefaultTTL, s.log),
		)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /select", s.handleSelect)
	mux.Handle("POST /workout", mutation(s.handleRecord(operationWorkout)))
	mux.Handle("POST /skip", mutation(s.handleRecord(operationSkip)))
	mux.Handle("POST /users/{id}/name", mutation(s.handleRename))

	mux.HandleFunc("GET /api/users", s.handleAPIUsers)
	mux.HandleFunc("GET /api/users/{id}/days", s.handleAPIDays)

	mux.HandleFunc("GET /healthz", s.handleLiveness)
	mux.HandleFunc("GET /readyz", s.handleReadiness)
	mux.Handle("GET /metrics", metrics.Handler())

	return middleware.Chain(mux,
		logger.Middleware,
		middleware.Logging(s.log),
		middleware.Metrics,
		middleware.RateLimit(s.guard, ratelimit.ScopeClient, middleware.ClientIP, s.log),
		middleware.Recovery(s.log),
	)
}

// subject keys mutation limits and idempotency by the user the request acts on: the
// form's user, then the path's, then the selection cookie. Without any it falls back to
// the client address.
func (s *Server) subject(r *http.Request) string {
	if id := r.FormValue("user"); id != "" {
		return "user:" + id
	}
	if id := r.PathValue("id"); id != "" {
		return "user:" + id
	}
	if c, err := r.Cookie(s.cfg.CookieName); err == nil && c.Value != "" {
		return "user:" + c.Value
	}
	return "client:" + middleware.ClientIP(r)
}

func (s *Server) today() civil.Date {
	return civil.Today(s.now(), s.loc)
}
