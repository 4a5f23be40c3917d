package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hackgods/dental-clinic-portal/internal/account"
	"github.com/hackgods/dental-clinic-portal/internal/appointment"
	"github.com/hackgods/dental-clinic-portal/internal/dashboard"
	"github.com/hackgods/dental-clinic-portal/internal/logging"
	"github.com/hackgods/dental-clinic-portal/internal/session"
	"github.com/hackgods/dental-clinic-portal/internal/store"
)

// Directory is satisfied by *account.Directory.
type Directory interface {
	dashboard.Directory
	Authenticate(ctx context.Context, email, password string) (account.Account, error)
}

type RouterConfig struct {
	Directory    Directory
	Registry     *appointment.Registry
	Docs         store.Store
	Session      session.Config
	Gatherer     prometheus.Gatherer
	Logger       *logging.Logger
	Env          string
	Version      string
	BookingDelay time.Duration
	LoginRate    float64
	LoginBurst   int
	Clock        func() time.Time
}

// Server holds what the handlers share.
type Server struct {
	dir          Directory
	registry     *appointment.Registry
	docs         store.Store
	sessionCfg   session.Config
	logger       *logging.Logger
	bookingDelay time.Duration
	now          func() time.Time
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.LoginRate <= 0 {
		cfg.LoginRate = 1
	}
	s := &Server{
		dir:          cfg.Directory,
		registry:     cfg.Registry,
		docs:         cfg.Docs,
		sessionCfg:   cfg.Session,
		logger:       cfg.Logger.With("component", "api"),
		bookingDelay: cfg.BookingDelay,
		now:          cfg.Clock,
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.logger))

	health := NewHealthHandler(map[string]Pinger{"store": cfg.Docs}, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/services", s.listServices)

	limiter := NewRateLimiter(cfg.LoginRate, cfg.LoginBurst)

	r.Group(func(r chi.Router) {
		r.Use(ClientContextMiddleware)
		r.Use(s.authenticate)

		r.With(limiter.Limit).Post("/auth/register", s.register)
		r.With(limiter.Limit).Post("/auth/login", s.login)
		r.Post("/auth/logout", s.logout)

		r.Group(func(r chi.Router) {
			r.Use(requireSession)

			r.Get("/auth/session", s.currentSession)
			r.Get("/doctors", s.listDoctors)
			r.Get("/patients", s.listPatients)
			r.Get("/slots", s.availableSlots)

			r.Get("/appointments", s.listAppointments)
			r.Post("/appointments", s.createAppointment)
			r.Get("/appointments/{id}", s.getAppointment)
			r.Post("/appointments/{id}/confirm", s.confirmAppointment)
			r.Post("/appointments/{id}/complete", s.completeAppointment)
			r.Post("/appointments/{id}/cancel", s.cancelAppointment)
			r.Post("/appointments/{id}/reschedule", s.rescheduleAppointment)
			r.Put("/appointments/{id}/notes", s.annotateAppointment)
			r.Put("/appointments/{id}/doctor", s.assignDoctor)
			r.Delete("/appointments/{id}", s.removeAppointment)
		})
	})

	return r
}

// sessionsFor scopes the session store to the request's client context.
func (s *Server) sessionsFor(ctx context.Context) *session.Store {
	docs := store.Namespace(s.docs, "ctx/"+clientContextID(ctx)+"/")
	return session.NewStore(docs, s.dir, s.sessionCfg, s.logger).WithClock(s.now).WithTokenIndex(s.docs)
}

// dashboardFor opens the caller's dashboard.
func (s *Server) dashboardFor(ctx context.Context) (any, error) {
	sess, _ := sessionFrom(ctx)
	return dashboard.Open(sess, dashboard.Deps{Appointments: s.registry, Directory: s.dir})
}
