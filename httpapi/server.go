package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/MrEthical07/storeauth"
	"github.com/MrEthical07/storeauth/account"
	"github.com/MrEthical07/storeauth/middleware"
)

// Options configures NewRouter.
type Options struct {
	Logger *zap.Logger
	// Registerer receives the HTTP collectors. Nil disables HTTP metrics.
	Registerer prometheus.Registerer
	// Gatherer backs /metrics. Nil hides the route.
	Gatherer prometheus.Gatherer
	// RequestTimeout bounds each request context. Zero means 15s.
	RequestTimeout time.Duration
}

type handler struct {
	engine *storeauth.Engine
	log    *zap.Logger
}

// NewRouter returns the HTTP surface of engine.
func NewRouter(engine *storeauth.Engine, opts Options) (http.Handler, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	h := &handler{engine: engine, log: log.Named("http")}

	r := chi.NewRouter()
	r.Use(withRequestLogger(h.log))
	r.Use(chimw.Recoverer)
	if opts.Registerer != nil {
		m, err := newHTTPMetrics(opts.Registerer)
		if err != nil {
			return nil, err
		}
		r.Use(m.instrument)
	}
	r.Use(chimw.Timeout(timeout))

	r.Get("/healthz", h.health)
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	authed := middleware.Guard(WriteError)
	active := middleware.Guard(WriteError, middleware.RequireActive())
	verified := middleware.Guard(WriteError, middleware.RequireActive(), middleware.RequireVerified())
	manager := middleware.Guard(WriteError, middleware.RequireActive(), middleware.RequireRole(account.RoleManager))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Identify(engine, WriteError))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", h.signUp)
			r.Post("/signin", h.signIn)
			r.Delete("/signout", h.signOut)
			r.Get("/oauth/{provider}", h.oauthRedirect)
			r.Get("/oauth/{provider}/callback", h.oauthCallback)
			r.Post("/oauth/mfa", h.oauthMFA)
			r.Get("/confirm-email", h.confirmEmail)
			r.Post("/recover", h.recoverAccount)
			r.Post("/reset-password", h.resetPassword)
			r.Post("/reactivate", h.requestReactivation)
			r.Post("/reactivate/confirm", h.confirmReactivation)
		})

		r.Route("/users", func(r chi.Router) {
			r.Route("/me", func(r chi.Router) {
				r.With(authed).Get("/", h.me)
				r.With(active).Patch("/", h.editProfile)
				r.With(active).Delete("/", h.deactivate)
				r.With(authed).Post("/verification-email", h.resendVerification)
				r.With(active).Patch("/password", h.changePassword)
				r.With(active).Post("/password", h.createPassword)
				r.With(active).Patch("/email", h.changeEmail)
				r.With(verified).Post("/mfa/setup", h.setupMFA)
				r.With(verified).Post("/mfa/enable", h.enableMFA)
				r.With(verified).Post("/mfa/disable", h.disableMFA)
				r.With(active).Get("/oauth/{provider}", h.connectOAuth)
				r.With(active).Delete("/oauth", h.disconnectOAuth)
				r.With(authed).Get("/sessions", h.listSessions)
				r.With(authed).Delete("/sessions", h.signOutAll)
				r.With(authed).Delete("/sessions/{handle}", h.revokeSession)
			})
			r.With(manager).Patch("/{id}/status", h.setStatus)
		})
	})

	return r, nil
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.engine.Ping(ctx); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func identity(r *http.Request) storeauth.Identity {
	id, _ := middleware.IdentityFromContext(r.Context())
	return id
}
