package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jclermont/botdeck/internal/auth"
	"github.com/jclermont/botdeck/internal/billing"
	"github.com/jclermont/botdeck/internal/identity"
	"github.com/jclermont/botdeck/internal/invite"
	"github.com/jclermont/botdeck/internal/metrics"
	"github.com/jclermont/botdeck/internal/oauth"
	"github.com/jclermont/botdeck/internal/ratelimit"
)

// Pinger reports database liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// identityDirectory is the identity store surface the HTTP layer reads from.
type identityDirectory interface {
	identityGetter
	identityLister
}

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Auth           *auth.Service
	Codec          *auth.TokenCodec
	Google         *oauth.Google
	State          *oauth.StateSealer
	Invites        *invite.Manager
	Materializer   *billing.Materializer
	Identities     identityDirectory
	Bots           botStore
	Limiter        *ratelimit.Limiter
	Metrics        *metrics.Metrics
	DBPool         Pinger
	AllowedOrigins []string
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}

	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(slogRequestLogger)
	r.Use(metricsMiddleware(deps.Metrics))

	// Handlers.
	authH := newAuthHandler(deps.Auth, deps.Codec, deps.Google, deps.State, deps.Metrics)
	invitesH := newInvitesHandler(deps.Invites, deps.Codec, deps.Metrics)
	billingH := newBillingHandler(deps.Materializer, deps.Identities, deps.Metrics)
	botsH := newBotsHandler(deps.Bots)
	usersH := newUsersHandler(deps.Identities)

	// Health check.
	r.Get("/health", healthHandler(deps.DBPool))

	// Metrics summary.
	r.Get("/metrics", deps.Metrics.Handler())

	limited := func(next http.Handler) http.Handler { return next }
	if deps.Limiter != nil {
		limited = ratelimit.Middleware(deps.Limiter, func() {
			deps.Metrics.IncRateLimitRejection("credential")
		})
	}

	r.Route("/api/v1", func(api chi.Router) {
		// Public (unauthenticated) routes. Credential-bearing ones are
		// rate limited per source IP.
		api.Group(func(pub chi.Router) {
			pub.Use(limited)
			pub.Post("/auth/login", authH.Login)
			pub.Post("/invitations/redeem", invitesH.Redeem)
		})
		api.Get("/auth/google", authH.GoogleBegin)
		api.Get("/auth/google/callback", authH.GoogleCallback)
		api.Post("/auth/logout", authH.Logout)

		// Session-authed routes.
		api.Group(func(sr chi.Router) {
			sr.Use(auth.RequireSession(deps.Codec))

			sr.Get("/auth/session", authH.Session)
			sr.Post("/billing/checkout/finalize", billingH.Finalize)
			sr.Get("/bots", botsH.List)
			sr.Get("/bots/{id}", botsH.Get)

			// Elevated routes.
			sr.Group(func(er chi.Router) {
				er.Use(auth.RequireRole(identity.RoleAdmin, identity.RoleManager))
				er.Post("/invitations", invitesH.Create)
				er.Get("/users", usersH.List)
			})
		})
	})

	return r
}

// healthHandler reports service and database liveness.
func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "ok"}
		code := http.StatusOK

		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				status["status"] = "degraded"
				status["database"] = "unreachable"
				code = http.StatusServiceUnavailable
			} else {
				status["database"] = "connected"
			}
		}

		writeJSON(w, code, status)
	}
}

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}

// metricsMiddleware records request counts and latencies against the route
// pattern, not the raw path, to keep label cardinality bounded.
func metricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}
			m.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, fmt.Sprintf("%d", ww.Status())).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		})
	}
}
