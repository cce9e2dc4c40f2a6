package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"runclub/core"
	"runclub/gateway/auth"
	"runclub/gateway/middleware"
)

// Rate limit buckets.
const (
	RateLimitRead  = "read"
	RateLimitWrite = "write"
	RateLimitKm    = "km"
)

type Config struct {
	Runtime       *core.Runtime
	Events        EventIndex
	Verifier      *auth.Verifier
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
	Timeout       time.Duration
}

func New(cfg Config) (http.Handler, error) {
	if cfg.Runtime == nil {
		return nil, errors.New("routes: runtime is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("routes: signature verifier is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	clubs := &clubRoutes{rt: cfg.Runtime, events: cfg.Events, logger: logger, timeout: cfg.Timeout}
	tokens := &tokenRoutes{clubRoutes: clubs}
	signed := middleware.Signatures(cfg.Verifier, logger)
	limit := func(key string) func(http.Handler) http.Handler {
		if cfg.RateLimiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return cfg.RateLimiter.Middleware(key)
	}
	oracle := oracleAuth(cfg.Authenticator)

	r.Route("/clubs", func(sr chi.Router) {
		sr.Group(func(g chi.Router) {
			g.Use(limit(RateLimitRead))
			g.Get("/", clubs.listClubs)
			g.Get("/{id}", clubs.getClub)
			g.Get("/{id}/members", clubs.listMembers)
			g.Get("/{id}/km", clubs.totalKm)
			g.Get("/{id}/km/{addr}", clubs.kmBalance)
			g.Get("/{id}/rewards/{addr}", clubs.reward)
			g.Get("/{id}/redemption/{addr}", clubs.redemptionInfo)
			g.Get("/{id}/events", clubs.clubEvents)
		})
		sr.Group(func(g chi.Router) {
			g.Use(limit(RateLimitWrite), signed)
			g.Post("/", clubs.createClub)
			g.Post("/{id}/activate", clubs.activateClub)
			g.Post("/{id}/deposit", clubs.depositFunds)
			g.Delete("/{id}", clubs.removeClub)
			g.Post("/{id}/members", clubs.addMember)
			g.Delete("/{id}/members/{addr}", clubs.removeMember)
			g.Post("/{id}/redeem", clubs.redeem)
		})
		sr.Group(func(g chi.Router) {
			g.Use(limit(RateLimitKm), oracle)
			g.Post("/{id}/km", clubs.addKm)
		})
	})

	r.Route("/members/{addr}", func(sr chi.Router) {
		sr.Use(limit(RateLimitRead))
		sr.Get("/clubs", clubs.memberClubs)
		sr.Get("/events", clubs.memberEvents)
	})

	r.Route("/tokens", func(sr chi.Router) {
		sr.With(limit(RateLimitRead)).Get("/balance/{addr}", tokens.balance)
		sr.Group(func(g chi.Router) {
			g.Use(limit(RateLimitWrite), signed)
			g.Post("/transfer", tokens.transfer)
			g.Post("/mint", tokens.mint)
			g.Post("/burn", tokens.burn)
		})
	})

	return r, nil
}

// oracleAuth gates KM accrual behind the oracle token. Without an
// authenticator the route is closed.
func oracleAuth(authn *middleware.Authenticator) func(http.Handler) http.Handler {
	if authn == nil {
		return func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				writeJSONError(w, http.StatusUnauthorized, errors.New("oracle authentication not configured"))
			})
		}
	}
	return authn.Middleware(middleware.ScopeKmWrite)
}
