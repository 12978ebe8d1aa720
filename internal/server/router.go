package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/openpseudonym/idbroker/internal/services/claims"
	"github.com/openpseudonym/idbroker/internal/services/consent"
	"github.com/openpseudonym/idbroker/internal/services/identity"
	"github.com/openpseudonym/idbroker/internal/services/notify"
)

// RouterOptions controls the construction of the HTTP router.
// Services are required; the rest has sensible defaults.
type RouterOptions struct {
	Identity *identity.Service
	Claims   *claims.Service
	Consent  *consent.Service
	Notify   *notify.Service

	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
	ExtraRoutes   func(chi.Router)
}

// DefaultCORSOptions returns the shared development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles a chi.Router with shared middleware, CORS policy and
// the API handlers mounted. Authentication is injected through
// opts.Middleware so tests and entrypoints can choose their verifier.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	// Baseline middleware shared across entrypoints.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	identityHandlers := NewIdentityHandlers(opts.Identity)
	claimHandlers := NewClaimHandlers(opts.Claims, opts.Consent)
	requestHandlers := NewRequestHandlers(opts.Consent)
	notificationHandlers := NewNotificationHandlers(opts.Notify)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/identity", func(r chi.Router) {
			r.Post("/", identityHandlers.Register)
			r.Get("/", identityHandlers.ListMine)
			r.Get("/{id}", identityHandlers.Get)
			r.Patch("/{id}", identityHandlers.SetDisplayName)
			r.Delete("/{id}", identityHandlers.Delete)
		})

		r.Route("/request", func(r chi.Router) {
			r.Post("/", requestHandlers.Create)
			r.Get("/", requestHandlers.ListMine)
			r.Post("/{id}/accept", requestHandlers.Accept)
			r.Post("/{id}/deny", requestHandlers.Deny)
			r.Delete("/{id}", requestHandlers.Delete)
		})

		r.Route("/claim", func(r chi.Router) {
			r.Put("/", claimHandlers.Upsert)
			r.Get("/", claimHandlers.ListMine)
			r.Get("/{id}", claimHandlers.Get)
			r.Delete("/{id}", claimHandlers.Delete)
			r.Get("/owner/{ownerID}", claimHandlers.VisibleClaims)
		})

		r.Route("/notification", func(r chi.Router) {
			r.Get("/", notificationHandlers.Inbox)
			r.Post("/{id}/read", notificationHandlers.MarkRead)
		})
	})

	if opts.ExtraRoutes != nil {
		opts.ExtraRoutes(r)
	}

	return r
}
