package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lumalingua/api/internal/platform/httpx"
)

// RouteRegistrar mounts a group of endpoints on the router it receives.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers
	groups      []RouteRegistrar
}

// Option tweaks the router before it is built.
type Option func(*routerConfig)

const (
	apiPrefix         = "/api"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter builds the chi router: shared middleware, JSON 404/405 envelopes,
// health probes outside the /api prefix, and the site route groups under it.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers(nil)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode,
			fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed",
			fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(apiPrefix, func(api chi.Router) {
		for _, register := range cfg.groups {
			if register != nil {
				register(api)
			}
		}
	})

	return r
}

// WithMiddlewares adds global middleware after the built-in chi set.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers swaps the probes served at /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

func withGroup(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.groups = append(cfg.groups, reg)
	}
}

// WithPricingRoutes mounts the pricing endpoints.
func WithPricingRoutes(reg RouteRegistrar) Option { return withGroup(reg) }

// WithSessionRoutes mounts the session cookie endpoints.
func WithSessionRoutes(reg RouteRegistrar) Option { return withGroup(reg) }

// WithThemeRoutes mounts the theme cookie endpoint.
func WithThemeRoutes(reg RouteRegistrar) Option { return withGroup(reg) }

// WithCommentRoutes mounts the testimonial endpoints.
func WithCommentRoutes(reg RouteRegistrar) Option { return withGroup(reg) }

// WithCheckoutRoutes mounts the checkout endpoints.
func WithCheckoutRoutes(reg RouteRegistrar) Option { return withGroup(reg) }

// WithNewsletterRoutes mounts the newsletter signup endpoint.
func WithNewsletterRoutes(reg RouteRegistrar) Option { return withGroup(reg) }

// WithBookingRoutes mounts the booking endpoints.
func WithBookingRoutes(reg RouteRegistrar) Option { return withGroup(reg) }
