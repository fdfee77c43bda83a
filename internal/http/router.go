package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/authkit/internal/metrics"
	"github.com/aussiebroadwan/authkit/pkg/authkit"
	"github.com/aussiebroadwan/authkit/pkg/httpx"
	"github.com/aussiebroadwan/authkit/pkg/slogx"
	"github.com/prometheus/client_golang/prometheus"
)

// Options carries the router's dependencies. Metrics and Gatherer are
// optional.
type Options struct {
	Manager      *authkit.Manager
	Logger       *slog.Logger
	Version      string
	Limits       httpx.RateLimits
	DefaultRoles []string
	Checks       map[string]Check

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	opts      Options
	startTime time.Time
}

func NewRouter(opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Limits == (httpx.RateLimits{}) {
		opts.Limits = httpx.DefaultRateLimits()
	}

	r := &Router{
		Mux:       http.NewServeMux(),
		opts:      opts,
		startTime: time.Now(),
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(opts.Logger),
	}

	r.registerAuth()
	r.registerPrincipals()
	r.registerMFA()
	r.registerSystem()

	return r
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// handle registers h under pattern, instrumented when metrics are on.
func (r *Router) handle(pattern string, h http.Handler, mws ...httpx.Middleware) {
	if r.opts.Metrics != nil {
		mws = append([]httpx.Middleware{r.opts.Metrics.Middleware(pattern)}, mws...)
	}
	r.Mux.Handle(pattern, httpx.Chain(h, mws...))
}

func (r *Router) authn() httpx.Middleware {
	return httpx.AuthnMiddleware(r.opts.Manager)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Manager: r.opts.Manager, DefaultRoles: r.opts.DefaultRoles}
	limits := r.opts.Limits

	// Signup and password attempts: strict, keyed by IP plus the targeted
	// account so one address can't spray a single account.
	r.handle("POST /v1/register", http.HandlerFunc(h.HandleRegister),
		httpx.RateLimitByIP(limits.Strict),
	)
	r.handle("POST /v1/login", http.HandlerFunc(h.HandleLogin),
		httpx.RateLimitByIPAndField(limits.Strict, "email"),
	)

	// Second factor: strict per ticket, since the client picks its own
	// X-Forwarded-For. The Manager also revokes a ticket after repeated
	// wrong codes.
	r.handle("POST /v1/login/mfa", http.HandlerFunc(h.HandleLoginMFA),
		httpx.RateLimitByField(limits.Strict, "mfa_ticket"),
	)

	r.handle("POST /v1/token/refresh", http.HandlerFunc(h.HandleRefresh),
		httpx.RateLimitByIP(limits.Moderate),
	)
	r.handle("POST /v1/logout", http.HandlerFunc(h.HandleLogout),
		r.authn(),
		httpx.RateLimitByPrincipal(limits.Moderate),
	)
}

func (r *Router) registerPrincipals() {
	h := &PrincipalsHandler{Manager: r.opts.Manager}
	limits := r.opts.Limits

	r.handle("GET /v1/me", http.HandlerFunc(h.HandleMe),
		r.authn(),
		httpx.RateLimitByPrincipal(limits.Lenient),
	)
	r.handle("GET /v1/principals/{id}", http.HandlerFunc(h.HandleGet),
		r.authn(),
		httpx.RateLimitByPrincipal(limits.Lenient),
	)
	r.handle("PUT /v1/principals/{id}/roles", http.HandlerFunc(h.HandleSetRoles),
		r.authn(),
		httpx.RequireRole(AdminRole),
		httpx.RateLimitByPrincipal(limits.Moderate),
	)
}

func (r *Router) registerMFA() {
	h := &MFAHandler{Manager: r.opts.Manager}
	limits := r.opts.Limits

	r.handle("POST /v1/mfa/enroll", http.HandlerFunc(h.HandleEnroll),
		r.authn(),
		httpx.RateLimitByPrincipal(limits.Moderate),
	)
	r.handle("POST /v1/mfa/confirm", http.HandlerFunc(h.HandleConfirm),
		r.authn(),
		httpx.RateLimitByPrincipal(limits.Strict),
	)
	r.handle("DELETE /v1/mfa", http.HandlerFunc(h.HandleDisable),
		r.authn(),
		httpx.RateLimitByPrincipal(limits.Strict),
	)
}

func (r *Router) registerSystem() {
	limits := r.opts.Limits

	r.handle("GET /.well-known/jwks.json", JWKSHandler(r.opts.Manager.Codec),
		httpx.RateLimitByIP(limits.Public),
	)
	r.handle("GET /livez", LivezHandler(r.startTime, r.opts.Version),
		httpx.RateLimitByIP(limits.Lenient),
	)
	r.handle("GET /readyz", ReadyzHandler(r.startTime, r.opts.Version, r.opts.Checks),
		httpx.RateLimitByIP(limits.Lenient),
	)

	if r.opts.Gatherer != nil {
		r.Mux.Handle("GET /metrics", metrics.Handler(r.opts.Gatherer))
	}
}
