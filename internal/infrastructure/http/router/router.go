package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"riskguard/internal/infrastructure/auth"
	"riskguard/internal/interfaces/http/handler"
	"riskguard/internal/interfaces/http/middleware"
)

// Config holds router-level settings
type Config struct {
	Production      bool
	MetricsEnabled  bool
	MetricsPath     string
	MaxWebhookBytes int64
	AllowedOrigins  []string
}

// Deps are the handlers and trust-boundary collaborators the routes use
type Deps struct {
	Risk     *handler.RiskHandler
	Auth     *handler.AuthHandler
	Webhook  *handler.WebhookHandler
	Health   *handler.HealthHandler
	Gate     middleware.WebhookGate
	Verifier middleware.TokenVerifier
	Checker  middleware.FraudChecker
	Logger   *zap.Logger
}

// Router holds all HTTP handlers
type Router struct {
	mux  chi.Router
	cfg  Config
	deps Deps
}

// NewRouter creates a new router with all routes configured
func NewRouter(cfg Config, deps Deps) *Router {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	r := &Router{
		mux:  chi.NewRouter(),
		cfg:  cfg,
		deps: deps,
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		STSSeconds:            31536000,
		STSIncludeSubdomains:  true,
		IsDevelopment:         !r.cfg.Production,
	})

	r.mux.Use(chimw.RequestID)
	r.mux.Use(chimw.Recoverer)
	r.mux.Use(requestLogger(r.deps.Logger))
	r.mux.Use(sec.Handler)
	r.mux.Use(cors(r.cfg.AllowedOrigins))

	// Health endpoints
	r.mux.Get("/health", r.deps.Health.Health)
	r.mux.Get("/ready", r.deps.Health.Ready)
	r.mux.Get("/live", r.deps.Health.Live)
	if r.cfg.MetricsEnabled {
		r.mux.Handle(r.cfg.MetricsPath, handler.MetricsHandler())
	}

	// Payment provider webhooks
	webhookGate := middleware.Webhook(r.deps.Gate, func(req *http.Request) string {
		return chi.URLParam(req, "provider")
	}, middleware.WebhookOptions{MaxBodyBytes: r.cfg.MaxWebhookBytes, Logger: r.deps.Logger})
	r.mux.With(webhookGate).Post("/webhooks/{provider}", r.deps.Webhook.Receive)

	authenticate := middleware.Authenticate(r.deps.Verifier, r.deps.Logger)

	r.mux.Route("/api/v1", func(api chi.Router) {
		// Risk checks for trusted callers
		api.Route("/risk", func(risk chi.Router) {
			risk.Use(authenticate, middleware.RequireRole(auth.RoleService, auth.RoleAdmin))
			risk.Post("/check", r.deps.Risk.Check)
			risk.Get("/users/{id}/velocity", r.deps.Risk.Velocity)
		})

		// Token lifecycle
		api.Route("/auth", func(a chi.Router) {
			a.Use(authenticate)
			a.Post("/logout", r.deps.Auth.Logout)
			a.With(middleware.FraudGate(r.deps.Checker, middleware.LoginEvidence, r.deps.Logger)).
				Post("/refresh", r.deps.Auth.Refresh)
			a.With(middleware.RequireRole(auth.RoleAdmin)).Post("/revoke-all", r.deps.Auth.RevokeAll)
		})
	})
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Handler returns the http.Handler
func (r *Router) Handler() http.Handler {
	return r
}

// cors grants browser access to the listed origins. Requests from other
// origins get no CORS headers and their preflights are refused.
func cors(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	wildcard := allowed["*"]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			origin := req.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, req)
				return
			}
			preflight := req.Method == http.MethodOptions && req.Header.Get("Access-Control-Request-Method") != ""

			if !wildcard && !allowed[origin] {
				if preflight {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, req)
				return
			}

			h := w.Header()
			if wildcard {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Expose-Headers", "Retry-After, X-Risk-Review")

			if preflight {
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Device-Fingerprint")
				h.Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, req.ProtoMajor)
			next.ServeHTTP(ww, req)

			logger.Debug("request",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(req.Context())),
			)
		})
	}
}
