package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/payform-api/internal/common"
	"github.com/noah-isme/payform-api/internal/confirm"
	"github.com/noah-isme/payform-api/internal/customer"
	"github.com/noah-isme/payform-api/internal/health"
	"github.com/noah-isme/payform-api/internal/hooks"
	"github.com/noah-isme/payform-api/internal/obs"
	"github.com/noah-isme/payform-api/internal/payment"
	"github.com/noah-isme/payform-api/internal/ratelimit"
	"github.com/noah-isme/payform-api/internal/security"
	"github.com/noah-isme/payform-api/internal/webhook"
)

// WebhookPath receives processor events.
const WebhookPath = "/webhooks/stripe"

// Observers builds the observer chain every orchestrator call reports to.
func Observers(d *Dependencies) *hooks.Observers {
	list := []hooks.Observer{
		hooks.LogObserver{Logger: obs.Component(d.Logger, "hooks")},
		hooks.MetricsObserver{},
	}
	if d.TaskObserver != nil {
		list = append(list, d.TaskObserver)
	}
	return &hooks.Observers{List: list, Logger: d.Logger}
}

// NewRouter assembles the HTTP surface.
func NewRouter(d *Dependencies) http.Handler {
	cfg := d.Config
	observers := Observers(d)

	paymentSvc := &payment.Service{
		Processor:            d.Processor,
		Forms:                d.Forms,
		Nonces:               d.Nonces,
		Observers:            observers,
		Logger:               obs.Component(d.Logger, "payment"),
		RequireCustomerNonce: cfg.RequireCustomerNonce,
	}
	paymentHandler := &payment.Handler{Svc: paymentSvc, Issuer: d.Nonces}
	customerHandler := &customer.Handler{Resolver: &customer.Service{
		Processor: d.Processor,
		Forms:     d.Forms,
		Nonces:    d.Nonces,
		Observers: observers,
		Logger:    obs.Component(d.Logger, "customer"),
	}}
	webhookHandler := &webhook.Handler{
		Secret:       cfg.StripeWebhookSecret,
		Replay:       d.Redis,
		ReplayTTL:    cfg.WebhookReplayTTL,
		Observers:    observers,
		Tasks:        d.Tasks,
		Logger:       obs.Component(d.Logger, "webhook"),
		MaxBodyBytes: cfg.BodyLimitBytes,
	}

	probes := []health.Probe{health.RedisProbe(d.Redis, 300*time.Millisecond)}
	if d.DB != nil {
		probes = append(probes, health.DBProbe(d.DB, 500*time.Millisecond))
	}
	healthHandler := health.Handler{Probes: probes}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if cfg.TracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if d.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.HSTS, NoStore: true}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		MaxAge:         300,
	}))

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Post(WebhookPath, webhookHandler.Handle)

	limit := ratelimit.Handler{
		Limiter: d.Limiter,
		Config:  ratelimit.Config{Route: "wpsp", Window: cfg.RateLimitWindow, Max: cfg.RateLimitMax},
		OnError: func(err error) { d.Logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}
	r.Route(confirm.Namespace, func(v chi.Router) {
		v.Use(limit.Middleware)
		v.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
		v.Use(common.Idem{R: d.Redis, TTL: cfg.IdempotencyTTL}.Middleware)
		customerHandler.Routes(v)
		paymentHandler.Routes(v)
	})
	return r
}
