package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/payform-api/internal/config"
	"github.com/noah-isme/payform-api/internal/forms"
	"github.com/noah-isme/payform-api/internal/hooks"
	"github.com/noah-isme/payform-api/internal/nonce"
	"github.com/noah-isme/payform-api/internal/obs"
	"github.com/noah-isme/payform-api/internal/processor"
	"github.com/noah-isme/payform-api/internal/ratelimit"
	"github.com/noah-isme/payform-api/internal/resilience"
	"github.com/noah-isme/payform-api/internal/tasks"
)

// Dependencies enumerates the services the HTTP router is built from.
type Dependencies struct {
	Config    *config.Config
	Logger    zerolog.Logger
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Forms     forms.Resolver
	Processor processor.Processor
	Nonces    *nonce.Issuer
	Limiter   ratelimit.Allower
	// Tasks is nil when background tasks are disabled.
	Tasks tasks.Enqueuer
	// TaskObserver hands intent attempts to Tasks off the request path.
	TaskObserver *hooks.TaskObserver
	HTTPMetrics  *obs.HTTPMetrics

	closers []func() error
}

// Close releases connections in reverse order of creation.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// Build connects every backing service described by cfg.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	d := &Dependencies{Config: cfg, Logger: logger}

	rdb, err := NewRedis(ctx, cfg.RedisURL, cfg.MetricsEnabled, logger)
	if err != nil {
		return nil, err
	}
	d.Redis = rdb
	d.closers = append(d.closers, rdb.Close)

	if cfg.DatabaseURL != "" {
		pool, err := NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		d.DB = pool
		d.closers = append(d.closers, func() error { pool.Close(); return nil })
	}

	if d.Forms, err = NewFormResolver(cfg, d.DB, rdb, logger); err != nil {
		_ = d.Close()
		return nil, err
	}
	if d.Processor, err = NewProcessor(cfg, logger); err != nil {
		_ = d.Close()
		return nil, err
	}
	if d.Nonces, err = nonce.NewIssuer(cfg.NonceSecret, nonce.WithTTL(cfg.NonceFormTTL, cfg.NonceCustomerTTL)); err != nil {
		_ = d.Close()
		return nil, err
	}
	if d.Limiter, err = NewLimiter(cfg, rdb); err != nil {
		_ = d.Close()
		return nil, err
	}
	if cfg.TasksEnabled {
		opt, err := RedisConnOpt(cfg.RedisURL)
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		client := asynq.NewClient(opt)
		d.Tasks = client
		d.closers = append(d.closers, client.Close)
		d.TaskObserver = hooks.NewTaskObserver(hooks.TaskObserverConfig{
			Client: client,
			Logger: obs.Component(logger, "tasks"),
		})
		// closers run in reverse, so the backlog drains before the client closes
		d.closers = append(d.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return d.TaskObserver.Close(ctx)
		})
	}
	if cfg.MetricsEnabled {
		d.HTTPMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), nil)
	}
	return d, nil
}

// NewRedis connects to Redis with tracing and optional metrics instrumentation.
func NewRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisConnOpt translates a redis:// URL for the task queue.
func RedisConnOpt(url string) (asynq.RedisConnOpt, error) {
	opt, err := asynq.ParseRedisURI(url)
	if err != nil {
		return nil, fmt.Errorf("parse task queue redis url: %w", err)
	}
	return opt, nil
}

// NewPool opens the form database pool.
func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "payform-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// NewFormResolver prefers the database and falls back to the static forms
// file. Either source is cached in Redis when a TTL is configured.
func NewFormResolver(cfg *config.Config, db *pgxpool.Pool, rdb *redis.Client, logger zerolog.Logger) (forms.Resolver, error) {
	var source forms.Resolver
	switch {
	case db != nil:
		source = forms.NewPGStore(db)
	case cfg.FormsFile != "":
		static, err := forms.LoadStaticFile(cfg.FormsFile)
		if err != nil {
			return nil, err
		}
		source = static
	default:
		return nil, errors.New("no form source configured")
	}
	if rdb == nil || cfg.FormCacheTTL <= 0 {
		return source, nil
	}
	return forms.NewCachedResolver(source, rdb, cfg.FormCacheTTL, logger), nil
}

// NewProcessor builds the Stripe processor behind a circuit breaker.
func NewProcessor(cfg *config.Config, logger zerolog.Logger) (*processor.Stripe, error) {
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Target:       "stripe",
		MinRequests:  cfg.CircuitMinRequests,
		FailureRatio: cfg.CircuitFailureRatio,
		OpenFor:      cfg.CircuitOpenFor,
		Logger:       logger,
	})
	return processor.NewStripe(processor.StripeConfig{
		TestSecretKey:     cfg.StripeTestSecretKey,
		LiveSecretKey:     cfg.StripeLiveSecretKey,
		HTTPClient:        resilience.NewHTTPClient(breaker, cfg.ProcessorTimeout),
		MaxNetworkRetries: cfg.StripeMaxNetworkRetries,
		APIURL:            cfg.StripeAPIURL,
		Logger:            logger,
	})
}

// NewLimiter picks the rate limit backend.
func NewLimiter(cfg *config.Config, rdb *redis.Client) (ratelimit.Allower, error) {
	switch cfg.RateLimitBackend {
	case config.RateLimitFixed:
		if rdb == nil {
			return ratelimit.NewUluleMemory("payform:rl"), nil
		}
		return ratelimit.NewUluleRedis(rdb, "payform:rl")
	default:
		return ratelimit.Limiter{Client: rdb, Prefix: "payform:rl:"}, nil
	}
}
