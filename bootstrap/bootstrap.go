// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"

	"github.com/artpar/billgate/adapters/clock"
	"github.com/artpar/billgate/adapters/idgen"
	"github.com/artpar/billgate/adapters/memory"
	"github.com/artpar/billgate/adapters/metrics"
	"github.com/artpar/billgate/adapters/payment"
	"github.com/artpar/billgate/adapters/redis"
	"github.com/artpar/billgate/adapters/remote"
	"github.com/artpar/billgate/adapters/sqlite"
	"github.com/artpar/billgate/app"
	"github.com/artpar/billgate/config"
	"github.com/artpar/billgate/domain/billing"
	"github.com/artpar/billgate/ports"
	"github.com/artpar/billgate/web"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	DB         *sqlite.DB
	HTTPServer *http.Server
	Metrics    *metrics.Collector
	Processor  *app.Processor

	// Resolvers for embedding billgate in a host application.
	ResolveSubscription app.SubscriptionResolver
	ResolveFeatures     app.FeaturesResolver

	holder     *config.Holder
	cfg        *config.Config
	provider   *providerHolder
	redisCache *redis.Cache
	registry   *remote.Registry
}

// New creates and initializes the application from a static config.
func New(cfg *config.Config) (*App, error) {
	return build(cfg, nil)
}

// NewWithHotReload creates the application with config file watching.
// Provider secrets and log level apply on reload; server, database and
// cache settings require a restart.
func NewWithHotReload(path string) (*App, error) {
	logger := zerolog.Nop()
	holder, err := config.NewHolder(path, logger)
	if err != nil {
		return nil, err
	}

	a, err := build(holder.Get(), holder)
	if err != nil {
		holder.Stop()
		return nil, err
	}

	if err := holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watching unavailable")
	}
	holder.WatchSignals()

	return a, nil
}

func build(cfg *config.Config, holder *config.Holder) (*App, error) {
	logger := setupLogger(cfg.Logging)
	logger.Info().Msg("initializing billgate")

	a := &App{
		Logger: logger,
		cfg:    cfg,
		holder: holder,
	}

	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	a.DB = db
	logger.Info().Str("dsn", cfg.Database.DSN).Msg("database ready")

	cache, err := a.initCache(cfg.Cache)
	if err != nil {
		db.Close()
		return nil, err
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New()
		logger.Info().Msg("prometheus metrics enabled")
	}

	a.provider = &providerHolder{provider: payment.NewStripeProvider(payment.StripeConfig{
		SecretKey:     cfg.Provider.SecretKey,
		WebhookSecret: cfg.Provider.WebhookSecret,
	})}

	if holder != nil {
		holder.OnChange(func(next *config.Config) {
			a.provider.swap(payment.NewStripeProvider(payment.StripeConfig{
				SecretKey:     next.Provider.SecretKey,
				WebhookSecret: next.Provider.WebhookSecret,
			}))
			setupLogLevel(next.Logging.Level)
		})
	}

	plans := sqlite.NewPlanStore(db)
	subs := sqlite.NewSubscriptionStore(db)

	a.Processor = app.NewProcessor(
		plans,
		subs,
		sqlite.NewCheckoutSessionStore(db),
		sqlite.NewPaymentLinkStore(db),
		sqlite.NewPortalSessionStore(db),
		sqlite.NewWebhookEventStore(db),
		a.provider,
		idgen.UUID{},
		clock.Real{},
		logger.With().Str("component", "processor").Logger(),
		a.Metrics,
	)

	entitlements := app.NewEntitlementService(subs, plans,
		logger.With().Str("component", "entitlements").Logger())
	billingCache := app.NewBillingCache(cache,
		logger.With().Str("component", "cache").Logger(), a.Metrics)
	surfacer := app.NewSurfacer(billingCache,
		logger.With().Str("component", "surfacer").Logger(), a.Metrics)

	switch cfg.Surfacing.Mode {
	case "remote":
		a.registry = remote.NewRegistry(cfg.Surfacing.Timeout)
		a.ResolveSubscription = surfacer.SubscriptionRemotely(a.registry, cfg.Surfacing.URL, cfg.Surfacing.Secret)
		a.ResolveFeatures = surfacer.FeaturesRemotely(a.registry, cfg.Surfacing.URL, cfg.Surfacing.Secret)
		logger.Info().Str("url", cfg.Surfacing.URL).Msg("surfacing entitlements from sibling service")
	default:
		a.ResolveSubscription = surfacer.SubscriptionLocally(entitlements)
		a.ResolveFeatures = surfacer.FeaturesLocally(entitlements)
		logger.Info().Msg("surfacing entitlements from local store")
	}

	a.initHTTPServer(entitlements)

	return a, nil
}

func (a *App) initCache(cfg config.CacheConfig) (ports.Cache, error) {
	if cfg.Mode == "redis" {
		rc := redis.NewCache(redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rc.Ping(ctx); err != nil {
			rc.Close()
			return nil, fmt.Errorf("redis unreachable: %w", err)
		}
		a.redisCache = rc
		a.Logger.Info().Str("addr", cfg.Redis.Addr).Msg("using redis billing cache")
		return rc, nil
	}

	a.Logger.Info().Msg("using in-memory billing cache")
	return memory.NewCache(clock.Real{}), nil
}

func (a *App) initHTTPServer(entitlements *app.EntitlementService) {
	webhooks := web.NewWebhookHandler(a.provider, a.Processor,
		a.Logger.With().Str("component", "webhooks").Logger())

	var internal *web.InternalHandler
	if a.cfg.Internal.Enabled {
		internal = web.NewInternalHandler(entitlements, entitlements,
			a.cfg.Internal.Secret, clock.Real{},
			a.Logger.With().Str("component", "internal").Logger())
	}

	var metricsHandler http.Handler
	if a.Metrics != nil {
		metricsHandler = web.MetricsHandler()
	}

	router := web.NewRouter(web.RouterConfig{
		Webhooks: webhooks,
		Internal: internal,
		Metrics:  metricsHandler,
		Logger:   a.Logger,
	})

	a.HTTPServer = &http.Server{
		Addr:         a.cfg.Server.Host + ":" + strconv.Itoa(a.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if a.holder != nil {
		a.holder.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.redisCache != nil {
		if err := a.redisCache.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("redis close error")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// providerHolder lets config reloads rotate provider secrets without
// tearing down handlers that hold a reference.
type providerHolder struct {
	mu       sync.RWMutex
	provider *payment.StripeProvider
}

func (h *providerHolder) get() *payment.StripeProvider {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.provider
}

func (h *providerHolder) swap(p *payment.StripeProvider) {
	h.mu.Lock()
	h.provider = p
	h.mu.Unlock()
}

// ParseWebhook verifies a webhook against the current secret.
func (h *providerHolder) ParseWebhook(payload []byte, signature string) (stripe.Event, error) {
	return h.get().ParseWebhook(payload, signature)
}

// Resolve fetches a product through the current provider.
func (h *providerHolder) Resolve(ctx context.Context, productID string) (billing.Product, error) {
	return h.get().Resolve(ctx, productID)
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	setupLogLevel(cfg.Level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func setupLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
