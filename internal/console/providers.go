// Package console assembles the product console service.
package console

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/tair/product-console/internal/catalog/client"
	"github.com/tair/product-console/internal/catalog/controller"
	"github.com/tair/product-console/internal/catalog/notify"
	"github.com/tair/product-console/internal/catalog/view"
	"github.com/tair/product-console/internal/console/config"
	"github.com/tair/product-console/internal/console/health"
	"github.com/tair/product-console/internal/console/routes"
	"github.com/tair/product-console/internal/console/session"
	"github.com/tair/product-console/pkg/logger"
)

// Console is the assembled service
type Console struct {
	Config   *config.ConsoleConfig
	App      *fiber.App
	Hub      *view.Hub
	Sessions *session.Registry
	// Listener is nil when the push transport is "none"
	Listener notify.Listener
	// Redis is nil when no redis is configured or reachable
	Redis *redis.Client
}

// NewConsole bundles the assembled parts
func NewConsole(cfg *config.ConsoleConfig, app *fiber.App, hub *view.Hub, sessions *session.Registry, listener notify.Listener, rdb *redis.Client) *Console {
	return &Console{
		Config:   cfg,
		App:      app,
		Hub:      hub,
		Sessions: sessions,
		Listener: listener,
		Redis:    rdb,
	}
}

// Close releases the listener and the redis connection
func (c *Console) Close() error {
	var errs []error
	if c.Listener != nil {
		errs = append(errs, c.Listener.Close())
	}
	if c.Redis != nil {
		errs = append(errs, c.Redis.Close())
	}
	return errors.Join(errs...)
}

// ProvideBackendClient provides the catalog backend client
func ProvideBackendClient(cfg *config.ConsoleConfig) *client.BackendClient {
	return client.New(cfg.ClientConfig())
}

// ProvideMetricsRegistry provides the registry served on /metrics
func ProvideMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics provides the controller metrics
func ProvideMetrics(reg *prometheus.Registry) (*controller.Metrics, error) {
	return controller.NewMetrics(reg)
}

// ProvideHub provides the websocket hub
func ProvideHub() *view.Hub {
	return view.NewHub()
}

// ProvideRedis connects to redis when an address is configured. An
// unreachable redis disables caching and rate limiting, unless it also
// carries the push channel.
func ProvideRedis(cfg *config.ConsoleConfig) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		if cfg.Push.Transport == config.TransportRedis {
			logger.Logger.Warn().
				Err(err).
				Str("redis_addr", cfg.Redis.Addr).
				Msg("Redis not reachable yet, push subscription will retry")
			return rdb
		}
		logger.Logger.Warn().
			Err(err).
			Str("redis_addr", cfg.Redis.Addr).
			Msg("Failed to connect to Redis - caching and rate limiting disabled")
		_ = rdb.Close()
		return nil
	}

	logger.Logger.Info().
		Str("redis_addr", cfg.Redis.Addr).
		Msg("Connected to Redis")
	return rdb
}

// ProvideSessions provides the session registry; each session gets its own
// controller rendering into the hub
func ProvideSessions(cfg *config.ConsoleConfig, backend *client.BackendClient, hub *view.Hub, metrics *controller.Metrics) *session.Registry {
	ctrlCfg := controller.Config{MaxImageBytes: cfg.MaxImageBytes}
	return session.NewRegistry(func(sessionID string) *controller.Controller {
		return controller.New(sessionID, backend, hub.Session(sessionID), metrics, ctrlCfg)
	}, cfg.SessionTTL)
}

// ProvideListener provides the push listener selected by PUSH_TRANSPORT
func ProvideListener(cfg *config.ConsoleConfig, sessions *session.Registry, rdb *redis.Client) (notify.Listener, error) {
	switch cfg.Push.Transport {
	case config.TransportKafka:
		listener, err := notify.NewKafkaListener(cfg.KafkaConfig(), sessions)
		if err != nil {
			return nil, err
		}
		return listener, nil
	case config.TransportRedis:
		if rdb == nil {
			return nil, errors.New("redis push transport needs a redis connection")
		}
		return notify.NewRedisListener(rdb, cfg.Push.Channel, sessions), nil
	default:
		logger.Logger.Info().Msg("Push transport disabled")
		return nil, nil
	}
}

// ProvideHealth provides the readiness checker
func ProvideHealth(cfg *config.ConsoleConfig, backend *client.BackendClient, rdb *redis.Client, sessions *session.Registry, hub *view.Hub, listener notify.Listener) *health.Checker {
	checker := health.NewChecker(cfg.ServiceName, 5*time.Second)
	checker.Register("backend", backend.Ping)
	if rdb != nil {
		checker.Register("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}

	checker.Detail("circuit_breaker", func() interface{} { return backend.Breaker().Stats() })
	checker.Detail("sessions", func() interface{} { return sessions.Len() })
	checker.Detail("view_clients", func() interface{} { return hub.Clients() })
	transport := config.TransportNone
	if listener != nil {
		transport = listener.Name()
	}
	checker.Detail("push_transport", func() interface{} { return transport })
	if rl, ok := listener.(*notify.RedisListener); ok {
		checker.Detail("push_subscribed", func() interface{} { return rl.Subscribed() })
	}
	return checker
}

// ProvideApp provides the fiber app with all console routes
func ProvideApp(cfg *config.ConsoleConfig, sessions *session.Registry, hub *view.Hub, checker *health.Checker, reg *prometheus.Registry, rdb *redis.Client) *fiber.App {
	return routes.NewApp(routes.AppConfig{
		ServiceName:  cfg.ServiceName,
		AllowOrigins: cfg.CORSAllowedOrigins,
		BodyLimit:    int(cfg.MaxImageBytes) + 1<<20,
		SessionTTL:   cfg.SessionTTL,
		FarmCacheTTL: cfg.FarmCacheTTL,
		RateRequests: cfg.RateLimit.Requests,
		RateWindow:   cfg.RateLimit.Window,
	}, routes.Deps{
		Sessions: sessions,
		Hub:      hub,
		Health:   checker,
		Gatherer: reg,
		Redis:    rdb,
	})
}
