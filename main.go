package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"repricelab/api"
	"repricelab/domain"
	"repricelab/i18n"
	"repricelab/notify"
	"repricelab/storage"
	"repricelab/web"
)

func main() {
	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New()
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)

	var rc *redis.Client
	if cfg.RedisConn != "" {
		rc = redis.NewClient(parseRedisOptions(cfg.RedisConn))
	}

	store, err := newBoardStorage(cfg, rc)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	boards := domain.NewBoardService(store)

	var deduper api.Deduper = api.NewMemoryDeduper(cfg.DeduperTTL)
	if rc != nil {
		deduper = api.NewRedisDeduper(rc, cfg.DeduperTTL)
	}

	auth, err := newAuth(cfg, logger)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	sinks := []notify.Sink{notify.LogSink{Logger: logger}}
	if cfg.NotificationsQueue != "" {
		qs, err := notify.NewQueueSink(cfg.StorageConnStr, cfg.NotificationsQueue)
		if err != nil {
			log.Fatalf("notifications queue: %v", err)
		}
		sinks = append(sinks, qs)
	}
	dispatcher := notify.NewDispatcher(cfg.Notify, logger, sinks...)

	messages, err := i18n.Load(cfg.DefaultLocale)
	if err != nil {
		log.Fatalf("locales: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	web.RegisterMetrics(e, nil)

	api.Register(e, api.Options{
		Boards:   boards,
		Auth:     auth,
		Deduper:  deduper,
		Notifier: dispatcher,
		Logger:   logger,
		Health:   healthCheck(rc),
	})
	if err := web.Register(e, web.Options{
		Messages:   messages,
		Auth:       auth,
		Boards:     boards,
		Notifier:   dispatcher,
		BackendURL: cfg.BackendURL,
		Logger:     logger,
	}); err != nil {
		log.Fatalf("web: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.WithFields(log.Fields{
			"addr":    cfg.ListenAddr,
			"storage": cfg.StorageBackend,
			"backend": cfg.BackendURL.String(),
		}).Info("repricelab listening")
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	dispatcher.Close()
	if rc != nil {
		_ = rc.Close()
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("tracer shutdown")
	}
}

func newBoardStorage(cfg config, rc *redis.Client) (domain.BoardStorage, error) {
	var base domain.BoardStorage
	switch cfg.StorageBackend {
	case storageRedis:
		return storage.NewRedisStore(rc), nil
	case storageTable:
		ts, err := storage.NewTableStore(cfg.StorageConnStr, cfg.BoardsTable)
		if err != nil {
			return nil, err
		}
		base = ts
	default:
		base = storage.NewMemoryStore()
	}
	if rc != nil && cfg.CacheTTL > 0 {
		return storage.NewCache(base, rc, cfg.CacheTTL), nil
	}
	return base, nil
}

func newAuth(cfg config, logger *log.Logger) (*api.Auth, error) {
	if cfg.TestMode {
		logger.Warn("auth test mode: accepting HS256 tokens signed with TEST_JWT_SECRET")
		return api.NewAuth(api.AuthConfig{TestSecret: []byte(cfg.TestSecret), KeyCacheTTL: cfg.JWKSCacheTTL})
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.WithError(err).Warn("jwks refresh")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(api.AuthConfig{
		JWKS:        jwks,
		Audience:    cfg.Auth0Audience,
		Issuer:      "https://" + cfg.Auth0Domain + "/",
		KeyCacheTTL: cfg.JWKSCacheTTL,
	})
}

func healthCheck(rc *redis.Client) func(context.Context) error {
	if rc == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return rc.Ping(ctx).Err()
	}
}

func requestLogger(logger *log.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/healthz" || c.Path() == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			entry := logger.WithFields(log.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": float64(v.Latency) / float64(time.Millisecond),
				"remote_ip":  v.RemoteIP,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request")
				return nil
			}
			entry.Debug("request")
			return nil
		},
	})
}
