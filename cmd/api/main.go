package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"streamify/docs"
	"streamify/internal/config"
	"streamify/internal/database"
	"streamify/internal/database/migration"
	handlers "streamify/internal/http/handler"
	"streamify/internal/http/middleware"
	"streamify/internal/logger"
	"streamify/internal/media"
	"streamify/internal/otel"
	"streamify/internal/repository/postgres"
	"streamify/internal/service"
	"streamify/internal/storage"
)

const shutdownTimeout = 15 * time.Second

// @title Streamify API
// @version 1.0
// @description Range-request media streaming and the video catalog around it.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	log := logger.New(cfg.Log.Level, cfg.Log.Format, cfg.Location())
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server_failed", "error_message", err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.AppConfig, log *slog.Logger) error {
	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Error("tracing_shutdown_failed", "error_message", err.Error())
		}
	}()

	store, err := newStorage(cfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	health := []handlers.HealthDependency{{Name: "storage", Ping: store.Ping}}

	var videos service.VideoService
	if cfg.Database.Enabled() {
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()

		if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}

		var prober media.Prober
		if cfg.Media.Probe {
			prober = media.MP4Prober{}
		}
		videos = service.NewVideoService(store, postgres.NewVideoPostgres(db), prober, log)
		health = append(health, handlers.HealthDependency{Name: "database", Ping: db.PingContext})
	} else {
		log.Warn("catalog_disabled", "reason", "DB_HOST is empty; serving media only")
	}
	if cfg.Auth.JWTSecret == "" {
		log.Warn("jwt_secret_missing", "reason", "every token is rejected; private media stays hidden")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(),
		ReadTimeout:           cfg.HTTP.ReadTimeout(),
		WriteTimeout:          cfg.HTTP.WriteTimeout(),
		IdleTimeout:           cfg.HTTP.IdleTimeout(),
		BodyLimit:             int(cfg.Media.MaxUploadBytes) + 1<<20,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(metrics.Handler())
	app.Use(otelfiber.Middleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.HTTP.AllowedOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Range",
		ExposeHeaders: "Content-Range, Accept-Ranges, Content-Length, X-Request-ID",
	}))

	handlers.RegisterRoutes(app, handlers.Deps{
		Log:               log,
		Auth:              middleware.NewAuth(cfg.Auth.JWTSecret),
		Streams:           service.NewStreamService(store),
		Videos:            videos,
		StreamIdleTimeout: cfg.Media.StreamIdleTimeout(),
		Observer:          metrics,
		MaxUploadBytes:    cfg.Media.MaxUploadBytes,
		Health:            health,
		Gatherer:          reg,
	})

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info("server_started", "addr", addr, "storage_backend", cfg.Media.Backend, "catalog_enabled", videos != nil)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("server_stopping")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(sctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server_stopped")
	return nil
}

func newStorage(cfg *config.AppConfig) (storage.Storage, error) {
	switch cfg.Media.Backend {
	case config.BackendLocal:
		return storage.NewLocal(cfg.Media.Root)
	case config.BackendMinIO:
		// Initialize reusable S3-compatible object storage client
		return storage.NewMinIO(cfg.MinIO)
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.Media.Backend)
	}
}
