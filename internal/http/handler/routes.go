package handler

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"streamify/internal/http/middleware"
	"streamify/internal/service"
)

// Deps are the services RegisterRoutes wires into the app.
// Videos is nil when no database is configured; only streaming is served then.
type Deps struct {
	Log               *slog.Logger
	Auth              *middleware.Auth
	Streams           service.StreamService
	Videos            service.VideoService
	StreamIdleTimeout time.Duration
	Observer          StreamObserver
	MaxUploadBytes    int64
	Health            []HealthDependency
	Gatherer          prometheus.Gatherer
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/health", HealthCheck(d.Health...))
	app.Get("/healthz", LivenessProbe())
	if d.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// GET also answers HEAD.
	stream := []fiber.Handler{d.Auth.OptionalAuth()}
	if d.Videos != nil {
		stream = append(stream, MediaAccess(d.Videos, d.Log))
	}
	stream = append(stream, StreamVideo(d.Streams, StreamOptions{
		Log:         d.Log,
		IdleTimeout: d.StreamIdleTimeout,
		Observer:    d.Observer,
	}))
	app.Get("/videos/*", stream...)

	if d.Videos == nil {
		return
	}

	optional := d.Auth.OptionalAuth()
	required := d.Auth.RequireAuth()

	api := app.Group("/api")
	api.Get("/videos", optional, ListVideos(d.Videos))
	api.Post("/videos", required, UploadVideo(d.Videos, d.MaxUploadBytes))
	api.Get("/videos/:id", optional, GetVideo(d.Videos))
	api.Delete("/videos/:id", required, DeleteVideo(d.Videos))
	api.Post("/videos/:id/views", optional, RecordView(d.Videos))
	api.Post("/videos/:id/like", required, ToggleLike(d.Videos))
	api.Get("/users/:id/videos", optional, ListUserVideos(d.Videos))
}
