package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"streamify/internal/http/middleware"
	"streamify/internal/media"
)

// StreamGate decides whether a viewer may stream a stored file.
type StreamGate interface {
	StreamAllowed(ctx context.Context, filename, viewerID string) (bool, error)
}

// MediaAccess hides private media from everyone but its uploader.
// A private file is answered exactly like a missing one. Names that fail to
// decode or validate are left for StreamVideo to reject.
func MediaAccess(gate StreamGate, log *slog.Logger) fiber.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(c *fiber.Ctx) error {
		name, err := mediaFilename(c)
		if err != nil {
			return c.Next()
		}
		key, err := media.CleanKey(name)
		if err != nil {
			return c.Next()
		}

		ok, err := gate.StreamAllowed(c.UserContext(), key, middleware.UserID(c))
		if err != nil {
			log.Error("stream_access_check_failed",
				"request_id", requestIDFromCtx(c),
				"filename", key,
				"error_message", err.Error(),
			)
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		if !ok {
			return writeError(c, fiber.StatusNotFound, "NOT_FOUND", fmt.Sprintf("video %q not found", name))
		}
		return c.Next()
	}
}
