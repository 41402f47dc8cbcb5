package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"streamify/internal/http/middleware"
	"streamify/internal/media"
	"streamify/internal/service"
)

// UploadVideo handles multipart uploads (field name: file).
//
// @Summary      Upload a video
// @Tags         videos
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file         formData  file    true   "Media file"
// @Param        title        formData  string  false  "Title, defaults to the file name"
// @Param        description  formData  string  false  "Description"
// @Param        isPrivate    formData  bool    false  "Hide the video from other users"
// @Success      201  {object}  model.Video
// @Failure      400  {object}  errorPayload
// @Failure      401  {object}  errorPayload
// @Failure      413  {object}  errorPayload
// @Failure      415  {object}  errorPayload
// @Failure      500  {object}  errorPayload
// @Router       /api/videos [post]
func UploadVideo(svc service.VideoService, maxBytes int64) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}
		if maxBytes > 0 && fh.Size > maxBytes {
			return writeError(c, fiber.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file is too large")
		}

		private := false
		if v := strings.TrimSpace(c.FormValue("isPrivate")); v != "" {
			if private, err = strconv.ParseBool(v); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_FIELD", "isPrivate must be a boolean")
			}
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		// Browsers often send octet-stream for video files; trust the extension then.
		ct := fh.Header.Get(fiber.HeaderContentType)
		if ct == "" || media.NormalizeContentType(ct) == fiber.MIMEOctetStream {
			ct = media.ContentTypeFor(fh.Filename)
		}

		v, err := svc.Upload(c.UserContext(), service.UploadInput{
			Reader:       f,
			OriginalName: fh.Filename,
			ContentType:  ct,
			Size:         fh.Size,
			Title:        c.FormValue("title"),
			Description:  c.FormValue("description"),
			IsPublic:     !private,
			UploaderID:   middleware.UserID(c),
		})
		if err != nil {
			return videoError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(v)
	}
}

// ListVideos returns the feed visible to the caller.
//
// @Summary      List videos
// @Tags         videos
// @Produce      json
// @Param        limit   query  int  false  "Page size (max 50)"  default(10)
// @Param        offset  query  int  false  "Offset"              default(0)
// @Success      200  {object}  service.VideoListResult
// @Failure      400  {object}  errorPayload
// @Failure      500  {object}  errorPayload
// @Router       /api/videos [get]
func ListVideos(svc service.VideoService) fiber.Handler {
	return listVideos(svc, func(*fiber.Ctx) string { return "" })
}

// ListUserVideos returns one uploader's videos visible to the caller.
//
// @Summary      List a user's videos
// @Tags         videos
// @Produce      json
// @Param        id      path   string  true   "Uploader ID"
// @Param        limit   query  int     false  "Page size (max 50)"  default(10)
// @Param        offset  query  int     false  "Offset"              default(0)
// @Success      200  {object}  service.VideoListResult
// @Failure      400  {object}  errorPayload
// @Failure      500  {object}  errorPayload
// @Router       /api/users/{id}/videos [get]
func ListUserVideos(svc service.VideoService) fiber.Handler {
	return listVideos(svc, func(c *fiber.Ctx) string { return c.Params("id") })
}

func listVideos(svc service.VideoService, uploader func(*fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), service.ListQuery{
			Limit:      limit,
			Offset:     offset,
			ViewerID:   middleware.UserID(c),
			UploaderID: uploader(c),
		})
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(res)
	}
}

// GetVideo returns a single video by ID.
//
// @Summary      Get a video
// @Tags         videos
// @Produce      json
// @Param        id  path  string  true  "Video ID"
// @Success      200  {object}  model.Video
// @Failure      400  {object}  errorPayload
// @Failure      404  {object}  errorPayload
// @Failure      500  {object}  errorPayload
// @Router       /api/videos/{id} [get]
func GetVideo(svc service.VideoService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := videoID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		v, err := svc.Get(c.UserContext(), id, middleware.UserID(c))
		if err != nil {
			return videoError(c, err)
		}
		return c.JSON(v)
	}
}

// DeleteVideo removes a video and its stored file. Only the uploader may do this.
//
// @Summary      Delete a video
// @Tags         videos
// @Security     BearerAuth
// @Param        id  path  string  true  "Video ID"
// @Success      204
// @Failure      400  {object}  errorPayload
// @Failure      403  {object}  errorPayload
// @Failure      404  {object}  errorPayload
// @Failure      500  {object}  errorPayload
// @Router       /api/videos/{id} [delete]
func DeleteVideo(svc service.VideoService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := videoID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), id, middleware.UserID(c)); err != nil {
			return videoError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// RecordView counts one view. Streaming never counts views by itself.
//
// @Summary      Record a view
// @Tags         videos
// @Param        id  path  string  true  "Video ID"
// @Success      204
// @Failure      400  {object}  errorPayload
// @Failure      404  {object}  errorPayload
// @Failure      500  {object}  errorPayload
// @Router       /api/videos/{id}/views [post]
func RecordView(svc service.VideoService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := videoID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.RecordView(c.UserContext(), id, middleware.UserID(c)); err != nil {
			return videoError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ToggleLike likes the video, or removes the caller's like if present.
//
// @Summary      Toggle like
// @Tags         videos
// @Produce      json
// @Security     BearerAuth
// @Param        id  path  string  true  "Video ID"
// @Success      200  {object}  model.LikeResult
// @Failure      400  {object}  errorPayload
// @Failure      404  {object}  errorPayload
// @Failure      500  {object}  errorPayload
// @Router       /api/videos/{id}/like [post]
func ToggleLike(svc service.VideoService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := videoID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		res, err := svc.ToggleLike(c.UserContext(), id, middleware.UserID(c))
		if err != nil {
			return videoError(c, err)
		}
		return c.JSON(res)
	}
}

func videoID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

func videoError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "video not found")
	case errors.Is(err, service.ErrForbidden):
		return writeError(c, fiber.StatusForbidden, "FORBIDDEN", "only the uploader may do this")
	case errors.Is(err, service.ErrUserRequired):
		return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "authentication token required")
	case errors.Is(err, service.ErrUnsupportedMedia):
		return writeError(c, fiber.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE", "unsupported media type")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
