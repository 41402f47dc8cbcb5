package media

import (
	"path"
	"strings"
)

// DefaultContentType is served for extensions missing from the table.
const DefaultContentType = "application/octet-stream"

// Kind classifies an uploaded file.
type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
)

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".m4v":  "video/x-m4v",
	".avi":  "video/x-msvideo",
	".ogv":  "video/ogg",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// canonical extension per content type, used to name uploads
var extensions = map[string]string{
	"video/mp4":        ".mp4",
	"video/webm":       ".webm",
	"video/quicktime":  ".mov",
	"video/x-matroska": ".mkv",
	"video/x-m4v":      ".m4v",
	"video/x-msvideo":  ".avi",
	"video/ogg":        ".ogv",
	"video/mpeg":       ".mpeg",
	"video/3gpp":       ".3gp",
	"image/jpeg":       ".jpg",
	"image/png":        ".png",
	"image/gif":        ".gif",
	"image/webp":       ".webp",
}

// Accepted upload types. Aliases browsers commonly send are normalized by
// NormalizeContentType before lookup.
var uploadKinds = map[string]Kind{
	"video/mp4":        KindVideo,
	"video/webm":       KindVideo,
	"video/ogg":        KindVideo,
	"video/quicktime":  KindVideo,
	"video/x-matroska": KindVideo,
	"video/x-msvideo":  KindVideo,
	"video/x-m4v":      KindVideo,
	"video/mpeg":       KindVideo,
	"video/3gpp":       KindVideo,
	"image/jpeg":       KindImage,
	"image/png":        KindImage,
	"image/gif":        KindImage,
	"image/webp":       KindImage,
}

var contentTypeAliases = map[string]string{
	"video/mov":    "video/quicktime",
	"video/mkv":    "video/x-matroska",
	"video/avi":    "video/x-msvideo",
	"video/x-mpeg": "video/mpeg",
	"image/jpg":    "image/jpeg",
}

// ContentTypeFor derives the response content type from name's extension.
func ContentTypeFor(name string) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return DefaultContentType
}

// ExtensionFor returns the canonical extension for a content type, or "".
func ExtensionFor(contentType string) string {
	return extensions[NormalizeContentType(contentType)]
}

// NormalizeContentType strips parameters, lower-cases and resolves aliases.
func NormalizeContentType(contentType string) string {
	ct, _, _ := strings.Cut(contentType, ";")
	ct = strings.ToLower(strings.TrimSpace(ct))
	if alias, ok := contentTypeAliases[ct]; ok {
		return alias
	}
	return ct
}

// KindOf reports whether contentType is an accepted video or image type.
// It returns "" for anything else.
func KindOf(contentType string) Kind {
	return uploadKinds[NormalizeContentType(contentType)]
}

// AllowedUpload reports whether contentType may be uploaded.
func AllowedUpload(contentType string) bool {
	return KindOf(contentType) != ""
}
