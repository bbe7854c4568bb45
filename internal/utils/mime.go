package utils

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// ExtensionFromMime maps a MIME type to a file extension without the leading
// dot. Returns "" when the type is unknown.
func ExtensionFromMime(mimeType string) string {
	trimmed := strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(trimmed, ";"); idx >= 0 {
		trimmed = strings.TrimSpace(trimmed[:idx])
	}
	switch trimmed {
	case "image/png":
		return "png"
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "text/plain":
		return "txt"
	}
	if exts, err := mime.ExtensionsByType(trimmed); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return ""
}

// DetectImageMime sniffs the MIME type from the payload bytes.
func DetectImageMime(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return http.DetectContentType(data)
}

// ExtensionFromFilename returns the lowercase extension of a filename without
// the leading dot.
func ExtensionFromFilename(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(strings.TrimSpace(name)), "."))
}
