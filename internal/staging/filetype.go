package staging

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// fileCategories groups extensions by the kind of content they carry.
var fileCategories = map[string][]string{
	"image":    {"jpg", "jpeg", "png", "webp", "gif", "bmp", "svg", "tiff"},
	"video":    {"mp4", "mov", "avi", "mkv", "flv", "wmv", "webm"},
	"audio":    {"mp3", "wav", "aac", "ogg", "m4a", "flac"},
	"document": {"doc", "docx", "xls", "xlsx", "ppt", "pptx", "txt", "pdf", "odt"},
	"archive":  {"zip", "rar", "7z", "tar", "gz", "bz2"},
}

// categoryOrder fixes lookup order; pdf and txt also count as documents.
var categoryOrder = []string{"image", "video", "audio", "document", "archive"}

// extension returns the lower-case extension of name without the dot.
func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// Category returns the content category of name based on its extension, or
// "unknown".
func Category(name string) string {
	ext := extension(name)
	for _, category := range categoryOrder {
		for _, candidate := range fileCategories[category] {
			if candidate == ext {
				return category
			}
		}
	}
	return "unknown"
}

// DetectMimeType guesses a MIME type from the content, falling back to the
// extension. Clients do not always send one.
func DetectMimeType(name string, data []byte) string {
	if len(data) > 0 {
		if detected := mimetype.Detect(data); detected != nil && !detected.Is("application/octet-stream") {
			return stripParams(detected.String())
		}
	}
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		return stripParams(byExt)
	}
	return "application/octet-stream"
}

// IsImage reports whether mimeType denotes image content.
func IsImage(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

func stripParams(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		return strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}
