package storage

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// DefaultCompressWidth is used when neither the options nor the provider
// configuration name a width.
const DefaultCompressWidth = 300

// formatsByMime maps image MIME types imaging can re-encode.
var formatsByMime = map[string]imaging.Format{
	"image/jpeg": imaging.JPEG,
	"image/jpg":  imaging.JPEG,
	"image/png":  imaging.PNG,
	"image/gif":  imaging.GIF,
	"image/bmp":  imaging.BMP,
	"image/tiff": imaging.TIFF,
}

// canCompress reports whether mimeType is an image format that can be
// decoded and re-encoded.
func canCompress(mimeType string) bool {
	_, ok := formatsByMime[mimeType]
	return ok
}

// compressImage resizes data to width pixels wide, keeping the aspect ratio,
// and re-encodes it in its source format.
func compressImage(data []byte, mimeType string, width int) ([]byte, error) {
	format, ok := formatsByMime[mimeType]
	if !ok {
		return nil, fmt.Errorf("unsupported image type %q", mimeType)
	}
	if width <= 0 {
		width = DefaultCompressWidth
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	dst := imaging.Resize(src, width, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, format, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}
