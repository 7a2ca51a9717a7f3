package resource

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"path"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
)

const (
	defaultMaxImageWidth = 1200
	defaultMaxPixels     = 100 * 1000 * 1000
	jpegQuality          = 85

	placeholderWidth  = 64
	placeholderHeight = 64
)

// fitImage downscales raster images wider than maxWidth. Images that cannot
// be decoded, animated GIFs and SVG are returned unchanged. The returned
// media type describes the returned bytes.
func fitImage(p, mediaType string, data []byte, maxWidth int) ([]byte, string, error) {
	if maxWidth <= 0 || !isRaster(mediaType) {
		return data, mediaType, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// Not decodable by the registered codecs; the host may still render it.
		return data, mediaType, nil
	}
	if cfg.Width <= maxWidth {
		return data, mediaType, nil
	}
	if uint64(cfg.Width)*uint64(cfg.Height) > defaultMaxPixels {
		return data, mediaType, fmt.Errorf("image too large to decode: %dx%d", cfg.Width, cfg.Height)
	}
	if mediaType == "image/gif" {
		return data, mediaType, nil
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return data, mediaType, fmt.Errorf("image decode failed: %w", err)
	}
	resized := imaging.Resize(src, maxWidth, 0, imaging.Lanczos)

	format, err := imaging.FormatFromFilename(p)
	if err != nil || (format != imaging.JPEG && format != imaging.PNG) {
		format = imaging.PNG
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(jpegQuality)); err != nil {
		return data, mediaType, fmt.Errorf("image encode failed: %w", err)
	}
	if format == imaging.JPEG {
		return buf.Bytes(), "image/jpeg", nil
	}
	return buf.Bytes(), "image/png", nil
}

func isRaster(mediaType string) bool {
	return strings.HasPrefix(mediaType, "image/") && mediaType != "image/svg+xml"
}

var (
	placeholderOnce sync.Once
	placeholderURL  string
)

// placeholderDataURL returns a neutral grey PNG used in place of images the
// archive does not contain.
func placeholderDataURL() string {
	placeholderOnce.Do(func() {
		img := imaging.New(placeholderWidth, placeholderHeight, color.NRGBA{R: 0xdd, G: 0xdd, B: 0xdd, A: 0xff})
		inner := imaging.New(placeholderWidth-8, placeholderHeight-8, color.NRGBA{R: 0xf4, G: 0xf4, B: 0xf4, A: 0xff})
		img = imaging.Paste(img, inner, image.Pt(4, 4))
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			placeholderURL = "data:,"
			return
		}
		placeholderURL = dataURL("image/png", buf.Bytes())
	})
	return placeholderURL
}

// mediaTypeOf guesses the media type of an archive entry from its extension.
func mediaTypeOf(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	case ".css":
		return "text/css"
	case ".ttf":
		return "font/ttf"
	case ".otf":
		return "font/otf"
	case ".woff":
		return "font/woff"
	case ".woff2":
		return "font/woff2"
	case ".xhtml", ".html", ".htm":
		return "application/xhtml+xml"
	}
	return "application/octet-stream"
}
