package media

import (
	_ "embed"
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/pders01/tailfeed/internal/storage"
)

//go:embed media_types.toml
var mediaTypesTOML []byte

type TypeConfig struct {
	Extensions  []string `toml:"extensions"`
	URLPatterns []string `toml:"url_patterns"`
}

type TypesConfig struct {
	Video TypeConfig `toml:"video"`
	Image TypeConfig `toml:"image"`
}

// TypeDetector guesses whether an upload is an image or a video.
type TypeDetector struct {
	config *TypesConfig
}

func NewTypeDetector() (*TypeDetector, error) {
	var config TypesConfig
	if err := toml.Unmarshal(mediaTypesTOML, &config); err != nil {
		return nil, err
	}

	return &TypeDetector{config: &config}, nil
}

// DefaultDetector returns a detector for the embedded table, or an empty one
// that detects nothing if the table cannot be parsed.
func DefaultDetector() *TypeDetector {
	d, err := NewTypeDetector()
	if err != nil {
		return &TypeDetector{config: &TypesConfig{}}
	}
	return d
}

// DetectURL returns the kind for a media URL and whether it was recognized.
func (d *TypeDetector) DetectURL(raw string) (storage.MediaKind, bool) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return "", false
	}

	p := lower
	if u, err := url.Parse(lower); err == nil && u.Path != "" {
		p = u.Path
	}
	ext := strings.TrimPrefix(path.Ext(p), ".")

	if ext != "" {
		if hasExtension(d.config.Video.Extensions, ext) {
			return storage.MediaVideo, true
		}
		if hasExtension(d.config.Image.Extensions, ext) {
			return storage.MediaImage, true
		}
	}

	if matchesPattern(lower, d.config.Video.URLPatterns) {
		return storage.MediaVideo, true
	}
	if matchesPattern(lower, d.config.Image.URLPatterns) {
		return storage.MediaImage, true
	}

	return "", false
}

// DetectMIME maps a MIME type such as "video/mp4" to a media kind.
func (d *TypeDetector) DetectMIME(mimeType string) (storage.MediaKind, bool) {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "", false
	}
	switch {
	case strings.HasPrefix(mt, "video/"):
		return storage.MediaVideo, true
	case strings.HasPrefix(mt, "image/"):
		return storage.MediaImage, true
	}
	return "", false
}

// Normalize fills in the kind of uploads the server left untyped. Uploads
// that cannot be classified are treated as images.
func (d *TypeDetector) Normalize(uploads []storage.Upload) {
	for i := range uploads {
		switch uploads[i].Kind {
		case storage.MediaImage, storage.MediaVideo:
			continue
		}
		kind, ok := d.DetectURL(uploads[i].URL)
		if !ok {
			kind, ok = d.DetectURL(uploads[i].SignedURL)
		}
		if !ok {
			kind = storage.MediaImage
		}
		uploads[i].Kind = kind
	}
}

func hasExtension(extensions []string, ext string) bool {
	for _, e := range extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func matchesPattern(u string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(u, pattern) {
			return true
		}
	}
	return false
}
