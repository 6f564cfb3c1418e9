// Package attachment turns user-supplied images into references the
// incident payload can carry.
package attachment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cityalert/internal/llm"
)

const placeholderPrefix = "image_attached_"

// MaxImageBytes bounds inline uploads.
const MaxImageBytes = 8 << 20

var (
	ErrEmpty    = errors.New("attachment: empty image reference")
	ErrTooLarge = errors.New("attachment: image exceeds size limit")
	ErrNotImage = errors.New("attachment: not an image")
)

// Placeholder is the opaque reference used when no object store is set up.
func Placeholder(now time.Time) string {
	return placeholderPrefix + strconv.FormatInt(now.UnixMilli(), 10)
}

func IsPlaceholder(ref string) bool {
	return strings.HasPrefix(ref, placeholderPrefix)
}

// Parse accepts a base64 data URL (decoded into inline bytes) or any other
// non-empty string, which is kept as an opaque reference.
func Parse(raw string) (*llm.Image, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmpty
	}
	if !strings.HasPrefix(raw, "data:") {
		return &llm.Image{Ref: raw}, nil
	}

	meta, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("attachment: malformed data url")
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("attachment: data url must be base64 encoded")
	}
	mime := strings.TrimSuffix(meta, ";base64")
	if mime != "" && !strings.HasPrefix(mime, "image/") {
		return nil, ErrNotImage
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("attachment: decode data url: %w", err)
	}
	if len(data) > MaxImageBytes {
		return nil, ErrTooLarge
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return &llm.Image{MIMEType: mime, Data: data}, nil
}

// LoadFile reads a local image for the terminal client.
func LoadFile(path string) (*llm.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("attachment: %w", err)
	}
	if info.Size() > MaxImageBytes {
		return nil, ErrTooLarge
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("attachment: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotImage, filepath.Base(path), mime)
	}
	return &llm.Image{MIMEType: mime, Data: data}, nil
}

// PlaceholderStore stands in for object storage: inline bytes are dropped
// and replaced by a timestamped placeholder.
type PlaceholderStore struct {
	Now func() time.Time
}

func (p PlaceholderStore) Save(_ context.Context, _ string, img *llm.Image) (string, error) {
	if img == nil {
		return "", ErrEmpty
	}
	if !img.Inline() && img.Ref != "" {
		return img.Ref, nil
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return Placeholder(now()), nil
}

func extension(mime string) string {
	switch mime {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
