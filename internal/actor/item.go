package actor

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"kiln/internal/provider"
	"kiln/internal/services"
)

const (
	minClipSpan = 1.0
	maxClipSpan = 3.0
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".webp", ".gif", ".bmp"}

// Item is one actor to register.
type Item struct {
	Name      string  `json:"name"`
	ImagePath string  `json:"image_path"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}

// Result reports the outcome of one Item. Err is nil on success.
type Result struct {
	Item     Item           `json:"item"`
	Actor    provider.Actor `json:"actor"`
	VideoURL string         `json:"video_url,omitempty"`
	Err      error          `json:"-"`
}

// OK reports whether the item was registered.
func (r Result) OK() bool { return r.Err == nil }

// Validate checks an item against a clip of clipSeconds length without
// performing any encoding or upload.
func Validate(item Item, clipSeconds float64) error {
	if strings.TrimSpace(item.Name) == "" {
		return invalid("actor name is empty")
	}
	path := strings.TrimSpace(item.ImagePath)
	if path == "" {
		return invalid("image path is empty")
	}
	if !slices.Contains(imageExtensions, strings.ToLower(filepath.Ext(path))) {
		return invalid(fmt.Sprintf("%s is not an image (expected one of %s)", filepath.Base(path), strings.Join(imageExtensions, ", ")))
	}
	info, err := os.Stat(path)
	if err != nil {
		return invalid(fmt.Sprintf("image %s is not readable", path))
	}
	if info.IsDir() {
		return invalid(fmt.Sprintf("image %s is a directory", path))
	}
	switch span := item.End - item.Start; {
	case item.Start < 0:
		return invalid("clip start must not be negative")
	case item.Start >= item.End:
		return invalid("clip start must be before clip end")
	case item.End > clipSeconds:
		return invalid(fmt.Sprintf("clip end must not exceed %gs", clipSeconds))
	case span < minClipSpan || span > maxClipSpan:
		return invalid(fmt.Sprintf("clip range must span %g to %g seconds (got %g)", minClipSpan, maxClipSpan, span))
	}
	return nil
}

func invalid(message string) error {
	return services.Wrap(services.ErrValidation, "actor", "validate", message, nil)
}
