// Package media stores question and header images on an image host.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Sentinel errors for media uploads.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

// Allowed image MIME types.
var allowedMIMETypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Uploaded identifies a stored image: URL is what clients load, PublicID is
// what Destroy takes.
type Uploaded struct {
	URL      string
	PublicID string
}

// Uploader stores and removes images.
type Uploader interface {
	Upload(ctx context.Context, name, contentType string, r io.Reader) (Uploaded, error)
	Destroy(ctx context.Context, publicID string) error
}

// Validate checks an image's declared type and size before upload.
func Validate(contentType string, size, maxBytes int64) error {
	if _, ok := allowedMIMETypes[mediaType(contentType)]; !ok {
		return fmt.Errorf("%w: %s (allowed: %s)",
			ErrUnsupportedFileType, contentType, strings.Join(allowedTypes(), ", "))
	}
	if maxBytes > 0 && size > maxBytes {
		return fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, size, maxBytes)
	}
	return nil
}

func extension(contentType string) string {
	return allowedMIMETypes[mediaType(contentType)]
}

func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func allowedTypes() []string {
	types := make([]string, 0, len(allowedMIMETypes))
	for t := range allowedMIMETypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
