package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// URLPrefix is the path under which locally stored images are served.
const URLPrefix = "/uploads"

// LocalUploader writes images to a directory served by the API itself.
type LocalUploader struct {
	dir     string
	baseURL string
}

// NewLocalUploader stores images in dir and builds URLs on baseURL.
func NewLocalUploader(dir, baseURL string) *LocalUploader {
	return &LocalUploader{dir: dir, baseURL: baseURL}
}

// Upload saves r under a UUID filename.
func (u *LocalUploader) Upload(_ context.Context, _ string, contentType string, r io.Reader) (Uploaded, error) {
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return Uploaded{}, fmt.Errorf("create upload dir: %w", err)
	}

	filename := uuid.NewString() + extension(contentType)
	dst, err := os.Create(filepath.Join(u.dir, filename))
	if err != nil {
		return Uploaded{}, fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		_ = os.Remove(dst.Name())
		return Uploaded{}, fmt.Errorf("write file: %w", err)
	}

	return Uploaded{URL: u.baseURL + URLPrefix + "/" + filename, PublicID: filename}, nil
}

// Destroy removes a stored image. Missing files are not an error.
func (u *LocalUploader) Destroy(_ context.Context, publicID string) error {
	err := os.Remove(filepath.Join(u.dir, filepath.Base(publicID)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
