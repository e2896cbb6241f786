package media

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

// CloudinaryUploader stores images on Cloudinary.
type CloudinaryUploader struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewCloudinaryUploader creates an uploader for the given account, storing
// images under folder.
func NewCloudinaryUploader(cloudName, apiKey, apiSecret, folder string) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return &CloudinaryUploader{cld: cld, folder: folder}, nil
}

// Upload sends r to the configured folder.
func (u *CloudinaryUploader) Upload(ctx context.Context, name, _ string, r io.Reader) (Uploaded, error) {
	res, err := u.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		Folder:   u.folder,
		PublicID: strings.TrimSuffix(name, "_image") + "_" + uuid.NewString()[:8],
	})
	if err != nil {
		return Uploaded{}, fmt.Errorf("cloudinary upload: %w", err)
	}
	if res.Error.Message != "" {
		return Uploaded{}, fmt.Errorf("cloudinary upload: %s", res.Error.Message)
	}
	return Uploaded{URL: res.SecureURL, PublicID: res.PublicID}, nil
}

// Destroy deletes an image by public id.
func (u *CloudinaryUploader) Destroy(ctx context.Context, publicID string) error {
	res, err := u.cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("cloudinary destroy %s: %s", publicID, res.Error.Message)
	}
	return nil
}
