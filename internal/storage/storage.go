package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/elibrary/internal/config"
)

// Backend is the capability surface the book handlers need from a file
// store. Save returns the display name shown to users, the locator stored on
// the book record, and the file size in megabytes.
type Backend interface {
	Save(ctx context.Context, filename string, content io.Reader) (name, locator string, sizeMB float64, err error)
	Exists(ctx context.Context, locator string) (bool, error)
	Delete(ctx context.Context, locator string) error
	// DownloadResponse writes the file to the client: a stream for local
	// storage, a redirect to a presigned URL for object storage.
	DownloadResponse(c echo.Context, locator, displayName string) error
}

// FromConfig picks the backend named by STORAGE_BACKEND.
func FromConfig(cfg *config.Config) (Backend, error) {
	switch cfg.STORAGE_BACKEND {
	case "", "local":
		return NewLocal(cfg.LOCAL_STORAGE_DIR)
	case "s3":
		return NewObject(ObjectConfig{
			Endpoint:  fmt.Sprintf("s3.%s.amazonaws.com", cfg.AWS_REGION),
			Region:    cfg.AWS_REGION,
			AccessKey: cfg.AWS_ACCESS_KEY_ID,
			SecretKey: cfg.AWS_SECRET_ACCESS_KEY,
			Bucket:    cfg.AWS_BUCKET_NAME,
			UseSSL:    true,
		})
	case "r2":
		return NewObject(ObjectConfig{
			Endpoint:  fmt.Sprintf("%s.r2.cloudflarestorage.com", cfg.R2_ACCOUNT_ID),
			Region:    "auto",
			AccessKey: cfg.R2_ACCESS_KEY_ID,
			SecretKey: cfg.R2_SECRET_ACCESS_KEY,
			Bucket:    cfg.R2_BUCKET_NAME,
			UseSSL:    true,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.STORAGE_BACKEND)
	}
}
