package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const presignExpiry = 15 * time.Minute

type ObjectConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Object stores book files in an S3-compatible bucket (AWS S3 or
// Cloudflare R2, which only differ in endpoint and region here).
type Object struct {
	mc     *minio.Client
	bucket string
}

func NewObject(cfg ObjectConfig) (*Object, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("object storage endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("object storage credentials are required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("object storage client: %w", err)
	}

	return &Object{mc: mc, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it is absent. Called once at startup.
func (o *Object) EnsureBucket(ctx context.Context) error {
	exists, err := o.mc.BucketExists(ctx, o.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := o.mc.MakeBucket(ctx, o.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

func (o *Object) Save(ctx context.Context, filename string, content io.Reader) (string, string, float64, error) {
	name := fmt.Sprintf("%s_%s", uuid.NewString(), filepath.Base(filename))
	key := "books/" + name

	info, err := o.mc.PutObject(ctx, o.bucket, key, content, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", "", 0, fmt.Errorf("upload %s: %w", key, err)
	}

	sizeMB := float64(info.Size) / (1024 * 1024)
	return name, key, sizeMB, nil
}

func (o *Object) Exists(ctx context.Context, locator string) (bool, error) {
	_, err := o.mc.StatObject(ctx, o.bucket, locator, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (o *Object) Delete(ctx context.Context, locator string) error {
	return o.mc.RemoveObject(ctx, o.bucket, locator, minio.RemoveObjectOptions{})
}

func (o *Object) DownloadResponse(c echo.Context, locator, displayName string) error {
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", displayName))

	u, err := o.mc.PresignedGetObject(c.Request().Context(), o.bucket, locator, presignExpiry, params)
	if err != nil {
		return fmt.Errorf("presign %s: %w", locator, err)
	}
	return c.Redirect(http.StatusTemporaryRedirect, u.String())
}
