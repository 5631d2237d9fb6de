package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Local stores book files on the process's own disk.
type Local struct {
	Dir string
}

func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Local{Dir: dir}, nil
}

func (l *Local) Save(ctx context.Context, filename string, content io.Reader) (string, string, float64, error) {
	name := fmt.Sprintf("%s_%s", uuid.NewString(), filepath.Base(filename))
	path := filepath.Join(l.Dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", "", 0, err
	}
	defer f.Close()

	written, err := io.Copy(f, content)
	if err != nil {
		os.Remove(path)
		return "", "", 0, err
	}

	sizeMB := float64(written) / (1024 * 1024)
	return name, path, sizeMB, nil
}

func (l *Local) Exists(ctx context.Context, locator string) (bool, error) {
	_, err := os.Stat(locator)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (l *Local) Delete(ctx context.Context, locator string) error {
	err := os.Remove(locator)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (l *Local) DownloadResponse(c echo.Context, locator, displayName string) error {
	return c.Attachment(locator, displayName)
}
