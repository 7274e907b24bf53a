package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moyoez/productshot/tool"
)

// Local stores blobs under a directory on disk.
type Local struct {
	dir     string
	baseURL string
}

// NewLocal creates the directory if needed.
func NewLocal(dir, baseURL string) (*Local, error) {
	if dir == "" {
		dir = "media"
	}
	if baseURL == "" {
		baseURL = "/media"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &Local{dir: dir, baseURL: baseURL}, nil
}

// Dir is the root directory, served under the base URL.
func (l *Local) Dir() string {
	return l.dir
}

// BaseURL is the URL prefix blobs are published under.
func (l *Local) BaseURL() string {
	return l.baseURL
}

func (l *Local) path(name string) string {
	return filepath.Join(l.dir, filepath.FromSlash(name))
}

func (l *Local) Save(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(l.path(name)), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	// O_EXCL closes the gap between picking a name and creating it
	for {
		stored, err := tool.NextAvailableName(name, func(candidate string) (bool, error) {
			return l.Exists(ctx, candidate)
		})
		if err != nil {
			return "", err
		}
		f, err := os.OpenFile(l.path(stored), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create %s: %w", stored, err)
		}

		_, copyErr := tool.CopyWithContext(ctx, f, r)
		closeErr := f.Close()
		if copyErr != nil || closeErr != nil {
			if err := os.Remove(l.path(stored)); err != nil {
				tool.DefaultLogger.Errorf("[Storage] Failed to remove partial file %s: %v", stored, err)
			}
			return "", fmt.Errorf("failed to write %s: %w", stored, errors.Join(copyErr, closeErr))
		}
		return stored, nil
	}
}

func (l *Local) Delete(ctx context.Context, name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	if err := os.Remove(l.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

func (l *Local) Exists(ctx context.Context, name string) (bool, error) {
	name, err := cleanName(name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(l.path(name))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	}
	return false, err
}

func (l *Local) URL(name string) string {
	return joinURL(l.baseURL, name)
}

func (l *Local) Close() error {
	return nil
}
