// Package storage keeps uploaded image blobs on local disk, S3 or Google Cloud Storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/moyoez/productshot/tool"
	"github.com/moyoez/productshot/types"
)

// ErrInvalidName is returned for names that escape the store root.
var ErrInvalidName = errors.New("invalid blob name")

// Store is a flat namespace of blobs addressed by slash separated names
// such as "barcodes/code.jpg".
type Store interface {
	// Save writes r under name, or under the next available variant
	// (name_1.ext, name_2.ext, ...) when name is taken, and returns the stored name.
	Save(ctx context.Context, name, contentType string, r io.Reader) (string, error)
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	// URL is the public address of a stored blob.
	URL(name string) string
	Close() error
}

// New opens the store selected by cfg.Driver.
func New(ctx context.Context, cfg types.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocal(cfg.LocalDir, cfg.BaseURL)
	case "s3":
		return NewS3(cfg)
	case "gcs":
		return NewGCS(ctx, cfg)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// BlobName is the name an uploaded file of category c is stored under.
func BlobName(c types.Category, fileName string) string {
	return c.StorageDir() + "/" + tool.SafeFileName(fileName, "upload")
}

func cleanName(name string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return cleaned, nil
}

func joinURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + name
}
