package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/moyoez/productshot/tool"
	"github.com/moyoez/productshot/types"
)

// maxNameAttempts bounds the retries when concurrent writers race for a name.
const maxNameAttempts = 5

// GCS stores blobs in a Google Cloud Storage bucket using application default credentials.
type GCS struct {
	client  *storage.Client
	bucket  *storage.BucketHandle
	name    string
	prefix  string
	baseURL string
}

func NewGCS(ctx context.Context, cfg types.StorageConfig) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs storage requires a bucket")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCS{
		client:  client,
		bucket:  client.Bucket(cfg.Bucket),
		name:    cfg.Bucket,
		prefix:  cfg.Prefix,
		baseURL: cfg.BaseURL,
	}, nil
}

func (g *GCS) object(name string) *storage.ObjectHandle {
	return g.bucket.Object(g.prefix + name)
}

// Save writes with a does-not-exist precondition, so a name taken between
// the existence check and the write moves on to the next variant.
func (g *GCS) Save(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	name, err := cleanName(name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	for range maxNameAttempts {
		stored, err := tool.NextAvailableName(name, func(candidate string) (bool, error) {
			return g.Exists(ctx, candidate)
		})
		if err != nil {
			return "", err
		}

		writer := g.object(stored).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
		writer.ContentType = contentType
		_, err = io.Copy(writer, bytes.NewReader(buf.Bytes()))
		if closeErr := writer.Close(); err == nil {
			err = closeErr
		}
		if isPreconditionFailed(err) {
			tool.DefaultLogger.Debugf("[Storage] %s was taken concurrently, picking another name", stored)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to write to GCS: %w", err)
		}
		return stored, nil
	}
	return "", fmt.Errorf("no free name for %s after %d attempts", name, maxNameAttempts)
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

func (g *GCS) Delete(ctx context.Context, name string) error {
	name, err := cleanName(name)
	if err != nil {
		return err
	}
	if err := g.object(name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("GCS delete failed: %w", err)
	}
	return nil
}

func (g *GCS) Exists(ctx context.Context, name string) (bool, error) {
	name, err := cleanName(name)
	if err != nil {
		return false, err
	}
	_, err = g.object(name).Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrObjectNotExist):
		return false, nil
	}
	return false, fmt.Errorf("GCS attrs failed: %w", err)
}

func (g *GCS) URL(name string) string {
	if g.baseURL != "" {
		return joinURL(g.baseURL, g.prefix+name)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s%s", g.name, g.prefix, name)
}

func (g *GCS) Close() error {
	return g.client.Close()
}
