package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/moyoez/productshot/types"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrImageNotFound   = errors.New("image not found")
)

// Repository persists products and their images.
type Repository interface {
	// CreateProduct assigns the product ID and creation time.
	CreateProduct(ctx context.Context, p *types.Product) error
	GetProduct(ctx context.Context, id int64) (*types.Product, error)
	// UpdateProduct applies fn to the stored product atomically and returns the result.
	UpdateProduct(ctx context.Context, id int64, fn func(p *types.Product) error) (*types.Product, error)
	// AddImage assigns the image ID and appends it to the product.
	AddImage(ctx context.Context, productID int64, img types.Image) (types.Image, error)
	// DeleteImage removes the image of the given category and returns it.
	DeleteImage(ctx context.Context, productID, imageID int64, c types.Category) (types.Image, error)
	ListByUser(ctx context.Context, user string) ([]types.Product, error)
	Close() error
}

// NewRepository opens the repository selected by cfg.Driver.
func NewRepository(ctx context.Context, cfg types.RepoConfig) (Repository, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryRepository(), nil
	case "firestore":
		return NewFirestoreRepository(ctx, cfg.ProjectID, cfg.Prefix)
	}
	return nil, fmt.Errorf("unknown repository driver %q", cfg.Driver)
}

func cloneProduct(p *types.Product) *types.Product {
	out := *p
	out.Images = append([]types.Image(nil), p.Images...)
	return &out
}

func removeImage(p *types.Product, imageID int64, c types.Category) (types.Image, error) {
	for i, img := range p.Images {
		if img.ID == imageID && img.Category == c {
			p.Images = append(p.Images[:i], p.Images[i+1:]...)
			return img, nil
		}
	}
	return types.Image{}, ErrImageNotFound
}
