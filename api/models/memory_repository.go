package models

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/moyoez/productshot/types"
)

// MemoryRepository keeps products in process memory.
type MemoryRepository struct {
	mu        sync.RWMutex
	products  map[int64]*types.Product
	nextID    int64
	nextImage int64
	now       func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		products: make(map[int64]*types.Product),
		now:      time.Now,
	}
}

func (r *MemoryRepository) CreateProduct(ctx context.Context, p *types.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	now := r.now()
	p.ID = r.nextID
	p.CreatedAt = now
	p.UpdatedAt = now
	r.products[p.ID] = cloneProduct(p)
	return nil
}

func (r *MemoryRepository) GetProduct(ctx context.Context, id int64) (*types.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return cloneProduct(p), nil
}

func (r *MemoryRepository) UpdateProduct(ctx context.Context, id int64, fn func(p *types.Product) error) (*types.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	p := cloneProduct(stored)
	if err := fn(p); err != nil {
		return nil, err
	}
	p.ID = id
	p.UpdatedAt = r.now()
	r.products[id] = cloneProduct(p)
	return p, nil
}

func (r *MemoryRepository) AddImage(ctx context.Context, productID int64, img types.Image) (types.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[productID]
	if !ok {
		return types.Image{}, ErrProductNotFound
	}
	r.nextImage++
	img.ID = r.nextImage
	if img.CreatedAt.IsZero() {
		img.CreatedAt = r.now()
	}
	p.Images = append(p.Images, img)
	p.UpdatedAt = r.now()
	return img, nil
}

func (r *MemoryRepository) DeleteImage(ctx context.Context, productID, imageID int64, c types.Category) (types.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[productID]
	if !ok {
		return types.Image{}, ErrProductNotFound
	}
	img, err := removeImage(p, imageID, c)
	if err != nil {
		return types.Image{}, err
	}
	p.UpdatedAt = r.now()
	return img, nil
}

func (r *MemoryRepository) ListByUser(ctx context.Context, user string) ([]types.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.Product
	for _, p := range r.products {
		if p.CreatedBy == user {
			out = append(out, *cloneProduct(p))
		}
	}
	slices.SortFunc(out, func(a, b types.Product) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *MemoryRepository) Close() error {
	return nil
}
