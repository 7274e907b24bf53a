package models

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/moyoez/productshot/types"
)

const (
	productsCollection = "products"
	countersCollection = "counters"
)

// FirestoreRepository stores one document per product, images embedded.
// Integer IDs come from counter documents updated in the same transaction.
type FirestoreRepository struct {
	client *firestore.Client
	prefix string
}

// NewFirestoreRepository creates a client for projectID. prefix namespaces the collections.
func NewFirestoreRepository(ctx context.Context, projectID, prefix string) (*FirestoreRepository, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return &FirestoreRepository{client: client, prefix: prefix}, nil
}

func (r *FirestoreRepository) productDoc(id int64) *firestore.DocumentRef {
	return r.client.Collection(r.prefix + productsCollection).Doc(strconv.FormatInt(id, 10))
}

func (r *FirestoreRepository) counterDoc(name string) *firestore.DocumentRef {
	return r.client.Collection(r.prefix + countersCollection).Doc(name)
}

// missing reports whether a Get failed only because the document does not exist.
func missing(snap *firestore.DocumentSnapshot, err error) bool {
	return err != nil && snap != nil && !snap.Exists()
}

// readCounter returns the next value of a counter without writing it.
func readCounter(tx *firestore.Transaction, doc *firestore.DocumentRef) (int64, error) {
	snap, err := tx.Get(doc)
	if missing(snap, err) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	var c struct {
		Next int64 `firestore:"next"`
	}
	if err := snap.DataTo(&c); err != nil {
		return 0, err
	}
	return c.Next + 1, nil
}

func readProduct(tx *firestore.Transaction, doc *firestore.DocumentRef) (*types.Product, error) {
	snap, err := tx.Get(doc)
	if missing(snap, err) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	var p types.Product
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("failed to decode product: %w", err)
	}
	return &p, nil
}

func (r *FirestoreRepository) CreateProduct(ctx context.Context, p *types.Product) error {
	counter := r.counterDoc(productsCollection)
	return r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		id, err := readCounter(tx, counter)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		p.ID = id
		p.CreatedAt = now
		p.UpdatedAt = now
		if p.Images == nil {
			p.Images = []types.Image{}
		}
		if err := tx.Set(counter, map[string]any{"next": id}); err != nil {
			return err
		}
		return tx.Create(r.productDoc(id), p)
	})
}

func (r *FirestoreRepository) GetProduct(ctx context.Context, id int64) (*types.Product, error) {
	snap, err := r.productDoc(id).Get(ctx)
	if missing(snap, err) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product %d: %w", id, err)
	}
	var p types.Product
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("failed to decode product %d: %w", id, err)
	}
	return &p, nil
}

func (r *FirestoreRepository) UpdateProduct(ctx context.Context, id int64, fn func(p *types.Product) error) (*types.Product, error) {
	var out *types.Product
	doc := r.productDoc(id)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		p, err := readProduct(tx, doc)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
		p.ID = id
		p.UpdatedAt = time.Now().UTC()
		out = p
		return tx.Set(doc, p)
	})
	return out, err
}

func (r *FirestoreRepository) AddImage(ctx context.Context, productID int64, img types.Image) (types.Image, error) {
	doc := r.productDoc(productID)
	counter := r.counterDoc("images")
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// every read must precede the writes
		p, err := readProduct(tx, doc)
		if err != nil {
			return err
		}
		id, err := readCounter(tx, counter)
		if err != nil {
			return err
		}
		img.ID = id
		if img.CreatedAt.IsZero() {
			img.CreatedAt = time.Now().UTC()
		}
		p.Images = append(p.Images, img)
		p.UpdatedAt = time.Now().UTC()
		if err := tx.Set(counter, map[string]any{"next": id}); err != nil {
			return err
		}
		return tx.Set(doc, p)
	})
	if err != nil {
		return types.Image{}, err
	}
	return img, nil
}

func (r *FirestoreRepository) DeleteImage(ctx context.Context, productID, imageID int64, c types.Category) (types.Image, error) {
	var removed types.Image
	doc := r.productDoc(productID)
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		p, err := readProduct(tx, doc)
		if err != nil {
			return err
		}
		removed, err = removeImage(p, imageID, c)
		if err != nil {
			return err
		}
		p.UpdatedAt = time.Now().UTC()
		return tx.Set(doc, p)
	})
	if err != nil {
		return types.Image{}, err
	}
	return removed, nil
}

func (r *FirestoreRepository) ListByUser(ctx context.Context, user string) ([]types.Product, error) {
	snaps, err := r.client.Collection(r.prefix+productsCollection).
		Where("created_by", "==", user).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	out := make([]types.Product, 0, len(snaps))
	for _, snap := range snaps {
		var p types.Product
		if err := snap.DataTo(&p); err != nil {
			return nil, fmt.Errorf("failed to decode product %s: %w", snap.Ref.ID, err)
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b types.Product) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *FirestoreRepository) Close() error {
	if err := r.client.Close(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
