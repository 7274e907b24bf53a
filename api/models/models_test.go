package models

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/moyoez/productshot/types"
)

func images(cats ...types.Category) []types.Image {
	out := make([]types.Image, 0, len(cats))
	for i, c := range cats {
		out = append(out, types.Image{ID: int64(i + 1), Category: c})
	}
	return out
}

func TestValidationErrors(t *testing.T) {
	complete := images(types.CategoryBarcode, types.CategoryNutrition, types.CategoryIngredients, types.CategoryFront, types.CategoryBack)

	tests := []struct {
		name    string
		product types.Product
		want    []string
	}{
		{
			name:    "complete",
			product: types.Product{ProductName: "Tomato Soup", Images: complete},
			want:    []string{},
		},
		{
			name:    "empty",
			product: types.Product{},
			want: []string{
				"Product name is required",
				"At least one barcode image is required",
				"At least one nutrition facts image is required",
				"At least one ingredients image is required",
				"Missing required product images: Back, Front",
			},
		},
		{
			name: "multiples indicated",
			product: types.Product{
				ProductName:               "Soup",
				HasMultipleBarcodes:       true,
				HasMultipleNutritionFacts: true,
				Images:                    images(types.CategoryBarcode, types.CategoryNutrition, types.CategoryIngredients, types.CategoryFront),
			},
			want: []string{
				"Please enter the full product name (at least two words)",
				"Multiple barcodes were indicated but not all were uploaded",
				"Multiple nutrition facts were indicated but not all were uploaded",
				"Missing required product images: Back",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ValidationErrors(&tt.product)); diff != "" {
				t.Errorf("ValidationErrors() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildDashboard(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	products := []types.Product{
		{ID: 1, CreatedAt: now.Add(-60 * 24 * time.Hour), SubmissionComplete: true, IsOffline: true},
		{ID: 2, CreatedAt: now.Add(-2 * time.Hour), IsVarietyPack: true, Images: images(types.CategoryFront)},
		{ID: 3, CreatedAt: now.Add(-1 * time.Hour), HasMultipleBarcodes: true, Images: images(types.CategoryBarcode)},
		{ID: 4, CreatedAt: now.Add(-3 * time.Hour), HasMultipleNutritionFacts: true},
		{ID: 5, CreatedAt: now.Add(-4 * time.Hour)},
		{ID: 6, CreatedAt: now.Add(-5 * time.Hour)},
	}
	stats := BuildDashboard(products, now)

	if stats.TotalProducts != 6 || stats.CompletedProducts != 1 || stats.IncompleteProducts != 5 {
		t.Errorf("Unexpected totals: %+v", stats)
	}
	if stats.VarietyPacks != 1 || stats.RecentProducts != 5 || stats.ProductsWithImages != 1 {
		t.Errorf("Unexpected counters: %+v", stats)
	}
	if stats.MultiBarcodeProducts != 1 || stats.MultiNutritionProducts != 1 || stats.OfflineProducts != 1 || stats.OnlineProducts != 5 {
		t.Errorf("Unexpected flags: %+v", stats)
	}

	var recent []int64
	for _, p := range stats.RecentSubmissions {
		recent = append(recent, p.ID)
	}
	if diff := cmp.Diff([]int64{3, 2, 4, 5, 6}, recent); diff != "" {
		t.Errorf("recent submissions mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	p := &types.Product{ProductName: "Tomato Soup", CreatedBy: "alice"}
	if err := repo.CreateProduct(ctx, p); err != nil {
		t.Fatalf("CreateProduct() error = %v", err)
	}
	if p.ID != 1 || p.CreatedAt.IsZero() {
		t.Errorf("Expected ID and timestamps to be assigned, got %+v", p)
	}
	repo.CreateProduct(ctx, &types.Product{CreatedBy: "bob"})

	img, err := repo.AddImage(ctx, p.ID, types.Image{Category: types.CategoryFront, Name: "product_images/front.jpg"})
	if err != nil {
		t.Fatalf("AddImage() error = %v", err)
	}
	if _, err := repo.AddImage(ctx, 99, types.Image{}); !errors.Is(err, ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}

	// returned products are copies
	got, _ := repo.GetProduct(ctx, p.ID)
	got.Images = nil
	again, _ := repo.GetProduct(ctx, p.ID)
	if len(again.Images) != 1 {
		t.Error("Expected the stored product to be unaffected by caller changes")
	}

	updated, err := repo.UpdateProduct(ctx, p.ID, func(p *types.Product) error {
		p.SubmissionComplete = true
		return nil
	})
	if err != nil || !updated.SubmissionComplete {
		t.Errorf("UpdateProduct() = %+v, %v", updated, err)
	}
	boom := errors.New("boom")
	if _, err := repo.UpdateProduct(ctx, p.ID, func(*types.Product) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Expected the update error, got %v", err)
	}

	if _, err := repo.DeleteImage(ctx, p.ID, img.ID, types.CategoryBack); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("Expected a category mismatch to miss, got %v", err)
	}
	if _, err := repo.DeleteImage(ctx, p.ID, img.ID, types.CategoryFront); err != nil {
		t.Errorf("DeleteImage() error = %v", err)
	}

	list, _ := repo.ListByUser(ctx, "alice")
	if len(list) != 1 || list[0].ID != p.ID || len(list[0].Images) != 0 {
		t.Errorf("Unexpected list: %+v", list)
	}
}

func TestCSRFTokens(t *testing.T) {
	token := IssueCSRFToken()
	if len(token) != 64 {
		t.Errorf("Expected a 64 char token, got %q", token)
	}
	if !IsValidCSRFToken(token) {
		t.Error("Expected an issued token to be valid")
	}
	RevokeCSRFToken(token)
	if IsValidCSRFToken(token) || IsValidCSRFToken("") || IsValidCSRFToken("forged") {
		t.Error("Expected revoked, empty and unknown tokens to be rejected")
	}
}
