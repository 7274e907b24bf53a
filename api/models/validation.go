package models

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/moyoez/productshot/types"
)

var requiredPackageViews = []types.Category{types.CategoryFront, types.CategoryBack}

// ValidationErrors lists what keeps a product from being a complete submission.
func ValidationErrors(p *types.Product) []string {
	errs := []string{}

	name := strings.TrimSpace(p.ProductName)
	switch {
	case name == "":
		errs = append(errs, "Product name is required")
	case len(strings.Fields(name)) < 2:
		errs = append(errs, "Please enter the full product name (at least two words)")
	}

	switch n := p.CountImages(types.CategoryBarcode); {
	case n == 0:
		errs = append(errs, "At least one barcode image is required")
	case p.HasMultipleBarcodes && n < 2:
		errs = append(errs, "Multiple barcodes were indicated but not all were uploaded")
	}

	switch n := p.CountImages(types.CategoryNutrition); {
	case n == 0:
		errs = append(errs, "At least one nutrition facts image is required")
	case p.HasMultipleNutritionFacts && n < 2:
		errs = append(errs, "Multiple nutrition facts were indicated but not all were uploaded")
	}

	if p.CountImages(types.CategoryIngredients) == 0 {
		errs = append(errs, "At least one ingredients image is required")
	}

	var missing []string
	for _, c := range requiredPackageViews {
		if p.CountImages(c) == 0 {
			missing = append(missing, strings.ToUpper(string(c[:1]))+string(c[1:]))
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		errs = append(errs, "Missing required product images: "+strings.Join(missing, ", "))
	}
	return errs
}

// RecentWindow is how far back a product counts as recent on the dashboard.
const RecentWindow = 30 * 24 * time.Hour

// BuildDashboard summarises a user's products as of now.
func BuildDashboard(products []types.Product, now time.Time) types.DashboardStats {
	stats := types.DashboardStats{
		TotalProducts:     len(products),
		RecentSubmissions: []types.Product{},
	}
	since := now.Add(-RecentWindow)
	for i := range products {
		p := &products[i]
		if p.SubmissionComplete {
			stats.CompletedProducts++
		}
		if p.IsVarietyPack {
			stats.VarietyPacks++
		}
		if !p.CreatedAt.Before(since) {
			stats.RecentProducts++
		}
		if slices.ContainsFunc(p.Images, func(img types.Image) bool { return img.Category.PackageView() }) {
			stats.ProductsWithImages++
		}
		if p.HasMultipleNutritionFacts {
			stats.MultiNutritionProducts++
		}
		if p.HasMultipleBarcodes {
			stats.MultiBarcodeProducts++
		}
		if p.IsOffline {
			stats.OfflineProducts++
		} else {
			stats.OnlineProducts++
		}
	}
	stats.IncompleteProducts = stats.TotalProducts - stats.CompletedProducts

	recent := slices.Clone(products)
	slices.SortStableFunc(recent, func(a, b types.Product) int { return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano()) })
	if len(recent) > 5 {
		recent = recent[:5]
	}
	stats.RecentSubmissions = append(stats.RecentSubmissions, recent...)
	return stats
}
