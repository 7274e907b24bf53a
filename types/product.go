package types

import (
	"fmt"
	"strings"
	"time"
)

// Category is the destination an image is uploaded to.
type Category string

const (
	CategoryBarcode     Category = "barcode"
	CategoryNutrition   Category = "nutrition"
	CategoryIngredients Category = "ingredients"
	CategoryFront       Category = "front"
	CategoryBack        Category = "back"
	CategorySide        Category = "side"
	CategoryOther       Category = "other"
)

// Categories lists every destination in the order the destination prompt offers them.
var Categories = []Category{
	CategoryBarcode,
	CategoryNutrition,
	CategoryIngredients,
	CategoryFront,
	CategoryBack,
	CategorySide,
	CategoryOther,
}

var categoryNames = map[Category]string{
	CategoryBarcode:     "Barcode",
	CategoryNutrition:   "Nutrition Facts",
	CategoryIngredients: "Ingredients",
	CategoryFront:       "Front of Package",
	CategoryBack:        "Back of Package",
	CategorySide:        "Side of Package",
	CategoryOther:       "Other Package View",
}

// ParseCategory accepts both the upload label ("front") and the form prefix ("image_front").
func ParseCategory(s string) (Category, error) {
	c := Category(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "image_"))
	if _, ok := categoryNames[c]; !ok {
		return "", fmt.Errorf("invalid image type %q", s)
	}
	return c, nil
}

// DisplayName is the human label of the category.
func (c Category) DisplayName() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return string(c)
}

// Repeatable reports whether the form may carry additional sections of this category.
func (c Category) Repeatable() bool {
	switch c {
	case CategoryBarcode, CategoryNutrition, CategoryIngredients:
		return true
	}
	return false
}

// PackageView reports whether the category is a product (package) image.
func (c Category) PackageView() bool {
	switch c {
	case CategoryFront, CategoryBack, CategorySide, CategoryOther:
		return true
	}
	return false
}

// FormPrefix is the primary section prefix of the category in the submission form.
func (c Category) FormPrefix() string {
	if c.PackageView() {
		return "image_" + string(c)
	}
	return string(c)
}

// StorageDir is the blob directory images of this category are saved under.
func (c Category) StorageDir() string {
	switch c {
	case CategoryBarcode:
		return "barcodes"
	case CategoryNutrition:
		return "nutrition_facts"
	case CategoryIngredients:
		return "ingredients"
	}
	return "product_images"
}

// Product is a submission and its uploaded images.
type Product struct {
	ID                        int64     `json:"id" firestore:"id"`
	ProductName               string    `json:"product_name" firestore:"product_name"`
	CreatedBy                 string    `json:"created_by,omitempty" firestore:"created_by"`
	CreatedAt                 time.Time `json:"created_at" firestore:"created_at"`
	UpdatedAt                 time.Time `json:"updated_at" firestore:"updated_at"`
	SubmissionComplete        bool      `json:"submission_complete" firestore:"submission_complete"`
	IsVarietyPack             bool      `json:"is_variety_pack" firestore:"is_variety_pack"`
	IsOffline                 bool      `json:"is_offline" firestore:"is_offline"`
	HasMultipleNutritionFacts bool      `json:"has_multiple_nutrition_facts" firestore:"has_multiple_nutrition_facts"`
	HasMultipleBarcodes       bool      `json:"has_multiple_barcodes" firestore:"has_multiple_barcodes"`
	Images                    []Image   `json:"images" firestore:"images"`
}

// Image is one stored product image.
type Image struct {
	ID            int64     `json:"id" firestore:"id"`
	Category      Category  `json:"image_type" firestore:"image_type"`
	Name          string    `json:"name" firestore:"name"`
	URL           string    `json:"url" firestore:"url"`
	BarcodeNumber string    `json:"barcode_number,omitempty" firestore:"barcode_number"`
	Notes         string    `json:"notes,omitempty" firestore:"notes"`
	CreatedAt     time.Time `json:"created_at" firestore:"created_at"`
}

// CountImages returns how many images of the category the product has.
func (p *Product) CountImages(c Category) int {
	n := 0
	for _, img := range p.Images {
		if img.Category == c {
			n++
		}
	}
	return n
}

// ImagesByCategory groups the product's images by destination.
func (p *Product) ImagesByCategory() map[Category][]Image {
	grouped := make(map[Category][]Image, len(Categories))
	for _, c := range Categories {
		grouped[c] = []Image{}
	}
	for _, img := range p.Images {
		grouped[img.Category] = append(grouped[img.Category], img)
	}
	return grouped
}

// ProductInput carries the editable product fields.
type ProductInput struct {
	ProductName               string `json:"product_name" form:"product_name"`
	IsVarietyPack             bool   `json:"is_variety_pack" form:"is_variety_pack"`
	IsOffline                 bool   `json:"is_offline" form:"is_offline"`
	HasMultipleNutritionFacts bool   `json:"has_multiple_nutrition_facts" form:"has_multiple_nutrition_facts"`
	HasMultipleBarcodes       bool   `json:"has_multiple_barcodes" form:"has_multiple_barcodes"`
}

// Apply copies the input onto the product.
func (in ProductInput) Apply(p *Product) {
	p.ProductName = strings.TrimSpace(in.ProductName)
	p.IsVarietyPack = in.IsVarietyPack
	p.IsOffline = in.IsOffline
	p.HasMultipleNutritionFacts = in.HasMultipleNutritionFacts
	p.HasMultipleBarcodes = in.HasMultipleBarcodes
}

// DashboardStats summarises a user's submissions.
type DashboardStats struct {
	TotalProducts          int       `json:"total_products"`
	CompletedProducts      int       `json:"completed_products"`
	IncompleteProducts     int       `json:"incomplete_products"`
	VarietyPacks           int       `json:"variety_packs"`
	RecentProducts         int       `json:"recent_products"`
	ProductsWithImages     int       `json:"products_with_images"`
	MultiNutritionProducts int       `json:"multi_nutrition_products"`
	MultiBarcodeProducts   int       `json:"multi_barcode_products"`
	OfflineProducts        int       `json:"offline_products"`
	OnlineProducts         int       `json:"online_products"`
	RecentSubmissions      []Product `json:"recent_submissions"`
}
