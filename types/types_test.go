package types

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{"barcode", CategoryBarcode, false},
		{" Front ", CategoryFront, false},
		{"image_side", CategorySide, false},
		{"nutrition", CategoryNutrition, false},
		{"image_barcode", CategoryBarcode, false},
		{"selfie", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCategory(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCategory(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCategoryLayout(t *testing.T) {
	if CategoryFront.FormPrefix() != "image_front" || CategoryBarcode.FormPrefix() != "barcode" {
		t.Errorf("Unexpected form prefixes %q %q", CategoryFront.FormPrefix(), CategoryBarcode.FormPrefix())
	}
	if CategoryNutrition.StorageDir() != "nutrition_facts" || CategoryOther.StorageDir() != "product_images" {
		t.Errorf("Unexpected storage dirs %q %q", CategoryNutrition.StorageDir(), CategoryOther.StorageDir())
	}
	if CategoryBack.Repeatable() || !CategoryIngredients.Repeatable() {
		t.Error("Expected only barcode, nutrition and ingredients to be repeatable")
	}
}

func TestSummarize(t *testing.T) {
	results := []UploadResult{{Success: true}, {Error: "Upload failed"}, {Success: true}}
	got := Summarize(results)
	want := UploadBatchSummary{Total: 3, Success: 2, Failed: 1, Results: results}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Summarize() mismatch (-want +got):\n%s", diff)
	}
}

func TestProductInputApply(t *testing.T) {
	p := &Product{ID: 1}
	ProductInput{ProductName: "  Oat Milk  ", IsOffline: true}.Apply(p)
	if p.ProductName != "Oat Milk" || !p.IsOffline || p.IsVarietyPack {
		t.Errorf("Unexpected product after Apply: %+v", p)
	}
}
