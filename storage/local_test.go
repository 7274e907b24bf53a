package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/moyoez/productshot/types"
)

func TestLocalSaveUsesAvailableName(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocal(dir, "/media/")
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	ctx := context.Background()

	var names []string
	for _, body := range []string{"one", "two", "three"} {
		name, err := store.Save(ctx, "barcodes/code.jpg", "image/jpeg", strings.NewReader(body))
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		names = append(names, name)
	}
	want := []string{"barcodes/code.jpg", "barcodes/code_1.jpg", "barcodes/code_2.jpg"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Save() #%d = %q, want %q", i, names[i], want[i])
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "barcodes", "code_1.jpg"))
	if err != nil || string(data) != "two" {
		t.Errorf("Expected second body in code_1.jpg, got %q (%v)", data, err)
	}
	if got := store.URL(names[1]); got != "/media/barcodes/code_1.jpg" {
		t.Errorf("URL() = %q", got)
	}
}

func TestLocalDeleteAndExists(t *testing.T) {
	store, err := NewLocal(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	ctx := context.Background()
	name, _ := store.Save(ctx, "product_images/front.png", "image/png", strings.NewReader("png"))

	if ok, err := store.Exists(ctx, name); err != nil || !ok {
		t.Fatalf("Expected %s to exist (%v)", name, err)
	}
	if err := store.Delete(ctx, name); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if ok, _ := store.Exists(ctx, name); ok {
		t.Error("Expected blob to be gone")
	}
	if err := store.Delete(ctx, name); err != nil {
		t.Errorf("Expected deleting a missing blob to succeed, got %v", err)
	}
}

func TestLocalRejectsEscapingNames(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewLocal(filepath.Join(dir, "media"), "")
	name, err := store.Save(context.Background(), "../../etc/passwd", "text/plain", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if name != "etc/passwd" {
		t.Errorf("Expected the name to be confined to the store, got %q", name)
	}
	if _, err := store.Save(context.Background(), "/", "text/plain", strings.NewReader("x")); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Expected ErrInvalidName, got %v", err)
	}
}

func TestBlobName(t *testing.T) {
	tests := []struct {
		category types.Category
		file     string
		want     string
	}{
		{types.CategoryBarcode, "code.jpg", "barcodes/code.jpg"},
		{types.CategoryNutrition, "../label.png", "nutrition_facts/label.png"},
		{types.CategoryIngredients, "list.jpg", "ingredients/list.jpg"},
		{types.CategoryBack, `C:\photos\back.jpg`, "product_images/back.jpg"},
		{types.CategoryOther, "", "product_images/upload"},
	}
	for _, tt := range tests {
		if got := BlobName(tt.category, tt.file); got != tt.want {
			t.Errorf("BlobName(%s, %q) = %q, want %q", tt.category, tt.file, got, tt.want)
		}
	}
}

func TestNewUnknownDriver(t *testing.T) {
	if _, err := New(context.Background(), types.StorageConfig{Driver: "ftp"}); err == nil {
		t.Error("Expected an error for an unknown driver")
	}
}
