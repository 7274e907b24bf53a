package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/productshot/api/models"
	"github.com/moyoez/productshot/storage"
	"github.com/moyoez/productshot/types"
)

func newTestServer(t *testing.T, csrf bool) (*Server, *models.MemoryRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store, err := storage.NewLocal(t.TempDir(), "/media")
	if err != nil {
		t.Fatal(err)
	}
	repo := models.NewMemoryRepository()
	s := NewServer(types.ServerConfig{CSRF: csrf, MaxUploadMB: 1, UploadRate: 100, UploadBurst: 100}, repo, store)
	t.Cleanup(func() { s.Close() })
	return s, repo
}

func uploadRequest(t *testing.T, token string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("image_type", "front")
	part, _ := mw.CreateFormFile("file", "front.jpg")
	part.Write([]byte("jpeg"))
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/products/submit/1/ajax-upload/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("X-CSRFToken", token)
	}
	return req
}

func TestServerUploadWithCSRF(t *testing.T) {
	s, repo := newTestServer(t, true)
	repo.CreateProduct(context.Background(), &types.Product{ProductName: "Tomato Soup"})
	h := s.Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, uploadRequest(t, ""))
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 without a token, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/csrf", nil))
	var token types.CSRFResponse
	if err := json.Unmarshal(w.Body.Bytes(), &token); err != nil || token.Token == "" {
		t.Fatalf("Expected a token, got %q (%v)", w.Body.String(), err)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, uploadRequest(t, token.Token))
	var resp types.UploadResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	if !resp.Success || resp.ImageURL != "/media/product_images/front.jpg" {
		t.Fatalf("Unexpected upload response %+v", resp)
	}

	// stored blobs are served from the local media directory
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, resp.ImageURL, nil))
	if w.Code != http.StatusOK || w.Body.String() != "jpeg" {
		t.Errorf("Expected the stored blob, got %d %q", w.Code, w.Body.String())
	}
}

func TestServerMetricsLocalOnly(t *testing.T) {
	s, _ := newTestServer(t, false)
	h := s.Handler()

	// one request so the http collectors have a sample
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/csrf", nil))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "127.0.0.1:9000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 from loopback, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "productshot_http_requests_total") {
		t.Error("Expected the request counter in the exposition")
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "192.0.2.7:9000"
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 from a remote address, got %d", w.Code)
	}
}
