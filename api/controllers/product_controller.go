package controllers

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"

	"github.com/moyoez/productshot/api/models"
	"github.com/moyoez/productshot/metrics"
	"github.com/moyoez/productshot/notify"
	"github.com/moyoez/productshot/storage"
	"github.com/moyoez/productshot/tool"
	"github.com/moyoez/productshot/types"
)

// UserHeader names the user a dashboard or new product belongs to.
const UserHeader = "Dh-User"

const (
	defaultMaxUpload = 20 << 20
	defaultSaveLimit = 4
)

// ProductController serves product submissions and their images.
type ProductController struct {
	repo      models.Repository
	store     storage.Store
	metrics   *metrics.Server
	notifier  *notify.Notifier
	sanitizer *bluemonday.Policy
	maxUpload int64
	saveLimit int
	publicURL string
	now       func() time.Time
}

type ProductOption func(*ProductController)

// WithServerMetrics counts stored and deleted images.
func WithServerMetrics(m *metrics.Server) ProductOption {
	return func(ctrl *ProductController) {
		ctrl.metrics = m
	}
}

// WithNotifier publishes image and submission events.
func WithNotifier(n *notify.Notifier) ProductOption {
	return func(ctrl *ProductController) {
		ctrl.notifier = n
	}
}

// WithMaxUpload caps request bodies at n bytes.
func WithMaxUpload(n int64) ProductOption {
	return func(ctrl *ProductController) {
		if n > 0 {
			ctrl.maxUpload = n
		}
	}
}

// WithPublicURL sets the externally reachable base URL used in QR codes.
func WithPublicURL(u string) ProductOption {
	return func(ctrl *ProductController) {
		ctrl.publicURL = strings.TrimRight(u, "/")
	}
}

func NewProductController(repo models.Repository, store storage.Store, opts ...ProductOption) *ProductController {
	ctrl := &ProductController{
		repo:      repo,
		store:     store,
		sanitizer: bluemonday.StrictPolicy(),
		maxUpload: defaultMaxUpload,
		saveLimit: defaultSaveLimit,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(ctrl)
	}
	return ctrl
}

func currentUser(c *gin.Context) string {
	if user := strings.TrimSpace(c.GetHeader(UserHeader)); user != "" {
		return user
	}
	return "anonymous"
}

func productID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("pk"), 10, 64)
	return id, err == nil && id > 0
}

// formBool follows checkbox semantics: present and not an explicit false.
func formBool(v url.Values, key string) bool {
	if !v.Has(key) {
		return false
	}
	switch strings.ToLower(v.Get(key)) {
	case "", "false", "0", "off":
		return false
	}
	return true
}

func formInput(v url.Values) types.ProductInput {
	return types.ProductInput{
		ProductName:               v.Get("product_name"),
		IsVarietyPack:             formBool(v, "is_variety_pack"),
		IsOffline:                 formBool(v, "is_offline"),
		HasMultipleNutritionFacts: formBool(v, "has_multiple_nutrition_facts"),
		HasMultipleBarcodes:       formBool(v, "has_multiple_barcodes"),
	}
}

func (ctrl *ProductController) limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, ctrl.maxUpload)
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func fileContentType(fh *multipart.FileHeader) string {
	if ct := fh.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(fh.Filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// storeImage saves one uploaded file and records it on the product.
// The blob is removed again when the product record cannot be updated.
func (ctrl *ProductController) storeImage(ctx context.Context, pid int64, category types.Category, fh *multipart.FileHeader, barcodeNumber, notes string) (types.Image, error) {
	src, err := fh.Open()
	if err != nil {
		return types.Image{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	stored, err := ctrl.store.Save(ctx, storage.BlobName(category, fh.Filename), fileContentType(fh), src)
	if err != nil {
		return types.Image{}, fmt.Errorf("failed to store image: %w", err)
	}

	img := types.Image{
		Category:  category,
		Name:      stored,
		URL:       ctrl.store.URL(stored),
		Notes:     strings.TrimSpace(ctrl.sanitizer.Sanitize(notes)),
		CreatedAt: ctrl.now().UTC(),
	}
	if category == types.CategoryBarcode {
		img.BarcodeNumber = strings.TrimSpace(ctrl.sanitizer.Sanitize(barcodeNumber))
	}
	img, err = ctrl.repo.AddImage(ctx, pid, img)
	if err != nil {
		if delErr := ctrl.store.Delete(ctx, stored); delErr != nil {
			tool.DefaultLogger.Warnf("[Upload] Failed to remove orphaned blob %s: %v", stored, delErr)
		}
		return types.Image{}, err
	}
	ctrl.metrics.ImageStored(string(category))
	ctrl.notifier.ImageStored(pid, img)
	tool.DefaultLogger.Infof("[Upload] Stored %s image %d for product %d as %s", category, img.ID, pid, stored)
	return img, nil
}

// Dashboard summarises the requesting user's products.
func (ctrl *ProductController) Dashboard(c *gin.Context) {
	products, err := ctrl.repo.ListByUser(c.Request.Context(), currentUser(c))
	if err != nil {
		tool.DefaultLogger.Errorf("[Dashboard] Failed to list products: %v", err)
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Failed to load products"))
		return
	}
	c.JSON(http.StatusOK, models.BuildDashboard(products, ctrl.now()))
}

// Create starts a new product from a JSON or form body.
func (ctrl *ProductController) Create(c *gin.Context) {
	var in types.ProductInput
	if c.ContentType() == gin.MIMEJSON {
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, types.SubmitResponse{Error: "Invalid request body"})
			return
		}
	} else {
		if err := c.Request.ParseForm(); err != nil {
			c.JSON(http.StatusBadRequest, types.SubmitResponse{Error: "Invalid form data"})
			return
		}
		in = formInput(c.Request.PostForm)
	}

	p := &types.Product{CreatedBy: currentUser(c), Images: []types.Image{}}
	in.Apply(p)
	if err := ctrl.repo.CreateProduct(c.Request.Context(), p); err != nil {
		tool.DefaultLogger.Errorf("[Product] Failed to create product: %v", err)
		c.JSON(http.StatusInternalServerError, types.SubmitResponse{Error: "Failed to create product"})
		return
	}
	tool.DefaultLogger.Infof("[Product] Created product %d for %s", p.ID, p.CreatedBy)
	c.JSON(http.StatusCreated, types.SubmitResponse{Success: true, ProductID: p.ID})
}

// Get returns a product, its images grouped by destination and what still blocks submission.
func (ctrl *ProductController) Get(c *gin.Context) {
	pid, ok := productID(c)
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Product not found"))
		return
	}
	p, err := ctrl.repo.GetProduct(c.Request.Context(), pid)
	if errors.Is(err, models.ErrProductNotFound) {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Product not found"))
		return
	}
	if err != nil {
		tool.DefaultLogger.Errorf("[Product] Failed to load product %d: %v", pid, err)
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Failed to load product"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product":           p,
		"images":            p.ImagesByCategory(),
		"validation_errors": models.ValidationErrors(p),
	})
}
