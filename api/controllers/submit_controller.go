package controllers

import (
	"cmp"
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/moyoez/productshot/api/models"
	"github.com/moyoez/productshot/tool"
	"github.com/moyoez/productshot/types"
)

// multipartMemory is held in memory before parts spill to temp files.
const multipartMemory = 8 << 20

var indexedImageField = regexp.MustCompile(`^([a-z_]+)-(\d+)-image$`)

// formUpload is one file part of a plain submission.
type formUpload struct {
	prefix   string
	category types.Category
	index    int // -1 for the primary section
	file     *multipart.FileHeader
}

// collectUploads finds the file parts of a submission: one primary section
// per category and every indexed section of the repeatable ones, gaps allowed.
// Sections flagged <prefix>-already_uploaded=true went through AjaxUpload and are skipped.
func collectUploads(form *multipart.Form) []formUpload {
	if form == nil {
		return nil
	}
	values := url.Values(form.Value)
	skip := func(prefix string) bool {
		return values.Get(prefix+"-already_uploaded") == "true"
	}
	first := func(field string) *multipart.FileHeader {
		if fhs := form.File[field]; len(fhs) > 0 {
			return fhs[0]
		}
		return nil
	}

	var uploads []formUpload
	for _, c := range types.Categories {
		prefix := c.FormPrefix()
		if fh := first(prefix + "-image"); fh != nil && !skip(prefix) {
			uploads = append(uploads, formUpload{prefix: prefix, category: c, index: -1, file: fh})
		}
	}

	var indexed []formUpload
	for field := range form.File {
		m := indexedImageField.FindStringSubmatch(field)
		if m == nil {
			continue
		}
		c := types.Category(m[1])
		if !c.Repeatable() {
			continue
		}
		index, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		prefix := m[1] + "-" + m[2]
		if skip(prefix) {
			continue
		}
		indexed = append(indexed, formUpload{prefix: prefix, category: c, index: index, file: first(field)})
	}
	slices.SortFunc(indexed, func(a, b formUpload) int {
		if n := strings.Compare(string(a.category), string(b.category)); n != 0 {
			return n
		}
		return cmp.Compare(a.index, b.index)
	})
	return append(uploads, indexed...)
}

// Submit handles the plain form submission: it saves the product fields,
// stores files that were not uploaded in the background and, when
// submit_product is present and nothing is missing, completes the submission.
func (ctrl *ProductController) Submit(c *gin.Context) {
	pid, ok := productID(c)
	if !ok {
		c.JSON(http.StatusNotFound, types.SubmitResponse{Error: "Product not found"})
		return
	}
	ctrl.limitBody(c)
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		if isTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, types.SubmitResponse{ProductID: pid, Error: "Request too large"})
			return
		}
		c.JSON(http.StatusBadRequest, types.SubmitResponse{ProductID: pid, Error: "Invalid form data"})
		return
	}
	if c.Request.MultipartForm != nil {
		defer c.Request.MultipartForm.RemoveAll()
	}
	values := c.Request.PostForm
	isSubmit := values.Has("submit_product")

	ctx := c.Request.Context()
	input := formInput(values)
	if _, err := ctrl.repo.UpdateProduct(ctx, pid, func(p *types.Product) error {
		input.Apply(p)
		return nil
	}); err != nil {
		if errors.Is(err, models.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, types.SubmitResponse{Error: "Product not found"})
			return
		}
		tool.DefaultLogger.Errorf("[Submit] Failed to update product %d: %v", pid, err)
		c.JSON(http.StatusInternalServerError, types.SubmitResponse{ProductID: pid, Error: "Failed to save product"})
		return
	}

	uploads := collectUploads(c.Request.MultipartForm)
	var stored atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ctrl.saveLimit)
	for _, u := range uploads {
		g.Go(func() error {
			_, err := ctrl.storeImage(gctx, pid, u.category, u.file, values.Get(u.prefix+"-barcode_number"), values.Get(u.prefix+"-notes"))
			if err != nil {
				return err
			}
			stored.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		tool.DefaultLogger.Errorf("[Submit] Product %d: %v", pid, err)
		c.JSON(http.StatusInternalServerError, types.SubmitResponse{ProductID: pid, Stored: int(stored.Load()), Error: err.Error()})
		return
	}

	p, err := ctrl.repo.GetProduct(ctx, pid)
	if err != nil {
		tool.DefaultLogger.Errorf("[Submit] Failed to reload product %d: %v", pid, err)
		c.JSON(http.StatusInternalServerError, types.SubmitResponse{ProductID: pid, Error: "Failed to load product"})
		return
	}
	resp := types.SubmitResponse{
		Success:            true,
		ProductID:          pid,
		SubmissionComplete: p.SubmissionComplete,
		Stored:             int(stored.Load()),
	}
	if isSubmit {
		if errs := models.ValidationErrors(p); len(errs) > 0 {
			resp.Success = false
			resp.Errors = errs
			resp.Error = "Submission incomplete"
			c.JSON(http.StatusOK, resp)
			ctrl.notifier.ProductUpdated(p, false)
			return
		}
		p, err = ctrl.repo.UpdateProduct(ctx, pid, func(p *types.Product) error {
			p.SubmissionComplete = true
			return nil
		})
		if err != nil {
			tool.DefaultLogger.Errorf("[Submit] Failed to complete product %d: %v", pid, err)
			c.JSON(http.StatusInternalServerError, types.SubmitResponse{ProductID: pid, Error: "Failed to complete submission"})
			return
		}
		resp.SubmissionComplete = true
		tool.DefaultLogger.Infof("[Submit] Product %d submission completed", pid)
	}
	ctrl.notifier.ProductUpdated(p, resp.SubmissionComplete)
	c.JSON(http.StatusOK, resp)
}
