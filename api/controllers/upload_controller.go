package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/productshot/api/models"
	"github.com/moyoez/productshot/tool"
	"github.com/moyoez/productshot/types"
)

// AjaxUpload stores a single background upload. Contract errors are reported
// as success:false bodies with status 200.
func (ctrl *ProductController) AjaxUpload(c *gin.Context) {
	ctrl.limitBody(c)

	fh, err := c.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, tool.FastReturnUploadError("File too large"))
			return
		}
		c.JSON(http.StatusOK, tool.FastReturnUploadError("No file provided"))
		return
	}
	rawType := c.PostForm("image_type")
	if rawType == "" {
		c.JSON(http.StatusOK, tool.FastReturnUploadError("No image type specified"))
		return
	}

	pid, ok := productID(c)
	if !ok {
		c.JSON(http.StatusOK, tool.FastReturnUploadError("Product not found"))
		return
	}
	ctx := c.Request.Context()
	if _, err := ctrl.repo.GetProduct(ctx, pid); err != nil {
		if errors.Is(err, models.ErrProductNotFound) {
			c.JSON(http.StatusOK, tool.FastReturnUploadError("Product not found"))
			return
		}
		tool.DefaultLogger.Errorf("[Upload] Failed to load product %d: %v", pid, err)
		c.JSON(http.StatusOK, tool.FastReturnUploadError("Failed to load product"))
		return
	}

	category, err := types.ParseCategory(rawType)
	if err != nil {
		c.JSON(http.StatusOK, tool.FastReturnUploadError("Invalid image type"))
		return
	}

	img, err := ctrl.storeImage(ctx, pid, category, fh, c.PostForm("barcode_number"), c.PostForm("notes"))
	if err != nil {
		tool.DefaultLogger.Errorf("[Upload] Product %d: %v", pid, err)
		ctrl.notifier.UploadFailed(pid, category, err.Error())
		c.JSON(http.StatusOK, tool.FastReturnUploadError(err.Error()))
		return
	}
	c.JSON(http.StatusOK, types.UploadResponse{
		Success:   true,
		ImageID:   img.ID,
		ImageURL:  img.URL,
		ImageType: string(category),
	})
}

// DeleteImage removes an image record and its blob.
func (ctrl *ProductController) DeleteImage(c *gin.Context) {
	pid, ok := productID(c)
	if !ok {
		c.JSON(http.StatusOK, tool.FastReturnUploadError("Product not found"))
		return
	}
	imageID, err := strconv.ParseInt(c.PostForm("image_id"), 10, 64)
	if err != nil || imageID <= 0 {
		c.JSON(http.StatusOK, tool.FastReturnUploadError("Invalid image id"))
		return
	}
	category, err := types.ParseCategory(c.PostForm("image_type"))
	if err != nil {
		c.JSON(http.StatusOK, tool.FastReturnUploadError("Invalid image type"))
		return
	}

	ctx := c.Request.Context()
	img, err := ctrl.repo.DeleteImage(ctx, pid, imageID, category)
	switch {
	case errors.Is(err, models.ErrProductNotFound):
		c.JSON(http.StatusOK, tool.FastReturnUploadError("Product not found"))
		return
	case errors.Is(err, models.ErrImageNotFound):
		c.JSON(http.StatusOK, tool.FastReturnUploadError("Image not found"))
		return
	case err != nil:
		tool.DefaultLogger.Errorf("[Delete] Product %d image %d: %v", pid, imageID, err)
		c.JSON(http.StatusOK, tool.FastReturnUploadError("Failed to delete image"))
		return
	}

	if err := ctrl.store.Delete(ctx, img.Name); err != nil {
		tool.DefaultLogger.Warnf("[Delete] Record removed but blob %s remains: %v", img.Name, err)
	}
	ctrl.metrics.ImageDeleted(string(category))
	ctrl.notifier.ImageDeleted(pid, img)
	tool.DefaultLogger.Infof("[Delete] Removed %s image %d from product %d", category, imageID, pid)
	c.JSON(http.StatusOK, types.DeleteResponse{Success: true})
}

// Validate reports whether the product is ready for final submission.
func (ctrl *ProductController) Validate(c *gin.Context) {
	pid, ok := productID(c)
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnInvalid("Product not found"))
		return
	}
	p, err := ctrl.repo.GetProduct(c.Request.Context(), pid)
	if errors.Is(err, models.ErrProductNotFound) {
		c.JSON(http.StatusNotFound, tool.FastReturnInvalid("Product not found"))
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, tool.FastReturnInvalid(err.Error()))
		return
	}
	errs := models.ValidationErrors(p)
	c.JSON(http.StatusOK, gin.H{
		"valid":  len(errs) == 0,
		"errors": errs,
	})
}
