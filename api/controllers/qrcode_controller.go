package controllers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/moyoez/productshot/tool"
)

const (
	defaultQRSize = 256
	maxQRSize     = 512
)

// submissionURL is where a phone continues the product's submission.
func (ctrl *ProductController) submissionURL(c *gin.Context, pid int64) string {
	base := ctrl.publicURL
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}
	return fmt.Sprintf("%s/products/submit/%d/", base, pid)
}

// QRCode returns a PNG QR code of the product's submission URL.
// GET ?size=200x200 or ?size=200
func (ctrl *ProductController) QRCode(c *gin.Context) {
	pid, ok := productID(c)
	if !ok {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Product not found"))
		return
	}
	if _, err := ctrl.repo.GetProduct(c.Request.Context(), pid); err != nil {
		c.JSON(http.StatusNotFound, tool.FastReturnError("Product not found"))
		return
	}

	size := parseSize(c.Query("size"))
	if size <= 0 {
		size = defaultQRSize
	}
	if size > maxQRSize {
		size = maxQRSize
	}

	png, err := qrcode.Encode(ctrl.submissionURL(c, pid), qrcode.Medium, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, tool.FastReturnError("Failed to encode QR code: "+err.Error()))
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// parseSize parses size from "200x200" or "200" and returns the pixel dimension.
func parseSize(s string) int {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "x"); idx > 0 {
		s = strings.TrimSpace(s[:idx])
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
