package tool

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/moyoez/productshot/types"
)

// Endpoint URLs may carry a {pk} placeholder, substituted with the product id.
func expandEndpoint(configured, base, route string, productID int64) string {
	pk := strconv.FormatInt(productID, 10)
	if configured != "" {
		return strings.ReplaceAll(configured, "{pk}", pk)
	}
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/products/submit/%s/%s", strings.TrimRight(base, "/"), pk, route)
}

// BuildUploadURL builds the ajax-upload URL for a product.
func BuildUploadURL(cfg types.ClientConfig, productID int64) string {
	return expandEndpoint(cfg.UploadURL, cfg.BaseURL, "ajax-upload/", productID)
}

// BuildDeleteURL builds the delete-image URL for a product.
func BuildDeleteURL(cfg types.ClientConfig, productID int64) string {
	return expandEndpoint(cfg.DeleteURL, cfg.BaseURL, "delete-image/", productID)
}

// BuildValidateURL builds the validation URL. An empty result means validation is not configured.
func BuildValidateURL(cfg types.ClientConfig, productID int64) string {
	return expandEndpoint(cfg.ValidateURL, cfg.BaseURL, "validate/", productID)
}

// BuildSubmitURL builds the plain form submission URL.
func BuildSubmitURL(cfg types.ClientConfig, productID int64) string {
	return expandEndpoint(cfg.SubmitURL, cfg.BaseURL, "", productID)
}

// BuildCSRFURL builds the token issuing URL.
func BuildCSRFURL(cfg types.ClientConfig) string {
	if cfg.BaseURL == "" {
		return ""
	}
	return strings.TrimRight(cfg.BaseURL, "/") + "/csrf"
}
