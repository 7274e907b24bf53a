package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/productshot/api/models"
	"github.com/moyoez/productshot/tool"
)

const (
	CSRFHeader    = "X-CSRFToken"
	CSRFFormField = "csrfmiddlewaretoken"
)

// RequireCSRF rejects unsafe requests without a live token in the X-CSRFToken
// header or the csrfmiddlewaretoken form field. Disabled when enabled is false.
func RequireCSRF(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		token := c.GetHeader(CSRFHeader)
		if token == "" {
			token = c.PostForm(CSRFFormField)
		}
		if !models.IsValidCSRFToken(token) {
			tool.DefaultLogger.Debugf("[CSRF] Rejected %s %s from %s", c.Request.Method, c.Request.URL.Path, c.ClientIP())
			c.AbortWithStatusJSON(http.StatusForbidden, tool.FastReturnUploadError("CSRF verification failed"))
			return
		}
		c.Next()
	}
}
