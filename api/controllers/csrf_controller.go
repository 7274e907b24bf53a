package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/moyoez/productshot/api/models"
	"github.com/moyoez/productshot/types"
)

// IssueCSRFToken hands out a token for the X-CSRFToken header.
func IssueCSRFToken(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, types.CSRFResponse{Token: models.IssueCSRFToken()})
}
