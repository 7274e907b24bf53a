package tool

import "github.com/gin-gonic/gin"

func FastReturnError(msg string) gin.H {
	return gin.H{
		"error": msg,
	}
}

// FastReturnUploadError is the failure body of the upload and delete contracts.
func FastReturnUploadError(msg string) gin.H {
	return gin.H{
		"success": false,
		"error":   msg,
	}
}

// FastReturnInvalid is the failure body of the validation contract.
func FastReturnInvalid(errs ...string) gin.H {
	return gin.H{
		"valid":  false,
		"errors": errs,
	}
}
