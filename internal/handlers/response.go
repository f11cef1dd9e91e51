package handlers

import (
	"net/http"

	"github.com/TNEM22/synera-app-backend/internal/apperror"

	"github.com/gin-gonic/gin"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

func success(c *gin.Context, code int, data interface{}) {
	body := gin.H{"status": statusSuccess}
	if data != nil {
		body["data"] = data
	}
	c.JSON(code, body)
}

// bindJSON decodes the body, recording a validation error on failure.
func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.Error(apperror.Wrap(apperror.KindValidation, "Invalid request body.", err))
		return false
	}
	return true
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
