package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/TNEM22/synera-app-backend/internal/apperror"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

const (
	internalErrorMessage = "Some error occurred at server side."
	tokenErrorMessage    = "Not able to verify the token, please login again."
)

// translate maps any error to a status and a message that is safe to show.
func translate(err error) (int, string) {
	var appErr *apperror.Error
	switch {
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenInvalidClaims),
		errors.Is(err, jwt.ErrTokenUnverifiable), errors.Is(err, jwt.ErrTokenNotValidYet):
		return http.StatusUnauthorized, tokenErrorMessage
	case errors.As(err, &appErr):
		if appErr.Kind == apperror.KindInternal {
			return http.StatusInternalServerError, internalErrorMessage
		}
		return appErr.Kind.HTTPStatus(), appErr.Message
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, "Resource not found"
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return http.StatusConflict, "Already registered."
	default:
		return http.StatusInternalServerError, internalErrorMessage
	}
}

// ErrorHandler writes the error envelope for the last error a handler
// recorded with c.Error. Internal details are logged, never returned.
func ErrorHandler(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		status, message := translate(err)

		if status >= http.StatusInternalServerError {
			logger.ErrorContext(c.Request.Context(), "request failed",
				"method", c.Request.Method,
				"path", c.FullPath(),
				"request_id", c.GetString(RequestIDKey),
				"error", err,
			)
		}

		if c.Writer.Written() {
			return
		}
		c.JSON(status, gin.H{
			"status":  "error",
			"message": message,
		})
	}
}
