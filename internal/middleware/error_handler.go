package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "collab_workspace/pkg/errors"
	"collab_workspace/pkg/logger"
)

// ErrorHandler переводит ошибки, накопленные обработчиками через c.Error,
// в единый JSON-ответ. Серверные ошибки дополнительно логируются.
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		statusCode := apperrors.HTTPStatusFromError(err)
		if statusCode >= http.StatusInternalServerError {
			log.Error("Request failed",
				"error", err,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
			)
		}

		c.JSON(statusCode, gin.H{
			"error": err.Error(),
		})
	}
}
