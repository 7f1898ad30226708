package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/kasuganosora/teamlink/server/apperr"
	"go.uber.org/zap"
)

// ErrorHandler renders the last error attached with c.Error as JSON:
// apperr kinds map to their status code, binding errors to 400 and
// anything else to 500.
func ErrorHandler(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		var validationErr validator.ValidationErrors
		if errors.As(err, &validationErr) {
			messages := make([]string, 0, len(validationErr))
			for _, fe := range validationErr {
				messages = append(messages, fe.Error())
			}
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "validation",
				"details": messages,
			})
			return
		}
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "validation",
				"message": "malformed request body",
			})
			return
		}

		kind := apperr.KindOf(err)
		if kind == apperr.Internal {
			log.Error("request failed",
				zap.String("path", c.Request.URL.Path),
				zap.String("trace_id", GetTraceID(c)),
				zap.Error(err))
		}
		c.AbortWithStatusJSON(kind.HTTPStatus(), gin.H{
			"error":   kind.String(),
			"message": apperr.Message(err),
		})
	}
}
