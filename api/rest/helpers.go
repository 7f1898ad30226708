package rest

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/teamlink/server/apperr"
)

// paramID parses a positive integer path parameter.
func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		_ = c.Error(apperr.Validationf("invalid %s", name))
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter.
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		_ = c.Error(apperr.Validationf("invalid %s", name))
		return 0, false
	}
	return v, true
}

// bind decodes the JSON body; failures go to ErrorHandler.
func bind(c *gin.Context, v interface{}) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		_ = c.Error(err)
		return false
	}
	return true
}
