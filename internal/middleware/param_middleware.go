package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ExtractUintParam проверяет числовой параметр маршрута и кладёт его в
// контекст Gin под ключом contextKey. Ноль и нечисловые значения обрываются
// кодом 400 — до обработчика такой запрос не доходит, обработчики читают
// параметр через c.MustGet без повторных проверок.
func ExtractUintParam(paramName, contextKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Param(paramName)
		value, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || value == 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":      "Invalid " + paramName,
				"error_type": "invalid_param",
			})
			return
		}
		c.Set(contextKey, uint(value))
		c.Next()
	}
}
