// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/contract-engine/internal/i18n"
)

// I18nMiddleware picks the first supported language from Accept-Language.
func I18nMiddleware(defaultLang string) gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := defaultLang

		// Handle cases like "vi-VN,vi;q=0.9,en;q=0.8"
		for _, part := range strings.Split(c.GetHeader("Accept-Language"), ",") {
			tag := strings.TrimSpace(strings.Split(part, ";")[0])
			base := strings.ToLower(strings.SplitN(strings.ReplaceAll(tag, "_", "-"), "-", 2)[0])
			if base != "" && i18n.Supported(base) {
				lang = base
				break
			}
		}

		// Set language in context
		c.Set("lang", lang)
		c.Next()
	}
}
