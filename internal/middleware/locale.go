package middleware

import (
	"github.com/gin-gonic/gin"
)

// LanguageMatcher picks a supported language from candidate tags.
type LanguageMatcher interface {
	Match(candidates ...string) string
}

// Locale resolves the request language from the lang query parameter, the
// lang cookie, then Accept-Language, and stores it under "lang".
func Locale(matcher LanguageMatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, _ := c.Cookie("lang")
		lang := matcher.Match(c.Query("lang"), cookie, c.GetHeader("Accept-Language"))
		c.Set("lang", lang)
		c.Header("Content-Language", lang)
		c.Next()
	}
}
