package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// TokenEndpointCORS sets the token endpoint's fixed CORS headers and
// answers OPTIONS preflight requests with 204, before any other
// handler runs. additionalAllowedHeaders extends the default
// authorization/content-type allow-list via
// token_endpoint_additional_allowed_headers.
func TokenEndpointCORS(additionalAllowedHeaders []string) gin.HandlerFunc {
	allowHeaders := "authorization,content-type"
	if len(additionalAllowedHeaders) > 0 {
		allowHeaders = allowHeaders + "," + strings.Join(additionalAllowedHeaders, ",")
	}

	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST")
		c.Header("Access-Control-Allow-Headers", allowHeaders)

		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		c.Next()
	}
}
