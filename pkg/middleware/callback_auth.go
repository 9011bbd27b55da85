package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CallbackVerifier validates a bearer token presented on a result callback
// and returns the document id it was issued for.
type CallbackVerifier interface {
	Verify(raw string) (int64, error)
}

// CallbackAuthMiddleware rejects result callbacks that do not carry a valid
// bearer token issued for the document in the :id path parameter.
func CallbackAuthMiddleware(ver CallbackVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		var token string
		if n, _ := fmt.Sscanf(auth, "Bearer %s", &token); n != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}
		docID, err := ver.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "details": err.Error()})
			return
		}
		if fmt.Sprint(docID) != c.Param("id") {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token not issued for this document"})
			return
		}
		c.Next()
	}
}
