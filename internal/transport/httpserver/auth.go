// Bearer token authentication, modeled on
// leanlp-BTC-coinjoin/internal/api/auth.go's AuthMiddleware but comparing
// against a bcrypt hash instead of a plaintext constant-time equal, since
// operators configure this server with a hash at rest rather than a
// cleartext secret.
package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/moya-app/overlap-psi/internal/transport/wire"
)

// HashToken bcrypt-hashes a plaintext bearer token for storage in server
// configuration (the value cmd/overlap-server reads as auth_token_hash).
func HashToken(token string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	return string(b), err
}

// BearerAuth returns a gin middleware requiring "Authorization: Bearer
// <token>" where token bcrypt-verifies against tokenHash.
func BearerAuth(tokenHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, wire.ErrorResponse{Error: "missing or malformed Authorization header"})
			c.Abort()
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(parts[1])); err != nil {
			c.JSON(http.StatusForbidden, wire.ErrorResponse{Error: "invalid token"})
			c.Abort()
			return
		}

		c.Next()
	}
}
