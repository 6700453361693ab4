package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/univora/sharebox-backend/internal/auth"
	"github.com/univora/sharebox-backend/internal/pkg/logger"
	userbiz "github.com/univora/sharebox-backend/internal/user/biz"
	"go.uber.org/zap"
)

// AdminAuth verifies a bearer token and requires the token's identity to
// be a configured administrator.
func AdminAuth(jwtSecret, issuer string, users *userbiz.UserUseCase, log *logger.Logger) gin.HandlerFunc {
	jwtManager := auth.NewJWTManager(jwtSecret, issuer)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			c.Abort()
			return
		}

		token, err := auth.ExtractTokenFromHeader(authHeader)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := jwtManager.VerifyToken(token)
		if err != nil {
			log.Warn("invalid admin token",
				zap.Error(err),
				zap.String("ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		if !users.IsAdmin(claims.UserID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "administrator access required"})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Next()
	}
}
