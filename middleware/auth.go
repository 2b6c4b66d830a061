package middleware

import (
	"strings"

	"rescuedispatch/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	AuthModeJWT    = "jwt"
	AuthModeHeader = "header"

	// UserIDHeader carries the caller identity when an upstream gateway has
	// already authenticated the request.
	UserIDHeader = "X-User-Id"
)

// AuthMiddleware resolves the caller identity. Credentials are issued
// elsewhere; this service only checks them.
type AuthMiddleware struct {
	jwtService *utils.JWTService
	mode       string
}

func NewAuthMiddleware(jwtService *utils.JWTService, mode string) *AuthMiddleware {
	if mode != AuthModeHeader {
		mode = AuthModeJWT
	}
	return &AuthMiddleware{
		jwtService: jwtService,
		mode:       mode,
	}
}

// RequireAuth sets "userID" (and "userRole" for tokens) or aborts with 401.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if am.mode == AuthModeHeader {
			userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
			if userID == "" {
				utils.UnauthorizedResponse(c, "Caller identity header required")
				c.Abort()
				return
			}
			c.Set("userID", userID)
			c.Next()
			return
		}

		token := am.extractToken(c)
		if token == "" {
			utils.UnauthorizedResponse(c, "Authentication token required")
			c.Abort()
			return
		}

		claims, err := am.jwtService.ValidateToken(token)
		if err != nil {
			logrus.WithError(err).Debug("Invalid token")
			utils.UnauthorizedResponse(c, "Invalid authentication token")
			c.Abort()
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("userRole", claims.Role)
		c.Next()
	}
}

// extractToken reads a bearer token, falling back to the "token" query
// parameter used by websocket clients.
func (am *AuthMiddleware) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return c.Query("token")
}
