package middleware

import (
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/pkg/auth"
)

const (
	ContextClaims = "claims"
	ContextWallet = "wallet"
)

type AuthMiddleware struct {
	jwt auth.JWTService
}

func NewAuthMiddleware(jwt auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// Authenticate verifies the bearer token and stores the claims and the
// wallet address in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			Abort(c, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			Abort(c, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		claims, err := m.jwt.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			Abort(c, http.StatusUnauthorized, "invalid token")
			return
		}

		c.Set(ContextClaims, claims)
		c.Set(ContextWallet, claims.Wallet())
		c.Next()
	}
}

// RequireRole lets the request through only when the session role is one
// of roles. It must run after Authenticate.
func (m *AuthMiddleware) RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			Abort(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}
		Abort(c, http.StatusForbidden, "role "+string(claims.Role)+" may not access this resource")
	}
}

func Claims(c *gin.Context) (*model.Claims, bool) {
	v, ok := c.Get(ContextClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*model.Claims)
	return claims, ok
}

// Wallet returns the signed-in wallet address.
func Wallet(c *gin.Context) common.Address {
	if claims, ok := Claims(c); ok {
		return claims.Wallet()
	}
	return common.Address{}
}
