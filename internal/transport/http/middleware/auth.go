package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nisum/oppenheimer/internal/infra/security"
	"github.com/nisum/oppenheimer/internal/usecase"
)

const claimsKey = "token_claims"

// ErrorResponse mirrors the handlers' error body.
type ErrorResponse struct {
	Message string `json:"message"`
}

// RequireBearer verifies the bearer token and stores its claims on the context.
func RequireBearer(tokens *usecase.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Message: "missing authorization header"})
			return
		}

		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Message: "invalid authorization format: expected 'Bearer <token>'"})
			return
		}

		claims, err := tokens.Authenticate(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			switch {
			case errors.Is(err, security.ErrTokenExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Message: "token expired"})
			case errors.Is(err, security.ErrEmptyToken),
				errors.Is(err, security.ErrBadSignature),
				errors.Is(err, security.ErrMalformedToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Message: "invalid token"})
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Message: "authentication failed"})
			}
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// TokenClaims returns the claims stored by RequireBearer.
func TokenClaims(c *gin.Context) (*security.TokenClaims, bool) {
	value, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*security.TokenClaims)
	return claims, ok
}
