package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nisum/oppenheimer/internal/transport/http/middleware"
)

// SessionHandler returns the identity behind an authenticated request.
type SessionHandler struct{}

func NewSessionHandler() *SessionHandler {
	return &SessionHandler{}
}

// RegisterRoutes binds session endpoints behind auth.
func (h *SessionHandler) RegisterRoutes(r gin.IRoutes, auth gin.HandlerFunc) {
	r.GET("/session", auth, h.Current)
}

// Current echoes the verified claims. Must run after middleware.RequireBearer.
// @Summary Current session
// @Tags Users
// @Security Bearer
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Success 200 {object} SessionResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/users/session [get]
func (h *SessionHandler) Current(c *gin.Context) {
	claims, ok := middleware.TokenClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "authentication required"})
		return
	}

	resp := SessionResponse{
		Subject:  claims.Subject,
		Name:     claims.Name,
		Issuer:   claims.Issuer,
		Audience: claims.Audience,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.UTC()
	}
	c.JSON(http.StatusOK, resp)
}
