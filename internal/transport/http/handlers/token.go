package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nisum/oppenheimer/internal/usecase"
)

// TokenHandler exposes token introspection.
type TokenHandler struct {
	tokens *usecase.TokenService
}

func NewTokenHandler(tokens *usecase.TokenService) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

// RegisterRoutes binds token endpoints.
func (h *TokenHandler) RegisterRoutes(r gin.IRoutes) {
	r.POST("/token/introspect", h.Introspect)
}

// Introspect reports whether a token is active. Inactive tokens are a 200
// with a reason, not an error.
// @Summary Introspect a token
// @Tags Tokens
// @Accept json
// @Produce json
// @Param request body TokenIntrospectRequest true "Token to inspect"
// @Success 200 {object} TokenIntrospectResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/users/token/introspect [post]
func (h *TokenHandler) Introspect(c *gin.Context) {
	var req TokenIntrospectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid introspection payload"})
		return
	}

	result, err := h.tokens.Introspect(c.Request.Context(), req.Token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "failed to introspect token"})
		return
	}

	c.JSON(http.StatusOK, TokenIntrospectResponse{
		Active: result.Active,
		Reason: result.Reason,
		Claims: result.Claims,
	})
}
