package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// reasoner is implemented by errors that carry per-rule explanations.
type reasoner interface {
	Reasons() []string
}

// RespondWithMappedError resolves err against known cases or falls back to a
// generic response. Reasons are attached when err carries them.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			resp := ErrorResponse{Message: cs.Message}
			var r reasoner
			if errors.As(err, &r) {
				resp.Reasons = r.Reasons()
			}
			c.JSON(cs.Status, resp)
			return
		}
	}

	c.JSON(fallbackStatus, ErrorResponse{Message: fallbackMessage})
}
