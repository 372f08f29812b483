package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/nisum/oppenheimer/internal/infra/security"
	"github.com/nisum/oppenheimer/internal/usecase"
)

var authNow = time.Date(2025, 10, 12, 10, 0, 0, 0, time.UTC)

func newAuthRouter(t *testing.T) (*gin.Engine, *security.TokenService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	issuer, err := security.NewTokenService(security.TokenConfig{
		SigningKey: []byte("0123456789abcdef0123456789abcdef"),
		Validity:   time.Hour,
		Issuer:     "nisum",
		Audience:   "test",
	})
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	tokens := usecase.NewTokenService(issuer, zaptest.NewLogger(t)).WithClock(func() time.Time { return authNow })

	router := gin.New()
	router.GET("/session", RequireBearer(tokens), func(c *gin.Context) {
		claims, ok := TokenClaims(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sub": claims.Subject})
	})
	return router, issuer
}

func TestRequireBearerAcceptsValidToken(t *testing.T) {
	router, issuer := newAuthRouter(t)

	token, err := issuer.Issue("juan@rodriguez.org", "Juan", authNow)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Header.Set("Authorization", "bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["sub"] != "juan@rodriguez.org" {
		t.Fatalf("unexpected subject %q", body["sub"])
	}
}

func TestRequireBearerRejections(t *testing.T) {
	router, issuer := newAuthRouter(t)

	expired, err := issuer.Issue("juan@rodriguez.org", "Juan", authNow.Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	tests := []struct {
		name    string
		header  string
		message string
	}{
		{name: "missing header", header: "", message: "missing authorization header"},
		{name: "wrong scheme", header: "Basic abc", message: "invalid authorization format: expected 'Bearer <token>'"},
		{name: "no token", header: "Bearer", message: "invalid authorization format: expected 'Bearer <token>'"},
		{name: "empty token", header: "Bearer  ", message: "invalid token"},
		{name: "garbage", header: "Bearer not-a-jwt", message: "invalid token"},
		{name: "expired", header: "Bearer " + expired, message: "token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/session", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}

			var body ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Message != tt.message {
				t.Fatalf("expected message %q, got %q", tt.message, body.Message)
			}
		})
	}
}
