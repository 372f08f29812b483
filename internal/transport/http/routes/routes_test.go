package routes_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	_ "github.com/nisum/oppenheimer/gen/docs/swagger"
	"github.com/nisum/oppenheimer/internal/core/domain"
	"github.com/nisum/oppenheimer/internal/infra/config"
	"github.com/nisum/oppenheimer/internal/infra/security"
	redisrepo "github.com/nisum/oppenheimer/internal/repository/redis"
	"github.com/nisum/oppenheimer/internal/transport/http/middleware"
	httproutes "github.com/nisum/oppenheimer/internal/transport/http/routes"
	"github.com/nisum/oppenheimer/internal/usecase"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type healthFunc func(ctx context.Context) error

func (f healthFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type emptyIdentities struct{}

func (emptyIdentities) ExistsByEmail(context.Context, string) (bool, error) { return false, nil }

func (emptyIdentities) Save(_ context.Context, identity domain.Identity) (domain.Identity, error) {
	identity.CreatedAt = time.Now().UTC()
	identity.ModifiedAt = identity.CreatedAt
	return identity, nil
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.AppConfig{App: config.AppSettings{Env: "test"}}

	r := httproutes.Register(httproutes.Dependencies{
		Config: cfg,
		Logger: zaptest.NewLogger(t),
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
}

func TestReadyzReportsDependencies(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httproutes.Register(httproutes.Dependencies{
		Config:   &config.AppConfig{},
		Logger:   zaptest.NewLogger(t),
		Database: pingFunc(func(context.Context) error { return nil }),
		Cache:    healthFunc(func(context.Context) error { return errors.New("down") }),
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"redis":"unavailable"`) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	gin.SetMode(gin.TestMode)

	registry := prometheus.NewRegistry()
	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		t.Fatalf("NewHTTPMetrics: %v", err)
	}

	r := httproutes.Register(httproutes.Dependencies{
		Config:   &config.AppConfig{},
		Logger:   zaptest.NewLogger(t),
		Metrics:  metrics,
		Gatherer: registry,
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "oppenheimer_http_requests_total") {
		t.Fatalf("expected http counter in exposition, got %s", w.Body.String())
	}
}

func TestSwaggerDocumentServed(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := httproutes.Register(httproutes.Dependencies{
		Config: &config.AppConfig{},
		Logger: zaptest.NewLogger(t),
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs/doc.json", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "/api/users/token/introspect") {
		t.Fatalf("expected introspection path in document, got %s", w.Body.String())
	}
}

func TestRegisterIsRateLimitedPerClient(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{Memory: 8192, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2Hasher: %v", err)
	}
	issuer, err := security.NewTokenService(security.TokenConfig{
		SigningKey: []byte("0123456789abcdef0123456789abcdef"),
		Validity:   time.Hour,
	})
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	log := zaptest.NewLogger(t)
	registration := usecase.NewRegistrationService(
		emptyIdentities{},
		security.NewPasswordPolicy(security.DefaultPasswordPolicyConfig()),
		hasher,
		issuer,
		nil,
	).WithLogger(log)

	store := redisrepo.NewRateLimitRepository(client, redisrepo.SlidingWindowConfig{KeyPrefix: "test:rl"})

	cfg := &config.AppConfig{RateLimit: config.RateLimitSettings{
		Enabled:             true,
		WindowDuration:      time.Minute,
		RegisterMaxAttempts: 2,
	}}

	r := httproutes.Register(httproutes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: middleware.NewRateLimiter(store, log),
		Services:    httproutes.ServiceSet{Registration: registration},
	})

	body := `{"name":"Ana","email":"ana@example.com","password":"Hunter2@x"}`
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "192.0.2.10:4321"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	if codes[0] != http.StatusCreated || codes[1] != http.StatusCreated || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}
