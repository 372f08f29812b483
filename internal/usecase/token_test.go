package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/nisum/oppenheimer/internal/infra/security"
)

func newTokenFixture(t *testing.T, at time.Time) (*security.TokenService, *TokenService, *recordingMetrics) {
	t.Helper()
	issuer, err := security.NewTokenService(security.TokenConfig{
		SigningKey: []byte("token-usecase-secret"),
		Validity:   10 * time.Minute,
		Issuer:     "nisum",
		Audience:   "test",
	})
	if err != nil {
		t.Fatalf("NewTokenService returned error: %v", err)
	}

	metrics := &recordingMetrics{}
	service := NewTokenService(issuer, zaptest.NewLogger(t)).
		WithClock(func() time.Time { return at }).
		WithMetrics(metrics)
	return issuer, service, metrics
}

func TestAuthenticateValidToken(t *testing.T) {
	issuer, service, metrics := newTokenFixture(t, registrationNow.Add(time.Minute))

	token, err := issuer.Issue("a@b.com", "A", registrationNow)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	claims, err := service.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if claims.Subject != "a@b.com" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
	if len(metrics.verifications) != 1 || metrics.verifications[0] != TokenResultValid {
		t.Fatalf("unexpected metrics %v", metrics.verifications)
	}
}

func TestAuthenticateClassifiesFailures(t *testing.T) {
	issuer, service, metrics := newTokenFixture(t, registrationNow.Add(10*time.Minute))

	token, err := issuer.Issue("a@b.com", "A", registrationNow)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	cases := []struct {
		token  string
		want   error
		result string
	}{
		{"", security.ErrEmptyToken, TokenResultEmpty},
		{token, security.ErrTokenExpired, TokenResultExpired},
		{tampered, security.ErrBadSignature, TokenResultSignature},
		{"garbage", security.ErrMalformedToken, TokenResultMalformed},
	}

	for i, tc := range cases {
		if _, err := service.Authenticate(context.Background(), tc.token); !errors.Is(err, tc.want) {
			t.Fatalf("case %d: expected %v, got %v", i, tc.want, err)
		}
		if metrics.verifications[i] != tc.result {
			t.Fatalf("case %d: expected result %s, got %s", i, tc.result, metrics.verifications[i])
		}
	}
}

func TestIntrospect(t *testing.T) {
	issuer, service, _ := newTokenFixture(t, registrationNow.Add(time.Minute))

	token, err := issuer.Issue("a@b.com", "A", registrationNow)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	active, err := service.Introspect(context.Background(), token)
	if err != nil {
		t.Fatalf("Introspect returned error: %v", err)
	}
	if !active.Active || active.Reason != TokenResultValid || active.Claims["sub"] != "a@b.com" {
		t.Fatalf("unexpected active result %+v", active)
	}

	expired, err := issuer.Issue("a@b.com", "A", registrationNow.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	inactive, err := service.Introspect(context.Background(), expired)
	if err != nil {
		t.Fatalf("Introspect returned error: %v", err)
	}
	if inactive.Active || inactive.Reason != TokenResultExpired {
		t.Fatalf("unexpected inactive result %+v", inactive)
	}
	if inactive.Claims["name"] != "A" {
		t.Fatalf("expected decoded claims for expired token, got %v", inactive.Claims)
	}

	malformed, err := service.Introspect(context.Background(), "garbage")
	if err != nil {
		t.Fatalf("Introspect returned error: %v", err)
	}
	if malformed.Active || malformed.Reason != TokenResultMalformed || malformed.Claims != nil {
		t.Fatalf("unexpected malformed result %+v", malformed)
	}
}
