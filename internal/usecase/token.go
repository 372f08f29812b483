package usecase

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nisum/oppenheimer/internal/core/port"
	"github.com/nisum/oppenheimer/internal/infra/logger"
	"github.com/nisum/oppenheimer/internal/infra/security"
)

// Token verification results reported to AuthMetrics and introspection callers.
const (
	TokenResultValid     = "valid"
	TokenResultEmpty     = "empty"
	TokenResultSignature = "bad_signature"
	TokenResultExpired   = "expired"
	TokenResultMalformed = "malformed"
	TokenResultError     = "error"
)

// TokenVerifier validates and decodes signed tokens.
type TokenVerifier interface {
	Verify(token string, now time.Time) (*security.TokenClaims, error)
	Decode(token string) (map[string]any, error)
}

// TokenService authenticates bearer tokens presented to the API.
type TokenService struct {
	verifier TokenVerifier
	metrics  port.AuthMetrics
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewTokenService constructs a TokenService instance.
func NewTokenService(verifier TokenVerifier, logger *zap.Logger) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{
		verifier: verifier,
		metrics:  port.NopAuthMetrics{},
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *TokenService) WithClock(clock func() time.Time) *TokenService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithMetrics sets the verification result recorder.
func (s *TokenService) WithMetrics(metrics port.AuthMetrics) *TokenService {
	if metrics != nil {
		s.metrics = metrics
	}
	return s
}

// Authenticate verifies token against the service clock and returns its claims.
// Failures keep the classified security sentinel in the error chain.
func (s *TokenService) Authenticate(ctx context.Context, token string) (*security.TokenClaims, error) {
	ctx, span := s.tracer.Start(ctx, "TokenService.Authenticate")
	defer span.End()

	claims, err := s.verifier.Verify(token, s.now())
	result := classifyTokenError(err)
	s.metrics.ObserveTokenVerification(result)
	span.SetAttributes(attribute.String("token.result", result))

	if err != nil {
		span.SetStatus(codes.Error, result)
		log := s.logger.With(logger.ContextFields(ctx)...)
		switch result {
		case TokenResultSignature:
			log.Warn("token signature verification failed")
		case TokenResultExpired:
			log.Info("token expired")
		case TokenResultEmpty:
			log.Debug("token missing")
		case TokenResultMalformed:
			log.Warn("token malformed", zap.Error(err))
		default:
			log.Error("token verification failed", zap.Error(err))
		}
		return nil, err
	}

	return claims, nil
}

// TokenIntrospectionResult reports whether a token is currently usable.
type TokenIntrospectionResult struct {
	Active bool
	// Reason is the verification result; "valid" for active tokens.
	Reason string
	// Claims holds the verified claims for active tokens and the unverified
	// payload for inactive tokens that could still be decoded.
	Claims map[string]any
}

// Introspect reports the state of token without failing on inactive tokens.
func (s *TokenService) Introspect(ctx context.Context, token string) (TokenIntrospectionResult, error) {
	claims, err := s.Authenticate(ctx, token)
	if err == nil {
		return TokenIntrospectionResult{Active: true, Reason: TokenResultValid, Claims: claimsToMap(claims)}, nil
	}

	result := classifyTokenError(err)
	if result == TokenResultError {
		return TokenIntrospectionResult{}, err
	}

	out := TokenIntrospectionResult{Reason: result}
	if result != TokenResultEmpty && result != TokenResultMalformed {
		if decoded, decodeErr := s.verifier.Decode(token); decodeErr == nil {
			out.Claims = decoded
		}
	}
	return out, nil
}

func classifyTokenError(err error) string {
	switch {
	case err == nil:
		return TokenResultValid
	case errors.Is(err, security.ErrEmptyToken):
		return TokenResultEmpty
	case errors.Is(err, security.ErrBadSignature):
		return TokenResultSignature
	case errors.Is(err, security.ErrTokenExpired):
		return TokenResultExpired
	case errors.Is(err, security.ErrMalformedToken):
		return TokenResultMalformed
	default:
		return TokenResultError
	}
}

func claimsToMap(claims *security.TokenClaims) map[string]any {
	if claims == nil {
		return nil
	}
	out := map[string]any{
		"sub":  claims.Subject,
		"name": claims.Name,
	}
	if claims.Issuer != "" {
		out["iss"] = claims.Issuer
	}
	if len(claims.Audience) > 0 {
		out["aud"] = []string(claims.Audience)
	}
	if claims.ExpiresAt != nil {
		out["exp"] = claims.ExpiresAt.Unix()
	}
	return out
}
