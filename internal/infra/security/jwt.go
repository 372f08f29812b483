package security

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrSigningKeyMissing indicates the service was configured without an HMAC secret.
	ErrSigningKeyMissing = errors.New("jwt: signing key missing")
	// ErrInvalidSubject indicates an empty subject was supplied for issuance.
	ErrInvalidSubject = errors.New("jwt: subject is required")

	// ErrEmptyToken indicates no token was presented.
	ErrEmptyToken = errors.New("jwt: empty token")
	// ErrBadSignature indicates the signature does not match the configured key.
	ErrBadSignature = errors.New("jwt: signature mismatch")
	// ErrTokenExpired indicates the token expiry is at or before the verification instant.
	ErrTokenExpired = errors.New("jwt: token expired")
	// ErrMalformedToken indicates a structurally invalid token or unexpected claims.
	ErrMalformedToken = errors.New("jwt: malformed token")
)

// VerificationError carries the classified reason a token was rejected.
type VerificationError struct {
	Reason error
	cause  error
}

func (e *VerificationError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%v: %v", e.Reason, e.cause)
	}
	return e.Reason.Error()
}

// Unwrap exposes the reason sentinel to errors.Is.
func (e *VerificationError) Unwrap() error {
	return e.Reason
}

func rejectToken(reason, cause error) error {
	return &VerificationError{Reason: reason, cause: cause}
}

// TokenConfig configures HS256 issuance and verification.
type TokenConfig struct {
	SigningKey []byte
	Validity   time.Duration
	Issuer     string
	Audience   string
}

// TokenClaims are the claims carried by an issued token.
type TokenClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 tokens bound to a single shared secret.
type TokenService struct {
	key      []byte
	validity time.Duration
	issuer   string
	audience string
}

// NewTokenService validates cfg and returns an immutable token service.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, ErrSigningKeyMissing
	}
	if cfg.Validity < 0 {
		return nil, fmt.Errorf("jwt: validity must not be negative")
	}

	key := make([]byte, len(cfg.SigningKey))
	copy(key, cfg.SigningKey)

	return &TokenService{
		key:      key,
		validity: cfg.Validity,
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
	}, nil
}

// Validity returns the configured token lifetime.
func (s *TokenService) Validity() time.Duration {
	return s.validity
}

// Issue signs a token for subject carrying name, expiring validity after now.
// The output is deterministic for identical inputs.
func (s *TokenService) Issue(subject, name string, now time.Time) (string, error) {
	if s == nil || len(s.key) == 0 {
		return "", ErrSigningKeyMissing
	}
	if strings.TrimSpace(subject) == "" {
		return "", ErrInvalidSubject
	}

	issuedAt := now.UTC().Truncate(time.Second)
	claims := TokenClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.validity)),
		},
	}
	if s.issuer != "" {
		claims.Issuer = s.issuer
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks structure, signature, expiry and the issuer/audience binding,
// in that order. Failures are returned as *VerificationError.
func (s *TokenService) Verify(token string, now time.Time) (*TokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, rejectToken(ErrEmptyToken, nil)
	}
	if s == nil || len(s.key) == 0 {
		return nil, ErrSigningKeyMissing
	}

	claims := &TokenClaims{}
	parser := jwt.NewParser(
		jwt.WithoutClaimsValidation(),
		jwt.WithStrictDecoding(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	parsed, err := parser.ParseWithClaims(token, claims, s.keyFunc)
	if err != nil {
		return nil, classifyParseError(token, parsed, err)
	}

	if claims.ExpiresAt == nil {
		return nil, rejectToken(ErrMalformedToken, errors.New("missing exp claim"))
	}
	if !now.UTC().Truncate(time.Second).Before(claims.ExpiresAt.Time) {
		return nil, rejectToken(ErrTokenExpired, nil)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return nil, rejectToken(ErrMalformedToken, errors.New("missing sub claim"))
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, rejectToken(ErrMalformedToken, errors.New("unexpected issuer"))
	}
	if s.audience != "" && !containsAudience(claims.Audience, s.audience) {
		return nil, rejectToken(ErrMalformedToken, errors.New("unexpected audience"))
	}

	return claims, nil
}

// Decode returns the token payload without checking signature or expiry.
// Callers must not treat the result as authenticated.
func (s *TokenService) Decode(token string) (map[string]any, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, rejectToken(ErrEmptyToken, nil)
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, rejectToken(ErrMalformedToken, err)
	}
	return claims, nil
}

// classifyParseError maps parser failures onto the verification reasons. A
// signature segment that is not canonical base64url is a bad signature as long
// as the header and payload decode, so any edit to it is rejected as such.
func classifyParseError(token string, parsed *jwt.Token, err error) error {
	if parsed != nil && parsed.Method != nil && parsed.Method != jwt.SigningMethodHS256 {
		return rejectToken(ErrMalformedToken, err)
	}
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return rejectToken(ErrBadSignature, err)
	}

	parts := strings.Split(token, ".")
	if len(parts) == 3 && decodesStrictly(parts[0]) && decodesStrictly(parts[1]) && !decodesStrictly(parts[2]) {
		return rejectToken(ErrBadSignature, err)
	}
	return rejectToken(ErrMalformedToken, err)
}

func decodesStrictly(segment string) bool {
	_, err := base64.RawURLEncoding.Strict().DecodeString(segment)
	return err == nil
}

func (s *TokenService) keyFunc(token *jwt.Token) (any, error) {
	if token.Method != jwt.SigningMethodHS256 {
		return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
	}
	return s.key, nil
}

func containsAudience(audience jwt.ClaimStrings, expected string) bool {
	for _, aud := range audience {
		if aud == expected {
			return true
		}
	}
	return false
}
