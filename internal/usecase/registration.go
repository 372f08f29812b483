package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/nisum/oppenheimer/internal/core/domain"
	"github.com/nisum/oppenheimer/internal/core/port"
	"github.com/nisum/oppenheimer/internal/infra/logger"
	"github.com/nisum/oppenheimer/internal/repository"
)

// SummaryTimeLayout renders ISO-8601 local date-times without an offset.
const SummaryTimeLayout = "2006-01-02T15:04:05.999999999"

const tracerName = "github.com/nisum/oppenheimer/internal/usecase"

// Registration outcomes reported to AuthMetrics.
const (
	OutcomeRegistered     = "registered"
	OutcomeInvalidInput   = "invalid_input"
	OutcomeDuplicateEmail = "duplicate_email"
	OutcomeWeakPassword   = "weak_password"
	OutcomeHashingFailed  = "hashing_failed"
	OutcomeTokenFailed    = "token_failed"
	OutcomePersistFailed  = "persist_failed"
)

var (
	// ErrInvalidInput indicates a required registration field is missing.
	ErrInvalidInput = errors.New("invalid registration input")
	// ErrInvalidPhone indicates a phone entry could not be parsed.
	ErrInvalidPhone = errors.New("invalid phone")
	// ErrDuplicateEmail indicates the email is already bound to an identity.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrPasswordPolicyViolation indicates the password does not satisfy complexity requirements.
	ErrPasswordPolicyViolation = errors.New("password does not meet complexity requirements")
	// ErrCredentialHashing indicates the credential could not be derived.
	ErrCredentialHashing = errors.New("credential hashing failed")
	// ErrTokenIssuance indicates the access token could not be signed.
	ErrTokenIssuance = errors.New("token issuance failed")
)

// PasswordPolicyError lists every rule a rejected password violated.
type PasswordPolicyError struct {
	Violations []error
}

func (e *PasswordPolicyError) Error() string {
	reasons := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		reasons = append(reasons, v.Error())
	}
	return fmt.Sprintf("%s: %s", ErrPasswordPolicyViolation, strings.Join(reasons, "; "))
}

// Unwrap exposes ErrPasswordPolicyViolation and each individual violation.
func (e *PasswordPolicyError) Unwrap() []error {
	return append([]error{ErrPasswordPolicyViolation}, e.Violations...)
}

// Reasons returns the human readable message of each violation.
func (e *PasswordPolicyError) Reasons() []string {
	out := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		out = append(out, v.Error())
	}
	return out
}

// PhoneError names the phone field that could not be parsed.
type PhoneError struct {
	Index  int
	Field  string
	Reason string
}

func (e *PhoneError) Error() string {
	return fmt.Sprintf("%s: phones[%d].%s %s", ErrInvalidPhone, e.Index, e.Field, e.Reason)
}

func (e *PhoneError) Unwrap() error {
	return ErrInvalidPhone
}

// Reasons returns the offending field and why it was rejected.
func (e *PhoneError) Reasons() []string {
	return []string{fmt.Sprintf("phones[%d].%s %s", e.Index, e.Field, e.Reason)}
}

type violationReporter interface {
	Violations(password string) []error
}

// PhoneInput is an unparsed phone entry as received from clients.
type PhoneInput struct {
	Number      string
	CityCode    string
	CountryCode string
}

// RegistrationInput is the candidate identity submitted for signup.
type RegistrationInput struct {
	Name     string
	Email    string
	Password string
	Phones   []PhoneInput
}

// RegistrationService handles new identity onboarding.
type RegistrationService struct {
	identities port.IdentityRepository
	policy     port.PasswordPolicyValidator
	hasher     port.PasswordHasher
	issuer     port.TokenIssuer
	events     port.EventPublisher
	metrics    port.AuthMetrics
	logger     *zap.Logger
	tracer     trace.Tracer
	location   *time.Location
	now        func() time.Time
}

// NewRegistrationService constructs a registration service. events may be nil.
func NewRegistrationService(
	identities port.IdentityRepository,
	policy port.PasswordPolicyValidator,
	hasher port.PasswordHasher,
	issuer port.TokenIssuer,
	events port.EventPublisher,
) *RegistrationService {
	return &RegistrationService{
		identities: identities,
		policy:     policy,
		hasher:     hasher,
		issuer:     issuer,
		events:     events,
		metrics:    port.NopAuthMetrics{},
		logger:     zap.NewNop(),
		tracer:     otel.Tracer(tracerName),
		location:   time.UTC,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithLogger sets the structured logger used for workflow diagnostics.
func (s *RegistrationService) WithLogger(logger *zap.Logger) *RegistrationService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithMetrics sets the outcome recorder.
func (s *RegistrationService) WithMetrics(metrics port.AuthMetrics) *RegistrationService {
	if metrics != nil {
		s.metrics = metrics
	}
	return s
}

// WithClock overrides the service clock for deterministic tests.
func (s *RegistrationService) WithClock(clock func() time.Time) *RegistrationService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// WithLocation sets the zone summary timestamps are rendered in.
func (s *RegistrationService) WithLocation(loc *time.Location) *RegistrationService {
	if loc != nil {
		s.location = loc
	}
	return s
}

// Register runs the signup workflow: duplicate check, password policy,
// credential hashing, identity assembly, token issuance and persistence.
func (s *RegistrationService) Register(ctx context.Context, input RegistrationInput) (domain.RegistrationSummary, error) {
	ctx, span := s.tracer.Start(ctx, "RegistrationService.Register")
	defer span.End()

	summary, outcome, err := s.register(ctx, input)
	s.metrics.ObserveRegistration(outcome)
	span.SetAttributes(attribute.String("registration.outcome", outcome))
	if err != nil {
		span.SetStatus(codes.Error, outcome)
		return domain.RegistrationSummary{}, err
	}
	return summary, nil
}

func (s *RegistrationService) register(ctx context.Context, input RegistrationInput) (domain.RegistrationSummary, string, error) {
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if name == "" {
		return domain.RegistrationSummary{}, OutcomeInvalidInput, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if email == "" {
		return domain.RegistrationSummary{}, OutcomeInvalidInput, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if input.Password == "" {
		return domain.RegistrationSummary{}, OutcomeInvalidInput, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	phones, err := parsePhones(input.Phones)
	if err != nil {
		return domain.RegistrationSummary{}, OutcomeInvalidInput, err
	}

	log := s.logger.With(logger.ContextFields(ctx)...).With(zap.String("email", logger.MaskEmail(email)))

	exists, err := s.identities.ExistsByEmail(ctx, email)
	if err != nil {
		return domain.RegistrationSummary{}, OutcomePersistFailed, fmt.Errorf("check email: %w", err)
	}
	if exists {
		log.Info("registration rejected: email already registered")
		return domain.RegistrationSummary{}, OutcomeDuplicateEmail, ErrDuplicateEmail
	}

	if err := s.policy.Validate(input.Password); err != nil {
		violations := []error{err}
		if reporter, ok := s.policy.(violationReporter); ok {
			if all := reporter.Violations(input.Password); len(all) > 0 {
				violations = all
			}
		}
		log.Info("registration rejected: password policy", zap.Int("violations", len(violations)))
		return domain.RegistrationSummary{}, OutcomeWeakPassword, &PasswordPolicyError{Violations: violations}
	}

	passwordHash, err := s.hasher.Hash(input.Password)
	if err != nil {
		log.Error("credential hashing failed", zap.Error(err))
		return domain.RegistrationSummary{}, OutcomeHashingFailed, fmt.Errorf("%w: %v", ErrCredentialHashing, err)
	}

	identity := buildIdentity(name, email, passwordHash, phones)

	token, err := s.issuer.Issue(identity.Email, identity.Name, s.now())
	if err != nil {
		log.Error("token issuance failed", zap.Error(err))
		return domain.RegistrationSummary{}, OutcomeTokenFailed, fmt.Errorf("%w: %v", ErrTokenIssuance, err)
	}

	saved, err := s.identities.Save(ctx, identity)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			log.Info("registration rejected: email claimed concurrently")
			return domain.RegistrationSummary{}, OutcomeDuplicateEmail, ErrDuplicateEmail
		}
		log.Error("persist identity failed", zap.Error(err))
		return domain.RegistrationSummary{}, OutcomePersistFailed, fmt.Errorf("save identity: %w", err)
	}
	saved.Token = token

	s.publishRegistered(ctx, log, saved)
	log.Info("identity registered", zap.String("identity_id", saved.ID))

	return s.summarize(saved), OutcomeRegistered, nil
}

func buildIdentity(name, email, passwordHash string, phones []domain.Phone) domain.Identity {
	return domain.Identity{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Phones:       phones,
	}
}

// parsePhones runs before any hashing so a bad entry is rejected cheaply.
func parsePhones(raw []PhoneInput) ([]domain.Phone, error) {
	phones := make([]domain.Phone, 0, len(raw))
	for i, p := range raw {
		phone, err := parsePhone(i, p)
		if err != nil {
			return nil, err
		}
		phones = append(phones, phone)
	}
	return phones, nil
}

func parsePhone(index int, raw PhoneInput) (domain.Phone, error) {
	number, err := parseDigits(index, "number", raw.Number, 64)
	if err != nil {
		return domain.Phone{}, err
	}
	city, err := parseDigits(index, "citycode", raw.CityCode, 16)
	if err != nil {
		return domain.Phone{}, err
	}
	country, err := parseDigits(index, "countrycode", raw.CountryCode, 16)
	if err != nil {
		return domain.Phone{}, err
	}

	return domain.Phone{
		ID:          uuid.NewString(),
		Number:      number,
		CityCode:    int16(city),
		CountryCode: int16(country),
	}, nil
}

func parseDigits(index int, field, value string, bitSize int) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, &PhoneError{Index: index, Field: field, Reason: "is required"}
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return 0, &PhoneError{Index: index, Field: field, Reason: "must contain only digits"}
		}
	}
	n, err := strconv.ParseInt(value, 10, bitSize)
	if err != nil {
		return 0, &PhoneError{Index: index, Field: field, Reason: "is out of range"}
	}
	return n, nil
}

func (s *RegistrationService) summarize(identity domain.Identity) domain.RegistrationSummary {
	created := identity.CreatedAt.In(s.location).Format(SummaryTimeLayout)
	return domain.RegistrationSummary{
		ID:        identity.ID,
		Created:   created,
		Modified:  identity.ModifiedAt.In(s.location).Format(SummaryTimeLayout),
		LastLogin: created,
		Token:     identity.Token,
		IsActive:  true,
	}
}

func (s *RegistrationService) publishRegistered(ctx context.Context, log *zap.Logger, identity domain.Identity) {
	if s.events == nil {
		return
	}

	event := domain.IdentityRegisteredEvent{
		EventID:      uuid.NewString(),
		IdentityID:   identity.ID,
		Name:         identity.Name,
		Email:        identity.Email,
		PhoneCount:   len(identity.Phones),
		RegisteredAt: identity.CreatedAt,
	}
	if err := s.events.PublishIdentityRegistered(ctx, event); err != nil {
		log.Warn("publish identity registered event failed", zap.String("identity_id", identity.ID), zap.Error(err))
	}
}
