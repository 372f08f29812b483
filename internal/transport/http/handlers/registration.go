package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nisum/oppenheimer/internal/infra/logger"
	"github.com/nisum/oppenheimer/internal/usecase"
)

// UserMediaType is the versioned media type of the users resource.
const UserMediaType = "application/vnd.nisum.oppenheimer.user.v1+json"

const (
	nameMaxLength  = 55
	emailMaxLength = 55
	digitsMaxSize  = 15
	maxBodyBytes   = 64 << 10
)

var (
	emailPattern  = regexp.MustCompile(`^[\w.-]+@([\w-]+\.)+[\w-]{2,4}$`)
	digitsPattern = regexp.MustCompile(`^\d+$`)
)

var registrationErrorCases = []ErrorCase{
	{Err: usecase.ErrPasswordPolicyViolation, Status: http.StatusBadRequest, Message: "Password must contain an uppercase letter, a lowercase letter, a digit, and a special character"},
	{Err: usecase.ErrInvalidPhone, Status: http.StatusBadRequest, Message: "invalid phone"},
	{Err: usecase.ErrInvalidInput, Status: http.StatusBadRequest, Message: "invalid registration payload"},
	{Err: usecase.ErrDuplicateEmail, Status: http.StatusConflict, Message: "Email already exists"},
}

// RegistrationHandler exposes the signup endpoint.
type RegistrationHandler struct {
	registration *usecase.RegistrationService
	logger       *zap.Logger
}

func NewRegistrationHandler(registration *usecase.RegistrationService, log *zap.Logger) *RegistrationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RegistrationHandler{registration: registration, logger: log}
}

// RegisterRoutes binds registration endpoints.
func (h *RegistrationHandler) RegisterRoutes(r gin.IRoutes, middlewares ...gin.HandlerFunc) {
	r.POST("", append(middlewares, h.Register)...)
}

// Register creates an identity and returns its summary with a signed token.
// Responds 201, 400 for payload or password failures, 409 for a taken email.
// @Summary Register a new user
// @Description Creates an identity with the supplied credentials and phones and returns a signed token.
// @Tags Users
// @Accept json
// @Produce json
// @Param request body RegistrationRequest true "Registration request payload"
// @Success 201 {object} RegistrationResponse
// @Header 201 {string} Location "/api/users/{id}"
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 415 {object} ErrorResponse
// @Failure 429 {object} middleware.RateLimitResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/users [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	if !acceptsContentType(c.GetHeader("Content-Type")) {
		c.JSON(http.StatusUnsupportedMediaType, ErrorResponse{Message: "unsupported content type"})
		return
	}

	req, err := decodeRegistration(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid registration payload", Reasons: []string{err.Error()}})
		return
	}

	if reasons := validateRegistration(req); len(reasons) > 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Message: "invalid registration payload", Reasons: reasons})
		return
	}

	log := h.logger.With(logger.ContextFields(c.Request.Context())...)
	log.Info("Processing sign-up request", zap.String("email", logger.MaskEmail(req.Email)))

	summary, err := h.registration.Register(c.Request.Context(), toRegistrationInput(req))
	if err != nil {
		RespondWithMappedError(c, err, registrationErrorCases, http.StatusInternalServerError, "failed to register user")
		return
	}

	log.Info("Successfully created user", zap.String("identity_id", summary.ID))

	if strings.HasPrefix(c.GetHeader("Content-Type"), UserMediaType) {
		c.Header("Content-Type", UserMediaType)
	}
	c.Header("Location", strings.TrimSuffix(c.Request.URL.Path, "/")+"/"+summary.ID)
	c.JSON(http.StatusCreated, RegistrationResponse{
		ID:        summary.ID,
		Created:   summary.Created,
		Modified:  summary.Modified,
		LastLogin: summary.LastLogin,
		Token:     summary.Token,
		IsActive:  summary.IsActive,
	})
}

func acceptsContentType(header string) bool {
	if header == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || mediaType == UserMediaType
}

func decodeRegistration(body io.Reader) (RegistrationRequest, error) {
	var req RegistrationRequest
	if body == nil {
		return req, errors.New("request body is required")
	}

	decoder := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return req, errors.New("request body is required")
		}
		return req, err
	}
	if decoder.More() {
		return req, errors.New("request body must contain a single JSON object")
	}
	return req, nil
}

func validateRegistration(req RegistrationRequest) []string {
	var reasons []string

	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		reasons = append(reasons, "Name is required")
	case utf8.RuneCountInString(name) > nameMaxLength:
		reasons = append(reasons, fmt.Sprintf("Name size must be between 0 and %d", nameMaxLength))
	}

	email := strings.TrimSpace(req.Email)
	switch {
	case email == "":
		reasons = append(reasons, "Email is required")
	case utf8.RuneCountInString(email) > emailMaxLength:
		reasons = append(reasons, fmt.Sprintf("Email size must be between 0 and %d", emailMaxLength))
	case !emailPattern.MatchString(email):
		reasons = append(reasons, "Email should be valid")
	}

	if strings.TrimSpace(req.Password) == "" {
		reasons = append(reasons, "Password is required")
	}

	for i, phone := range req.Phones {
		reasons = append(reasons, validateDigits(i, "Phone number", "number", string(phone.Number), 64)...)
		reasons = append(reasons, validateDigits(i, "City code", "citycode", string(phone.CityCode), 16)...)
		reasons = append(reasons, validateDigits(i, "Country code", "countrycode", string(phone.CountryCode), 16)...)
	}

	return reasons
}

// validateDigits also range-checks value against the integer width it is stored in.
func validateDigits(index int, label, field, value string, bitSize int) []string {
	prefix := fmt.Sprintf("phones[%d].%s: ", index, field)
	switch {
	case strings.TrimSpace(value) == "":
		return []string{prefix + label + " is required"}
	case len(value) > digitsMaxSize:
		return []string{fmt.Sprintf("%s%s size must be between 0 and %d", prefix, label, digitsMaxSize)}
	case !digitsPattern.MatchString(value):
		return []string{prefix + label + " must contain only digits"}
	}
	if _, err := strconv.ParseInt(value, 10, bitSize); err != nil {
		return []string{prefix + label + " is out of range"}
	}
	return nil
}

func toRegistrationInput(req RegistrationRequest) usecase.RegistrationInput {
	phones := make([]usecase.PhoneInput, 0, len(req.Phones))
	for _, p := range req.Phones {
		phones = append(phones, usecase.PhoneInput{
			Number:      string(p.Number),
			CityCode:    string(p.CityCode),
			CountryCode: string(p.CountryCode),
		})
	}
	return usecase.RegistrationInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phones:   phones,
	}
}
