package security

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// Violation codes reported by PasswordValidationError.
const (
	CodeTooShort              = "too_short"
	CodeMissingCharacterClass = "missing_character_class"
	CodeWeakPassword          = "weak_password"
)

// CharacterClass names a group of characters a password may be required to contain.
type CharacterClass string

const (
	ClassUppercase CharacterClass = "uppercase"
	ClassLowercase CharacterClass = "lowercase"
	ClassDigit     CharacterClass = "digit"
	ClassSymbol    CharacterClass = "symbol"
)

// ErrPasswordValidatorNotConfigured is returned when a nil validator is used.
var ErrPasswordValidatorNotConfigured = errors.New("password validator not configured")

// PasswordValidationError represents a single password policy violation.
type PasswordValidationError struct {
	Code    string
	Class   CharacterClass
	Message string
}

// Error implements error for PasswordValidationError.
func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordRule validates a password according to a specific policy rule.
type PasswordRule interface {
	Validate(password string) error
}

// PasswordRuleFunc adapts a function to be used as a PasswordRule.
type PasswordRuleFunc func(password string) error

// Validate executes the underlying rule function.
func (f PasswordRuleFunc) Validate(password string) error {
	return f(password)
}

// PasswordValidator applies an ordered sequence of password rules.
type PasswordValidator struct {
	rules []PasswordRule
}

// NewPasswordValidator constructs a validator with the provided rules.
func NewPasswordValidator(rules ...PasswordRule) *PasswordValidator {
	copied := make([]PasswordRule, len(rules))
	copy(copied, rules)
	return &PasswordValidator{rules: copied}
}

// Validate executes the rules in order and returns the first encountered violation.
func (v *PasswordValidator) Validate(password string) error {
	if v == nil {
		return ErrPasswordValidatorNotConfigured
	}
	for _, rule := range v.rules {
		if err := rule.Validate(password); err != nil {
			return err
		}
	}
	return nil
}

// Violations evaluates every rule independently and returns all violations.
func (v *PasswordValidator) Violations(password string) []error {
	if v == nil {
		return []error{ErrPasswordValidatorNotConfigured}
	}
	var violations []error
	for _, rule := range v.rules {
		if err := rule.Validate(password); err != nil {
			violations = append(violations, err)
		}
	}
	return violations
}

// MinLengthRule ensures the password has at least min characters.
// An empty password always violates this rule.
func MinLengthRule(min int) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		length := len([]rune(password))
		if length == 0 || length < min {
			return &PasswordValidationError{
				Code:    CodeTooShort,
				Message: fmt.Sprintf("password must be at least %d characters long", min),
			}
		}
		return nil
	})
}

// RequireClassRule ensures the password contains at least one character of the given class.
// For ClassSymbol, symbols restricts the accepted set; an empty set accepts any
// unicode punctuation or symbol.
func RequireClassRule(class CharacterClass, symbols string) PasswordRule {
	match := classMatcher(class, symbols)
	return PasswordRuleFunc(func(password string) error {
		for _, r := range password {
			if match(r) {
				return nil
			}
		}
		return &PasswordValidationError{
			Code:    CodeMissingCharacterClass,
			Class:   class,
			Message: fmt.Sprintf("password must include at least one %s character", class),
		}
	})
}

func classMatcher(class CharacterClass, symbols string) func(rune) bool {
	switch class {
	case ClassUppercase:
		return unicode.IsUpper
	case ClassLowercase:
		return unicode.IsLower
	case ClassDigit:
		return unicode.IsDigit
	case ClassSymbol:
		if symbols != "" {
			return func(r rune) bool { return strings.ContainsRune(symbols, r) }
		}
		return func(r rune) bool { return unicode.IsSymbol(r) || unicode.IsPunct(r) }
	default:
		return func(rune) bool { return false }
	}
}

// RequirePasswordStrengthRule enforces a minimum zxcvbn score to reject guessable passwords.
func RequirePasswordStrengthRule(minScore int, userInputs ...string) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if minScore <= 0 {
			return nil
		}
		if minScore > 4 {
			minScore = 4
		}

		result := zxcvbn.PasswordStrength(password, userInputs)
		if result.Score >= minScore {
			return nil
		}

		return &PasswordValidationError{
			Code:    CodeWeakPassword,
			Message: "password is too easy to guess; choose a more complex value",
		}
	})
}
