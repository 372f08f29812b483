package security

const (
	defaultMinPasswordLength = 8
	defaultPasswordSymbols   = "@#$%^&+="
)

// PasswordPolicyConfig describes the password strength rule.
type PasswordPolicyConfig struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
	// Symbols restricts which characters count as symbols. Empty accepts any
	// unicode punctuation or symbol.
	Symbols string
	// MinStrengthScore enables a zxcvbn score floor (1-4). Zero disables it.
	MinStrengthScore int
}

// DefaultPasswordPolicyConfig requires eight characters drawn from all four classes.
func DefaultPasswordPolicyConfig() PasswordPolicyConfig {
	return PasswordPolicyConfig{
		MinLength:     defaultMinPasswordLength,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
		Symbols:       defaultPasswordSymbols,
	}
}

// PasswordPolicy validates candidate passwords against a PasswordPolicyConfig.
// Rules run in a fixed order: length, uppercase, lowercase, digit, symbol, strength.
type PasswordPolicy struct {
	validator *PasswordValidator
}

// NewPasswordPolicy builds the ordered rule set described by cfg.
func NewPasswordPolicy(cfg PasswordPolicyConfig) *PasswordPolicy {
	rules := []PasswordRule{MinLengthRule(cfg.MinLength)}
	if cfg.RequireUpper {
		rules = append(rules, RequireClassRule(ClassUppercase, ""))
	}
	if cfg.RequireLower {
		rules = append(rules, RequireClassRule(ClassLowercase, ""))
	}
	if cfg.RequireDigit {
		rules = append(rules, RequireClassRule(ClassDigit, ""))
	}
	if cfg.RequireSymbol {
		rules = append(rules, RequireClassRule(ClassSymbol, cfg.Symbols))
	}
	if cfg.MinStrengthScore > 0 {
		rules = append(rules, RequirePasswordStrengthRule(cfg.MinStrengthScore))
	}
	return &PasswordPolicy{validator: NewPasswordValidator(rules...)}
}

// Validate returns the first violated rule as a *PasswordValidationError.
func (p *PasswordPolicy) Validate(password string) error {
	if p == nil {
		return ErrPasswordValidatorNotConfigured
	}
	return p.validator.Validate(password)
}

// Violations returns every violated rule.
func (p *PasswordPolicy) Violations(password string) []error {
	if p == nil {
		return []error{ErrPasswordValidatorNotConfigured}
	}
	return p.validator.Violations(password)
}
