package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Message string   `json:"message"`
	Reasons []string `json:"reasons,omitempty"`
}

// DigitString accepts either a JSON string or a non-negative JSON integer.
type DigitString string

func (d *DigitString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = DigitString(s)
		return nil
	}
	if _, err := strconv.ParseUint(string(data), 10, 64); err != nil {
		return fmt.Errorf("expected digits, got %s", data)
	}
	*d = DigitString(data)
	return nil
}

// PhoneRequest is a single phone entry in the registration payload.
type PhoneRequest struct {
	Number      DigitString `json:"number"`
	CityCode    DigitString `json:"citycode"`
	CountryCode DigitString `json:"countrycode"`
}

// RegistrationRequest defines the signup payload. Unknown fields are rejected.
type RegistrationRequest struct {
	Name     string         `json:"name"`
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Phones   []PhoneRequest `json:"phones"`
}

// RegistrationResponse is returned with 201 after a successful signup.
type RegistrationResponse struct {
	ID        string `json:"id"`
	Created   string `json:"created"`
	Modified  string `json:"modified"`
	LastLogin string `json:"last_login"`
	Token     string `json:"token"`
	IsActive  bool   `json:"isactive"`
}

// TokenIntrospectRequest carries the token to inspect.
type TokenIntrospectRequest struct {
	Token string `json:"token"`
}

// TokenIntrospectResponse reports whether the token is usable and why not.
type TokenIntrospectResponse struct {
	Active bool           `json:"active"`
	Reason string         `json:"reason"`
	Claims map[string]any `json:"claims,omitempty"`
}

// SessionResponse describes the identity bound to the presented token.
type SessionResponse struct {
	Subject   string    `json:"sub"`
	Name      string    `json:"name"`
	Issuer    string    `json:"iss,omitempty"`
	Audience  []string  `json:"aud,omitempty"`
	ExpiresAt time.Time `json:"exp"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse lists the state of each dependency probe.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
