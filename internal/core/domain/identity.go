package domain

import "time"

// Identity is the registered account aggregate. Phones are owned values and are
// persisted together with the identity.
type Identity struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Phones       []Phone
	// Token is attached for response assembly only and is never persisted.
	Token      string
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Phone is a contact number owned by an identity.
type Phone struct {
	ID          string
	Number      int64
	CityCode    int16
	CountryCode int16
}

// RegistrationSummary is returned to callers after a successful signup.
// Timestamps are ISO-8601 local date-times without offset.
type RegistrationSummary struct {
	ID        string
	Created   string
	Modified  string
	LastLogin string
	Token     string
	IsActive  bool
}
