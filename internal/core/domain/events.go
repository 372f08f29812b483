package domain

import "time"

// IdentityRegisteredEvent represents the payload for identity.registered messages.
type IdentityRegisteredEvent struct {
	EventID      string
	IdentityID   string
	Name         string
	Email        string
	PhoneCount   int
	RegisteredAt time.Time
	Metadata     map[string]any
}
