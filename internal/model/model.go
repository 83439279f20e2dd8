// Package model defines the domain types used across the application.
package model

import "time"

// Game is a free-game offer normalized from one of the external catalogs.
// It is rebuilt on every poll and never persisted directly; only the alert
// ledger remembers which games a subscriber has seen. An empty string means
// the source did not provide the field. EndsAt is passed through unparsed,
// exactly as the source formatted it.
type Game struct {
	ID       string
	Title    string
	URL      string
	Platform string
	EndsAt   string
}

// Subscriber is a phone number registered for alerts. Only verified
// subscribers receive notifications.
type Subscriber struct {
	ID          int64
	Phone       string
	Verified    bool
	CreatedAt   time.Time
	LastAlertAt *time.Time
}

// AlertRecord is an append-only ledger entry recording that a subscriber
// was alerted about a game. At most one record exists per (subscriber,
// game id) pair under normal operation; the orchestrator checks before
// inserting, the schema does not enforce it.
type AlertRecord struct {
	ID           int64
	SubscriberID int64
	GameID       string
	GameTitle    string
	AlertedAt    time.Time
	ExpiresAt    string
}

// OTP is a one-time verification code sent to a phone number.
type OTP struct {
	ID        int64
	Phone     string
	Code      string
	ExpiresAt time.Time
	CreatedAt time.Time
}
