// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"freegamewatcher/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateSubscriber(ctx context.Context, sub *model.Subscriber) error
	GetSubscriberByPhone(ctx context.Context, phone string) (*model.Subscriber, error)
	VerifySubscriber(ctx context.Context, phone string) error
	DeleteSubscriberByPhone(ctx context.Context, phone string) error
	ListVerifiedSubscribers(ctx context.Context) ([]model.Subscriber, error)

	HasAlerted(ctx context.Context, subscriberID int64, gameID string) (bool, error)
	RecordAlerts(ctx context.Context, subscriberID int64, games []model.Game, at time.Time) error

	CreateOTP(ctx context.Context, otp *model.OTP) error
	ConsumeOTP(ctx context.Context, phone, code string, now time.Time) (bool, error)
	DeleteExpiredOTPs(ctx context.Context, now time.Time) error

	Close() error
}
