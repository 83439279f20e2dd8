// Package otp implements one-time-password generation and verification for
// phone subscription.
package otp

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"freegamewatcher/internal/messaging"
	"freegamewatcher/internal/model"
	"freegamewatcher/internal/storage"
)

// TTL is how long a code stays valid after creation.
const TTL = 5 * time.Minute

// Service creates, delivers, and verifies OTP codes.
type Service struct {
	store  storage.Storage
	sender messaging.Sender
	log    *slog.Logger
}

// NewService creates a Service.
func NewService(store storage.Storage, sender messaging.Sender, log *slog.Logger) *Service {
	return &Service{store: store, sender: sender, log: log}
}

// Create generates a 6-digit code for the phone and stores it with the
// configured TTL. The code is returned so the caller can deliver it.
func (s *Service) Create(ctx context.Context, phone string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	record := model.OTP{
		Phone:     phone,
		Code:      code,
		ExpiresAt: time.Now().UTC().Add(TTL),
	}
	if err := s.store.CreateOTP(ctx, &record); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	return code, nil
}

// SendCode delivers the code to the phone by SMS.
func (s *Service) SendCode(phone, code string) error {
	body := fmt.Sprintf("Your Free-Game-Watcher OTP is: %s (valid for 5 mins)", code)
	if err := s.sender.SendSMS(phone, body); err != nil {
		return fmt.Errorf("send otp sms: %w", err)
	}
	return nil
}

// Verify consumes the code for the phone. It returns true when the code was
// valid and unexpired; all stored codes for the phone are removed on success.
func (s *Service) Verify(ctx context.Context, phone, code string) (bool, error) {
	ok, err := s.store.ConsumeOTP(ctx, phone, code, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	return ok, nil
}

// CleanupExpired removes all expired codes.
func (s *Service) CleanupExpired(ctx context.Context) error {
	return s.store.DeleteExpiredOTPs(ctx, time.Now().UTC())
}

func generateCode() (string, error) {
	// 6-digit numeric code, 100000..999999.
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
