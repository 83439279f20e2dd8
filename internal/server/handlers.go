package server

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"freegamewatcher/internal/model"
	"freegamewatcher/internal/phone"
	"freegamewatcher/internal/storage"
)

type subscribeRequest struct {
	Phone string `json:"phone" validate:"required,min=6,max=20"`
}

type verifyRequest struct {
	Phone string `json:"phone" validate:"required,min=6,max=20"`
	Code  string `json:"code" validate:"required,min=3,max=10"`
}

type unsubscribeRequest struct {
	Phone string `json:"phone" validate:"required,min=6,max=20"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"ok":  true,
		"now": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSubscribe creates (or reuses) an unverified subscriber and sends an
// OTP code by SMS. Delivery happens in the background so a slow SMS provider
// does not block the request.
func (s *Server) handleSubscribe(c *fiber.Ctx) error {
	var req subscribeRequest
	if err := s.parseBody(c, &req); err != nil {
		return err
	}

	p := phone.Normalize(req.Phone)
	ctx := c.UserContext()

	sub, err := s.store.GetSubscriberByPhone(ctx, p)
	switch {
	case err == nil:
		if sub.Verified {
			return badRequest(c, "Phone already subscribed and verified.")
		}
	case errors.Is(err, storage.ErrNotFound):
		newSub := model.Subscriber{Phone: p}
		if err := s.store.CreateSubscriber(ctx, &newSub); err != nil {
			s.log.Error("create subscriber", "error", err)
			return internalError(c)
		}
	default:
		s.log.Error("get subscriber", "error", err)
		return internalError(c)
	}

	code, err := s.otp.Create(ctx, p)
	if err != nil {
		s.log.Error("create otp", "error", err)
		return internalError(c)
	}

	go func() {
		if err := s.otp.SendCode(p, code); err != nil {
			s.log.Error("send otp", "phone", p, "error", err)
		}
	}()

	return c.JSON(fiber.Map{
		"success": true,
		"message": "OTP sent (if SMS provider configured). Please verify.",
	})
}

func (s *Server) handleVerify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := s.parseBody(c, &req); err != nil {
		return err
	}

	p := phone.Normalize(req.Phone)
	ctx := c.UserContext()

	ok, err := s.otp.Verify(ctx, p, req.Code)
	if err != nil {
		s.log.Error("verify otp", "error", err)
		return internalError(c)
	}
	if !ok {
		return badRequest(c, "Invalid or expired OTP.")
	}

	if err := s.store.VerifySubscriber(ctx, p); err != nil {
		s.log.Error("verify subscriber", "error", err)
		return internalError(c)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Phone verified and subscribed for alerts.",
	})
}

func (s *Server) handleUnsubscribe(c *fiber.Ctx) error {
	var req unsubscribeRequest
	if err := s.parseBody(c, &req); err != nil {
		return err
	}

	p := phone.Normalize(req.Phone)
	err := s.store.DeleteSubscriberByPhone(c.UserContext(), p)
	if errors.Is(err, storage.ErrNotFound) {
		return notFound(c, "Phone not found.")
	}
	if err != nil {
		s.log.Error("delete subscriber", "error", err)
		return internalError(c)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Unsubscribed and removed.",
	})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	p := phone.Normalize(c.Params("phone"))

	sub, err := s.store.GetSubscriberByPhone(c.UserContext(), p)
	if errors.Is(err, storage.ErrNotFound) {
		return notFound(c, "Not found.")
	}
	if err != nil {
		s.log.Error("get subscriber", "error", err)
		return internalError(c)
	}

	var lastAlert any
	if sub.LastAlertAt != nil {
		lastAlert = sub.LastAlertAt.UTC().Format(time.RFC3339)
	}
	return c.JSON(fiber.Map{
		"phone":         sub.Phone,
		"verified":      sub.Verified,
		"last_alert_at": lastAlert,
	})
}

// handleRunPollNow synchronously runs one poll-and-alert cycle. Meant for
// manual and debug use; re-entrant safety alongside the scheduled job is the
// caller's concern.
func (s *Server) handleRunPollNow(c *fiber.Ctx) error {
	if err := s.trigger.TriggerNow(context.Background()); err != nil {
		s.log.Error("manual poll", "error", err)
		return internalError(c)
	}
	return c.JSON(fiber.Map{"message": "Poll job executed manually"})
}

func (s *Server) handleCleanupOTPs(c *fiber.Ctx) error {
	if err := s.otp.CleanupExpired(c.UserContext()); err != nil {
		s.log.Error("cleanup otps", "error", err)
		return internalError(c)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (s *Server) parseBody(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return badRequest(c, "Invalid request body.")
	}
	if err := s.validate.Struct(req); err != nil {
		return badRequest(c, "Validation failed: "+err.Error())
	}
	return nil
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func notFound(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": msg})
}

func internalError(c *fiber.Ctx) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error."})
}
