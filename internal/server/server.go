// Package server exposes the subscription HTTP API.
package server

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"freegamewatcher/internal/otp"
	"freegamewatcher/internal/storage"
)

// PollTrigger runs one poll-and-alert cycle on demand.
type PollTrigger interface {
	TriggerNow(ctx context.Context) error
}

// Server is the HTTP API for subscription management and debug operations.
type Server struct {
	app      *fiber.App
	store    storage.Storage
	otp      *otp.Service
	trigger  PollTrigger
	validate *validator.Validate
	log      *slog.Logger
}

// New creates a Server and registers its routes.
func New(store storage.Storage, otpSvc *otp.Service, trigger PollTrigger, log *slog.Logger) *Server {
	s := &Server{
		app:      fiber.New(fiber.Config{AppName: "FreeGameWatcher", DisableStartupMessage: true}),
		store:    store,
		otp:      otpSvc,
		trigger:  trigger,
		validate: validator.New(),
		log:      log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", s.handleHealth)
	s.app.Post("/subscribe", s.handleSubscribe)
	s.app.Post("/verify", s.handleVerify)
	s.app.Post("/unsubscribe", s.handleUnsubscribe)
	s.app.Get("/status/:phone", s.handleStatus)
	s.app.Post("/debug/run-poll-now", s.handleRunPollNow)
	s.app.Post("/debug/cleanup-otps", s.handleCleanupOTPs)
}

// App returns the underlying fiber application, used by tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves the API on the given address, blocking until Shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
