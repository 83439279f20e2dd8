// Package messaging delivers notifications to subscribers over SMS and
// WhatsApp.
package messaging

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"freegamewatcher/internal/config"
)

// Sender delivers a message to one recipient. A nil error means the message
// was accepted for delivery.
type Sender interface {
	SendSMS(phone, body string) error
	SendWhatsApp(phone, body string) error
}

// New returns a Twilio-backed sender when credentials are configured, and a
// log-only sender otherwise.
func New(cfg *config.Config, log *slog.Logger) Sender {
	if cfg.TwilioEnabled() {
		return NewTwilioSender(cfg, log)
	}
	log.Info("twilio credentials absent, using log-only sender")
	return &LogSender{log: log}
}

type messageCreator interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// TwilioSender sends messages through the Twilio REST API.
type TwilioSender struct {
	api          messageCreator
	smsFrom      string
	whatsappFrom string
	log          *slog.Logger
}

// NewTwilioSender creates a TwilioSender from the configured credentials.
func NewTwilioSender(cfg *config.Config, log *slog.Logger) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.TwilioAccountSID,
		Password: cfg.TwilioAuthToken,
	})
	return &TwilioSender{
		api:          client.Api,
		smsFrom:      cfg.TwilioSMSFrom,
		whatsappFrom: cfg.TwilioWhatsAppFrom,
		log:          log,
	}
}

// SendSMS sends a plain SMS to the given phone number.
func (t *TwilioSender) SendSMS(phone, body string) error {
	if t.smsFrom == "" {
		return fmt.Errorf("no SMS sender number configured")
	}
	return t.create(phone, t.smsFrom, body)
}

// SendWhatsApp sends a WhatsApp message to the given phone number. Twilio
// requires both numbers to carry the "whatsapp:" prefix.
func (t *TwilioSender) SendWhatsApp(phone, body string) error {
	if t.whatsappFrom == "" {
		return fmt.Errorf("no WhatsApp sender number configured")
	}
	if !strings.HasPrefix(phone, "whatsapp:") {
		phone = "whatsapp:" + phone
	}
	from := t.whatsappFrom
	if !strings.HasPrefix(from, "whatsapp:") {
		from = "whatsapp:" + from
	}
	return t.create(phone, from, body)
}

func (t *TwilioSender) create(to, from, body string) error {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(body)

	msg, err := t.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	if msg.Sid != nil {
		t.log.Info("message sent", "to", to, "sid", *msg.Sid)
	}
	return nil
}

// LogSender writes messages to the log instead of delivering them. It
// reports success so the alerting flow stays exercisable without live
// credentials.
type LogSender struct {
	log *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

// SendSMS logs the message and reports success.
func (l *LogSender) SendSMS(phone, body string) error {
	l.log.Info("dev-mode SMS", "to", phone, "body", body)
	return nil
}

// SendWhatsApp logs the message and reports success.
func (l *LogSender) SendWhatsApp(phone, body string) error {
	l.log.Info("dev-mode WhatsApp", "to", phone, "body", body)
	return nil
}
