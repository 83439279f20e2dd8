package messaging

import (
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"freegamewatcher/internal/config"
)

type mockCreator struct {
	params []*twilioapi.CreateMessageParams
	err    error
}

func (m *mockCreator) CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.params = append(m.params, params)
	sid := "SM0000"
	return &twilioapi.ApiV2010Message{Sid: &sid}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTwilioSendWhatsAppPrefixes(t *testing.T) {
	tests := []struct {
		name     string
		to       string
		from     string
		wantTo   string
		wantFrom string
	}{
		{
			name:     "bare numbers get prefixed",
			to:       "+4915112345678",
			from:     "+14155550100",
			wantTo:   "whatsapp:+4915112345678",
			wantFrom: "whatsapp:+14155550100",
		},
		{
			name:     "already prefixed numbers stay unchanged",
			to:       "whatsapp:+4915112345678",
			from:     "whatsapp:+14155550100",
			wantTo:   "whatsapp:+4915112345678",
			wantFrom: "whatsapp:+14155550100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creator := &mockCreator{}
			sender := &TwilioSender{api: creator, whatsappFrom: tt.from, log: discardLogger()}

			if err := sender.SendWhatsApp(tt.to, "hello"); err != nil {
				t.Fatalf("send: %v", err)
			}
			if len(creator.params) != 1 {
				t.Fatalf("expected 1 message, got %d", len(creator.params))
			}
			p := creator.params[0]
			if diff := cmp.Diff(tt.wantTo, *p.To); diff != "" {
				t.Errorf("to mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantFrom, *p.From); diff != "" {
				t.Errorf("from mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTwilioSendErrors(t *testing.T) {
	tests := []struct {
		name   string
		sender *TwilioSender
		send   func(*TwilioSender) error
	}{
		{
			name:   "sms without sender number",
			sender: &TwilioSender{api: &mockCreator{}, log: discardLogger()},
			send:   func(s *TwilioSender) error { return s.SendSMS("+111", "hi") },
		},
		{
			name:   "whatsapp without sender number",
			sender: &TwilioSender{api: &mockCreator{}, log: discardLogger()},
			send:   func(s *TwilioSender) error { return s.SendWhatsApp("+111", "hi") },
		},
		{
			name: "api failure propagates",
			sender: &TwilioSender{
				api:     &mockCreator{err: fmt.Errorf("twilio unavailable")},
				smsFrom: "+1000",
				log:     discardLogger(),
			},
			send: func(s *TwilioSender) error { return s.SendSMS("+111", "hi") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.send(tt.sender); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLogSenderAlwaysSucceeds(t *testing.T) {
	sender := NewLogSender(discardLogger())

	if err := sender.SendSMS("+111", "hi"); err != nil {
		t.Errorf("sms: %v", err)
	}
	if err := sender.SendWhatsApp("+111", "hi"); err != nil {
		t.Errorf("whatsapp: %v", err)
	}
}

func TestNewPicksImplementation(t *testing.T) {
	log := discardLogger()

	if _, ok := New(&config.Config{}, log).(*LogSender); !ok {
		t.Error("expected LogSender without credentials")
	}

	cfg := &config.Config{TwilioAccountSID: "ACxxx", TwilioAuthToken: "secret"}
	if _, ok := New(cfg, log).(*TwilioSender); !ok {
		t.Error("expected TwilioSender with credentials")
	}
}
