package alerter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"freegamewatcher/internal/catalog"
	"freegamewatcher/internal/model"
	"freegamewatcher/internal/storage"
)

type mockCatalog struct {
	aggItems []catalog.AggregatorItem
	aggErr   error
	sfItems  []catalog.StorefrontItem
	sfErr    error
}

func (m *mockCatalog) FetchAggregator(_ context.Context, _ string) ([]catalog.AggregatorItem, error) {
	return m.aggItems, m.aggErr
}

func (m *mockCatalog) FetchStorefront(_ context.Context) ([]catalog.StorefrontItem, error) {
	return m.sfItems, m.sfErr
}

type sentMessage struct {
	Phone string
	Body  string
}

type mockSender struct {
	mu       sync.Mutex
	messages []sentMessage
	failFor  map[string]bool
}

func (m *mockSender) SendSMS(phone, body string) error {
	return m.SendWhatsApp(phone, body)
}

func (m *mockSender) SendWhatsApp(phone, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[phone] {
		return fmt.Errorf("delivery failed for %s", phone)
	}
	m.messages = append(m.messages, sentMessage{Phone: phone, Body: body})
	return nil
}

func (m *mockSender) getMessages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]sentMessage, len(m.messages))
	copy(cp, m.messages)
	return cp
}

// countingStore wraps a Storage and counts subscriber listing calls.
type countingStore struct {
	storage.Storage
	listCalls int
}

func (c *countingStore) ListVerifiedSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	c.listCalls++
	return c.Storage.ListVerifiedSubscribers(ctx)
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func addVerified(t *testing.T, store storage.Storage, phone string) model.Subscriber {
	t.Helper()
	sub := model.Subscriber{Phone: phone, Verified: true}
	if err := store.CreateSubscriber(context.Background(), &sub); err != nil {
		t.Fatalf("create subscriber: %v", err)
	}
	return sub
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := addVerified(t, store, "+4915112345678")

	cat := &mockCatalog{
		aggItems: []catalog.AggregatorItem{
			{ID: 101, Title: "Game A", EndDate: "2025-01-01"},
		},
		sfItems: []catalog.StorefrontItem{
			{ID: "prodX", Title: "Game B", ProductSlug: "prodX", EndDate: "2025-02-01"},
		},
	}
	sender := &mockSender{}

	before := time.Now().UTC().Add(-time.Second)

	a := New(store, cat, sender, discardLogger())
	if err := a.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	msgs := sender.getMessages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Phone != sub.Phone {
		t.Errorf("message went to %s, want %s", msgs[0].Phone, sub.Phone)
	}
	for _, title := range []string{"Game A", "Game B"} {
		if !strings.Contains(msgs[0].Body, title) {
			t.Errorf("message missing %q:\n%s", title, msgs[0].Body)
		}
	}

	for _, gameID := range []string{"101", "prodX"} {
		alerted, err := store.HasAlerted(ctx, sub.ID, gameID)
		if err != nil {
			t.Fatalf("has alerted %s: %v", gameID, err)
		}
		if !alerted {
			t.Errorf("expected alert record for game %s", gameID)
		}
	}

	updated, err := store.GetSubscriberByPhone(ctx, sub.Phone)
	if err != nil {
		t.Fatalf("get subscriber: %v", err)
	}
	if updated.LastAlertAt == nil {
		t.Fatal("expected LastAlertAt to be set")
	}
	if updated.LastAlertAt.Before(before) {
		t.Errorf("LastAlertAt %v is before test start %v", updated.LastAlertAt, before)
	}
}

func TestRunIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	addVerified(t, store, "+4915112345678")

	cat := &mockCatalog{
		aggItems: []catalog.AggregatorItem{{ID: 101, Title: "Game A"}},
		sfItems:  []catalog.StorefrontItem{{ID: "prodX", Title: "Game B"}},
	}
	sender := &mockSender{}

	a := New(store, cat, sender, discardLogger())
	if err := a.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := a.Run(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}

	msgs := sender.getMessages()
	if diff := cmp.Diff(1, len(msgs)); diff != "" {
		t.Errorf("expected no messages on second run (-want +got):\n%s", diff)
	}
}

func TestRunDeltaCorrectness(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sub := addVerified(t, store, "+4915112345678")

	// G1 already alerted in a previous cycle.
	if err := store.RecordAlerts(ctx, sub.ID, []model.Game{{ID: "g1", Title: "G1"}}, time.Now().UTC()); err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	cat := &mockCatalog{
		sfItems: []catalog.StorefrontItem{
			{ID: "g1", Title: "G1"},
			{ID: "g2", Title: "G2"},
		},
	}
	sender := &mockSender{}

	a := New(store, cat, sender, discardLogger())
	if err := a.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	msgs := sender.getMessages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if strings.Contains(msgs[0].Body, "G1") {
		t.Errorf("message contains already-alerted game:\n%s", msgs[0].Body)
	}
	if !strings.Contains(msgs[0].Body, "G2") {
		t.Errorf("message missing new game:\n%s", msgs[0].Body)
	}
}

func TestRunPerSubscriberIsolation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	subA := addVerified(t, store, "+1111111111")
	subB := addVerified(t, store, "+2222222222")

	cat := &mockCatalog{
		aggItems: []catalog.AggregatorItem{{ID: 101, Title: "Game A"}},
	}
	sender := &mockSender{failFor: map[string]bool{subA.Phone: true}}

	a := New(store, cat, sender, discardLogger())
	if err := a.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	msgs := sender.getMessages()
	if len(msgs) != 1 || msgs[0].Phone != subB.Phone {
		t.Fatalf("expected exactly one message to %s, got %v", subB.Phone, msgs)
	}

	alertedA, err := store.HasAlerted(ctx, subA.ID, "101")
	if err != nil {
		t.Fatalf("has alerted A: %v", err)
	}
	if alertedA {
		t.Error("failed delivery must not be recorded")
	}
	alertedB, err := store.HasAlerted(ctx, subB.ID, "101")
	if err != nil {
		t.Fatalf("has alerted B: %v", err)
	}
	if !alertedB {
		t.Error("successful delivery must be recorded")
	}

	gotA, _ := store.GetSubscriberByPhone(ctx, subA.Phone)
	if gotA.LastAlertAt != nil {
		t.Error("subscriber A timestamp must stay unchanged")
	}
	gotB, _ := store.GetSubscriberByPhone(ctx, subB.Phone)
	if gotB.LastAlertAt == nil {
		t.Error("subscriber B timestamp must be updated")
	}
}

func TestRunEmptyCatalogIsNoop(t *testing.T) {
	ctx := context.Background()
	base := newTestStore(t)
	addVerified(t, base, "+4915112345678")
	store := &countingStore{Storage: base}

	sender := &mockSender{}
	a := New(store, &mockCatalog{}, sender, discardLogger())
	if err := a.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	if diff := cmp.Diff(0, store.listCalls); diff != "" {
		t.Errorf("subscriber listing calls (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(0, len(sender.getMessages())); diff != "" {
		t.Errorf("message count (-want +got):\n%s", diff)
	}
}

func TestRunSourceFailureDegrades(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	addVerified(t, store, "+4915112345678")

	cat := &mockCatalog{
		aggErr:  fmt.Errorf("aggregator down"),
		sfItems: []catalog.StorefrontItem{{ID: "g1", Title: "Survivor Game"}},
	}
	sender := &mockSender{}

	a := New(store, cat, sender, discardLogger())
	if err := a.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	msgs := sender.getMessages()
	if len(msgs) != 1 || !strings.Contains(msgs[0].Body, "Survivor Game") {
		t.Fatalf("expected storefront alert despite aggregator failure, got %v", msgs)
	}
}

func TestFetchGamesMergePrecedence(t *testing.T) {
	ctx := context.Background()

	// Both items normalize to the id "Game X"; the storefront entry must win
	// while keeping the aggregator's position.
	cat := &mockCatalog{
		aggItems: []catalog.AggregatorItem{
			{Title: "Game X", Platform: "steam"},
			{ID: 7, Title: "Game Y"},
		},
		sfItems: []catalog.StorefrontItem{
			{Title: "Game X"},
		},
	}

	a := New(nil, cat, &mockSender{}, discardLogger())
	games := a.fetchGames(ctx)

	want := []model.Game{
		{ID: "Game X", Title: "Game X", Platform: "epic"},
		{ID: "7", Title: "Game Y"},
	}
	if diff := cmp.Diff(want, games); diff != "" {
		t.Errorf("merged games mismatch (-want +got):\n%s", diff)
	}
}

func TestRunCancelledContext(t *testing.T) {
	store := newTestStore(t)
	addVerified(t, store, "+4915112345678")

	cat := &mockCatalog{
		aggItems: []catalog.AggregatorItem{{ID: 101, Title: "Game A"}},
	}
	sender := &mockSender{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := New(store, cat, sender, discardLogger())
	if err := a.Run(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}

	if diff := cmp.Diff(0, len(sender.getMessages())); diff != "" {
		t.Errorf("message count (-want +got):\n%s", diff)
	}
}

func TestComposeMessage(t *testing.T) {
	tests := []struct {
		name  string
		games []model.Game
		want  string
	}{
		{
			name: "full entries",
			games: []model.Game{
				{Title: "Game A", EndsAt: "2025-01-01", URL: "https://store/a"},
				{Title: "Game B", URL: "https://store/b"},
			},
			want: "🎮 *Free Game Alert!*\n" +
				"\n• Game A (ends: 2025-01-01)\n  https://store/a" +
				"\n• Game B\n  https://store/b" +
				"\n\nGrab them quickly!!!",
		},
		{
			name:  "open-ended giveaway omits the expiry",
			games: []model.Game{{Title: "Game C", EndsAt: "N/A"}},
			want: "🎮 *Free Game Alert!*\n" +
				"\n• Game C" +
				"\n\nGrab them quickly!!!",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComposeMessage(tt.games)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("message mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
