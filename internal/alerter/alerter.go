// Package alerter implements the poll-and-alert cycle: fetch both catalogs,
// merge into one game set, and notify every verified subscriber about the
// games they have not been alerted about yet.
package alerter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"freegamewatcher/internal/catalog"
	"freegamewatcher/internal/messaging"
	"freegamewatcher/internal/model"
	"freegamewatcher/internal/storage"
)

// aggregatorPlatform is the platform label the aggregator fetch is
// filtered to.
const aggregatorPlatform = "steam"

// Catalog is the interface to the external catalog clients.
type Catalog interface {
	FetchAggregator(ctx context.Context, platform string) ([]catalog.AggregatorItem, error)
	FetchStorefront(ctx context.Context) ([]catalog.StorefrontItem, error)
}

// Alerter runs poll-and-alert cycles.
type Alerter struct {
	store   storage.Storage
	catalog Catalog
	sender  messaging.Sender
	log     *slog.Logger
}

// New creates an Alerter.
func New(store storage.Storage, cat Catalog, sender messaging.Sender, log *slog.Logger) *Alerter {
	return &Alerter{
		store:   store,
		catalog: cat,
		sender:  sender,
		log:     log,
	}
}

// Run executes one poll-and-alert cycle. A failing catalog source degrades
// to an empty contribution; a failing subscriber never aborts the rest.
func (a *Alerter) Run(ctx context.Context) error {
	a.log.Info("poll cycle started")

	games := a.fetchGames(ctx)
	if len(games) == 0 {
		a.log.Info("no free games found in this poll")
		return nil
	}

	subs, err := a.store.ListVerifiedSubscribers(ctx)
	if err != nil {
		return fmt.Errorf("list subscribers: %w", err)
	}

	for _, sub := range subs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.processSubscriber(ctx, sub, games)
	}
	return nil
}

// fetchGames fetches both sources concurrently and merges the normalized
// results. Either source failing yields an empty contribution; the merge
// order (aggregator first, then storefront) is preserved, and a later
// source overwrites an earlier entry with the same id in place.
func (a *Alerter) fetchGames(ctx context.Context) []model.Game {
	var (
		aggItems []catalog.AggregatorItem
		sfItems  []catalog.StorefrontItem
		wg       sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		items, err := a.catalog.FetchAggregator(ctx, aggregatorPlatform)
		if err != nil {
			a.log.Error("fetch aggregator", "error", err)
			return
		}
		aggItems = items
	}()
	go func() {
		defer wg.Done()
		items, err := a.catalog.FetchStorefront(ctx)
		if err != nil {
			a.log.Error("fetch storefront", "error", err)
			return
		}
		sfItems = items
	}()
	wg.Wait()

	index := make(map[string]int)
	var games []model.Game
	add := func(g model.Game) {
		if i, ok := index[g.ID]; ok {
			games[i] = g
			return
		}
		index[g.ID] = len(games)
		games = append(games, g)
	}

	for _, item := range aggItems {
		add(catalog.NormalizeAggregatorItem(item))
	}
	for _, item := range sfItems {
		add(catalog.NormalizeStorefrontItem(item))
	}
	return games
}

// processSubscriber computes the subscriber's un-alerted delta, sends one
// batched message, and on confirmed delivery commits the ledger entries and
// the last-alert timestamp as one unit.
func (a *Alerter) processSubscriber(ctx context.Context, sub model.Subscriber, games []model.Game) {
	var toAlert []model.Game
	for _, g := range games {
		alerted, err := a.store.HasAlerted(ctx, sub.ID, g.ID)
		if err != nil {
			// Without reliable alert history this subscriber cannot be
			// processed safely; skip to the next one.
			a.log.Error("check alerted", "subscriber_id", sub.ID, "game_id", g.ID, "error", err)
			return
		}
		if !alerted {
			toAlert = append(toAlert, g)
		}
	}

	if len(toAlert) == 0 {
		return
	}

	msg := ComposeMessage(toAlert)
	if err := a.sender.SendWhatsApp(sub.Phone, msg); err != nil {
		a.log.Warn("send alert", "phone", sub.Phone, "error", err)
		return
	}

	if err := a.store.RecordAlerts(ctx, sub.ID, toAlert, time.Now().UTC()); err != nil {
		a.log.Error("record alerts", "subscriber_id", sub.ID, "error", err)
		return
	}

	a.log.Info("sent alerts", "phone", sub.Phone, "count", len(toAlert))
}

// ComposeMessage formats the batched WhatsApp alert, one block per game in
// the given order.
func ComposeMessage(games []model.Game) string {
	var b strings.Builder
	b.WriteString("🎮 *Free Game Alert!*\n")
	for _, g := range games {
		b.WriteString("\n• ")
		b.WriteString(g.Title)
		if g.EndsAt != "" && g.EndsAt != "N/A" {
			fmt.Fprintf(&b, " (ends: %s)", g.EndsAt)
		}
		if g.URL != "" {
			b.WriteString("\n  ")
			b.WriteString(g.URL)
		}
	}
	b.WriteString("\n\nGrab them quickly!!!")
	return b.String()
}
