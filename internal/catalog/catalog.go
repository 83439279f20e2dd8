// Package catalog fetches free-game offers from the external catalogs and
// normalizes their payloads into the common Game shape.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"freegamewatcher/internal/model"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches giveaways from the GamerPower aggregator and free offers
// from the Epic Games Store promotions feed.
type Client struct {
	client        HTTPClient
	aggregatorURL string
	storefrontURL string
	timeout       time.Duration
}

// New creates a Client with the given HTTP client and endpoint URLs.
func New(client HTTPClient, aggregatorURL, storefrontURL string) *Client {
	return &Client{
		client:        client,
		aggregatorURL: aggregatorURL,
		storefrontURL: storefrontURL,
		timeout:       20 * time.Second,
	}
}

// AggregatorItem is one raw giveaway as returned by the aggregator API.
type AggregatorItem struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Worth           string `json:"worth"`
	Platform        string `json:"platform"`
	EndDate         string `json:"end_date"`
	GiveawayURL     string `json:"giveaway_url"`
	OpenGiveawayURL string `json:"open_giveaway_url"`
}

// StorefrontItem is one active free offer extracted from the storefront's
// nested promotions payload.
type StorefrontItem struct {
	ID          string
	Title       string
	ProductSlug string
	StartDate   string
	EndDate     string
}

// FetchAggregator fetches current giveaways, optionally filtered to one
// platform label.
func (c *Client) FetchAggregator(ctx context.Context, platform string) ([]AggregatorItem, error) {
	params := url.Values{}
	if platform != "" {
		params.Set("platform", platform)
	}

	var items []AggregatorItem
	if err := c.getJSON(ctx, c.aggregatorURL, params, &items); err != nil {
		return nil, fmt.Errorf("fetch aggregator: %w", err)
	}
	return items, nil
}

// storefrontResponse mirrors the nested shape of the promotions feed. Every
// level is optional; anything missing simply yields zero offers.
type storefrontResponse struct {
	Data struct {
		SearchStore struct {
			Elements []storefrontElement `json:"elements"`
		} `json:"searchStore"`
	} `json:"data"`
}

type storefrontElement struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ProductSlug string `json:"productSlug"`
	Promotions  *struct {
		PromotionalOffers []struct {
			PromotionalOffers []struct {
				StartDate string `json:"startDate"`
				EndDate   string `json:"endDate"`
			} `json:"promotionalOffers"`
		} `json:"promotionalOffers"`
	} `json:"promotions"`
}

// FetchStorefront fetches the storefront promotions feed and extracts the
// elements that carry at least one active promotional offer, one item per
// offer.
func (c *Client) FetchStorefront(ctx context.Context) ([]StorefrontItem, error) {
	params := url.Values{}
	params.Set("locale", "en-IN")
	params.Set("country", "IN")
	params.Set("allowCountries", "IN")

	var resp storefrontResponse
	if err := c.getJSON(ctx, c.storefrontURL, params, &resp); err != nil {
		return nil, fmt.Errorf("fetch storefront: %w", err)
	}

	var items []StorefrontItem
	for _, el := range resp.Data.SearchStore.Elements {
		if el.Promotions == nil {
			continue
		}
		for _, block := range el.Promotions.PromotionalOffers {
			for _, offer := range block.PromotionalOffers {
				items = append(items, StorefrontItem{
					ID:          el.ID,
					Title:       el.Title,
					ProductSlug: el.ProductSlug,
					StartDate:   offer.StartDate,
					EndDate:     offer.EndDate,
				})
			}
		}
	}
	return items, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, params url.Values, v any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := rawURL
	if len(params) > 0 {
		u = rawURL + "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// NormalizeAggregatorItem maps a raw aggregator giveaway onto the common
// Game shape. A missing id falls back to the title, a missing title becomes
// "Unknown".
func NormalizeAggregatorItem(item AggregatorItem) model.Game {
	id := item.Title
	if item.ID != 0 {
		id = strconv.FormatInt(item.ID, 10)
	}

	title := item.Title
	if title == "" {
		title = "Unknown"
	}

	u := item.GiveawayURL
	if u == "" {
		u = item.OpenGiveawayURL
	}
	if u == "" {
		u = item.Worth
	}

	return model.Game{
		ID:       id,
		Title:    title,
		URL:      u,
		Platform: item.Platform,
		EndsAt:   item.EndDate,
	}
}

// NormalizeStorefrontItem maps a raw storefront offer onto the common Game
// shape. The id falls back to the product slug, then to the title; the URL
// is synthesized from the product slug when present.
func NormalizeStorefrontItem(item StorefrontItem) model.Game {
	id := item.ID
	if id == "" {
		id = item.ProductSlug
	}
	if id == "" {
		id = item.Title
	}

	var u string
	if item.ProductSlug != "" {
		u = "https://www.epicgames.com/store/en-US/p/" + item.ProductSlug
	}

	return model.Game{
		ID:       id,
		Title:    item.Title,
		URL:      u,
		Platform: "epic",
		EndsAt:   item.EndDate,
	}
}
