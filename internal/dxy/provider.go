package dxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is one (price, timestamp) observation from a DXY provider.
type Quote struct {
	Price decimal.Decimal
	At    time.Time
}

// Provider fetches the current USD index level. Implementations are tried in
// order by Service.Refresh; the first success wins.
type Provider interface {
	Name() string
	Fetch(ctx context.Context) (Quote, error)
}

// HTTPProvider polls a REST endpoint returning {"price": <number>, "timestamp": <unix seconds>}.
// It covers both the configured primary and fallback providers: only the base
// URL and API key differ between them.
type HTTPProvider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider constructs an HTTPProvider.
func NewHTTPProvider(name, baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Name identifies the provider for logging.
func (p *HTTPProvider) Name() string { return p.name }

// Fetch issues one GET request and decodes the quote payload.
func (p *HTTPProvider) Fetch(ctx context.Context) (Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("dxy: building request for %s: %w", p.name, err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("dxy: fetching %s: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("dxy: %s returned status %d", p.name, resp.StatusCode)
	}

	var payload struct {
		Price     float64 `json:"price"`
		Timestamp int64   `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Quote{}, fmt.Errorf("dxy: decoding %s reply: %w", p.name, err)
	}

	at := time.Now().UTC()
	if payload.Timestamp > 0 {
		at = time.Unix(payload.Timestamp, 0).UTC()
	}
	return Quote{Price: decimal.NewFromFloat(payload.Price), At: at}, nil
}
