package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Amenzel91/catalyst-bot-sub003/internal/domain"
)

// HTTPProvider fetches quotes from a JSON quote API:
//
//	GET {base}/v1/quote?ticker=ABCD
//	{"ticker": "ABCD", "price": "10.42", "as_of": "2026-03-02T15:04:05Z"}
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider creates a provider for the quote API at baseURL. Callers
// bound each request through ctx; the embedded timeout is a backstop.
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type quotePayload struct {
	Ticker string          `json:"ticker"`
	Price  decimal.Decimal `json:"price"`
	AsOf   time.Time       `json:"as_of"`
}

// GetPrice fetches the current quote for ticker. A missing ticker or an
// unusable payload is reported as domain.ErrPriceUnavailable.
func (p *HTTPProvider) GetPrice(ctx context.Context, ticker string) (domain.Quote, error) {
	endpoint := fmt.Sprintf("%s/v1/quote?ticker=%s", p.baseURL, url.QueryEscape(ticker))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("marketdata: create request for %s: %w", ticker, err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("marketdata: fetch quote %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Quote{}, fmt.Errorf("marketdata: quote %s: %w", ticker, domain.ErrPriceUnavailable)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.Quote{}, fmt.Errorf("marketdata: quote %s: unexpected status %d: %s",
			ticker, resp.StatusCode, string(body))
	}

	var payload quotePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Quote{}, fmt.Errorf("marketdata: decode quote %s: %w", ticker, err)
	}
	if !payload.Price.IsPositive() {
		return domain.Quote{}, fmt.Errorf("marketdata: quote %s has price %s: %w",
			ticker, payload.Price, domain.ErrPriceUnavailable)
	}

	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	return domain.Quote{Ticker: ticker, Price: payload.Price, AsOf: asOf}, nil
}
