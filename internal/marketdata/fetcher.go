package marketdata

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/strategy"
	apphttp "github.com/Alwyn-Tan/dma-strategy-backend/pkg/http"
)

// DefaultProviderURL is the daily-quote CSV endpoint used when the
// config does not override it.
const DefaultProviderURL = "https://stooq.com/q/d/l/"

// CSVFetcher pulls daily bars from an HTTP endpoint that answers with a
// price CSV (date,open,high,low,close,volume header, one row per day).
type CSVFetcher struct {
	client  *apphttp.Client
	baseURL string
	suffix  string
}

// FetcherOption configures CSVFetcher.
type FetcherOption func(*CSVFetcher)

// WithSymbolSuffix appends a market suffix to every requested symbol,
// e.g. ".us".
func WithSymbolSuffix(suffix string) FetcherOption {
	return func(f *CSVFetcher) { f.suffix = suffix }
}

func NewCSVFetcher(client *apphttp.Client, baseURL string, opts ...FetcherOption) *CSVFetcher {
	if baseURL == "" {
		baseURL = DefaultProviderURL
	}
	f := &CSVFetcher{client: client, baseURL: baseURL}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchDaily requests daily bars for code. A zero start asks for the
// full history; bounds are applied again client-side so providers that
// ignore them still produce a correct window.
func (f *CSVFetcher) FetchDaily(ctx context.Context, code string, start, end time.Time) ([]strategy.Bar, error) {
	symbol := strings.ToLower(code) + f.suffix
	params := map[string][]string{
		"s": {symbol},
		"i": {"d"},
	}
	if !start.IsZero() {
		params["d1"] = []string{start.Format("20060102")}
	}
	if !end.IsZero() {
		params["d2"] = []string{end.Format("20060102")}
	}

	resp, err := f.client.SendRequest(ctx, &apphttp.RequestOptions{
		Method:      apphttp.MethodGet,
		URL:         f.baseURL,
		QueryParams: params,
	})
	if err != nil {
		return nil, fmt.Errorf("marketdata: fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("marketdata: fetch %s: status %d: %s", symbol, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	bars, err := ParsePriceCSV(resp.Body, symbol)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("marketdata: provider returned no data for %s", symbol)
	}
	return FilterRange(bars, start, end), nil
}
