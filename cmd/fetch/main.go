// Command fetch batch-downloads daily OHLCV history from the remote
// provider and writes canonical per-symbol CSVs to the data directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/marketdata"
	xhttp "github.com/Alwyn-Tan/dma-strategy-backend/pkg/http"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/util"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fetch: %v", err)
	}
}

func run() error {
	var (
		symbols        = flag.String("symbols", "", "comma-separated symbols (required), e.g. AAPL,MSFT,00700.HK")
		canonicalStart = flag.String("canonical-start", "2010-01-01", "download start (YYYY-MM-DD)")
		endDate        = flag.String("end-date", "", "optional download end (YYYY-MM-DD)")
		outputDir      = flag.String("output-dir", "data", "output directory")
		providerURL    = flag.String("provider-url", marketdata.DefaultProviderURL, "daily-quote CSV endpoint")
		symbolSuffix   = flag.String("symbol-suffix", "", "market suffix appended to every symbol, e.g. .us")
		timeout        = flag.Duration("timeout", 60*time.Second, "per-symbol request timeout")
	)
	flag.Parse()

	if strings.TrimSpace(*symbols) == "" {
		return fmt.Errorf("-symbols is required")
	}
	start, err := util.ParseDate(*canonicalStart)
	if err != nil {
		return fmt.Errorf("canonical-start: %w", err)
	}
	var end time.Time
	if *endDate != "" {
		if end, err = util.ParseDate(*endDate); err != nil {
			return fmt.Errorf("end-date: %w", err)
		}
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		return err
	}
	store := marketdata.NewStore(*outputDir)

	var opts []marketdata.FetcherOption
	if *symbolSuffix != "" {
		opts = append(opts, marketdata.WithSymbolSuffix(*symbolSuffix))
	}
	fetcher := marketdata.NewCSVFetcher(xhttp.NewClient(xhttp.WithTimeout(*timeout)), *providerURL, opts...)

	var failures []string
	written := 0
	for _, raw := range strings.Split(*symbols, ",") {
		symbol := strings.TrimSpace(raw)
		if symbol == "" {
			continue
		}
		code, err := marketdata.ValidateCode(symbol)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s(%v)", symbol, err))
			fmt.Fprintf(os.Stderr, "[FAIL] %s: %v\n", symbol, err)
			continue
		}
		code = strings.ToUpper(code)

		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		bars, err := fetcher.FetchDaily(ctx, code, start, end)
		cancel()
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s(%v)", code, err))
			fmt.Fprintf(os.Stderr, "[FAIL] %s: %v\n", code, err)
			continue
		}

		path := store.WritePath(code)
		merged, err := store.MergeWrite(path, nil, bars)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s(%v)", code, err))
			fmt.Fprintf(os.Stderr, "[FAIL] %s: %v\n", code, err)
			continue
		}
		written++
		fmt.Printf("[OK] %s -> %s rows=%d range=%s..%s\n",
			code, path, len(merged),
			merged[0].Date, merged[len(merged)-1].Date)
	}

	fmt.Printf("Done. written=%d failed=%d\n", written, len(failures))
	if len(failures) > 0 {
		return fmt.Errorf("some symbols failed: %s", strings.Join(failures, ", "))
	}
	return nil
}
