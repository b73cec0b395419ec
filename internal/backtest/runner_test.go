package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/strategy"
)

type staticSource map[string][]strategy.Bar

func (s staticSource) Bars(_ context.Context, code string) ([]strategy.Bar, error) {
	return s[code], nil
}

// syntheticBars builds a deterministic oscillating uptrend long enough
// to produce crossovers in both segments.
func syntheticBars(n int) []strategy.Bar {
	bars := make([]strategy.Bar, n)
	start := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		price := 100 + 0.05*float64(i) + 10*math.Sin(float64(i)/15)
		bars[i] = strategy.Bar{
			Date:   strategy.NewDate(start.AddDate(0, 0, i)),
			Open:   price,
			High:   price + 1,
			Low:    price - 1,
			Close:  price + 0.5,
			Volume: 1000,
		}
	}
	return bars
}

func testRunConfig(bars []strategy.Bar) RunConfig {
	cfg := DefaultRunConfig()
	cfg.RunID = "test"
	cfg.Symbols = []string{"AAPL"}
	cfg.Variants = []string{VariantBaseline}
	cfg.ISStart = bars[0].Date.Time
	cfg.ISEnd = bars[len(bars)/2].Date.Time
	cfg.OOSStart = bars[len(bars)/2+1].Date.Time
	return cfg
}

func TestRunnerBaselineEvaluatesBothSegments(t *testing.T) {
	bars := syntheticBars(400)
	cfg := testRunConfig(bars)
	r, err := NewRunner(cfg, staticSource{"AAPL": bars}, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	results, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	res := results[0]
	if res.Code != "AAPL" || res.Variant != VariantBaseline {
		t.Fatalf("result identity = %s/%s", res.Code, res.Variant)
	}
	if res.IS.Bars == 0 || res.OOS.Bars == 0 {
		t.Fatalf("segment bars = %d/%d, want both non-zero", res.IS.Bars, res.OOS.Bars)
	}
	if res.IS.Bars+res.OOS.Bars != 400 {
		t.Fatalf("segments cover %d bars, want 400", res.IS.Bars+res.OOS.Bars)
	}
	if res.Details == nil {
		t.Fatal("expected details for artifact output")
	}
}

func TestRunnerGridSearchPicksFromGrid(t *testing.T) {
	bars := syntheticBars(400)
	cfg := testRunConfig(bars)
	cfg.GridSearch = true
	cfg.ShortGrid = []int{5, 10}
	cfg.LongGrid = []int{20, 40}
	cfg.Concurrency = 2

	r, err := NewRunner(cfg, staticSource{"AAPL": bars}, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	results, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	res := results[0]
	if len(res.Grid) != 4 {
		t.Fatalf("got %d grid rows, want 4", len(res.Grid))
	}
	found := false
	for _, g := range res.Grid {
		if g.ShortWindow == res.ShortWindow && g.LongWindow == res.LongWindow {
			found = true
		}
	}
	if !found {
		t.Fatalf("chosen windows %d/%d not present in grid", res.ShortWindow, res.LongWindow)
	}
	for i := 1; i < len(res.Grid); i++ {
		prev, cur := res.Grid[i-1], res.Grid[i]
		if cur.ShortWindow < prev.ShortWindow ||
			(cur.ShortWindow == prev.ShortWindow && cur.LongWindow < prev.LongWindow) {
			t.Fatal("grid rows are not sorted by window pair")
		}
	}
}

func TestRunnerRejectsEmptySegments(t *testing.T) {
	bars := syntheticBars(100)
	cfg := testRunConfig(bars)
	// Move the whole split before the data so both segments are empty.
	cfg.ISStart = bars[0].Date.AddDate(-2, 0, 0)
	cfg.ISEnd = bars[0].Date.AddDate(-1, -6, 0)
	cfg.OOSStart = bars[0].Date.AddDate(-1, -5, 0)
	cfg.OOSEnd = bars[0].Date.AddDate(-1, 0, 0)

	r, err := NewRunner(cfg, staticSource{"AAPL": bars}, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if _, err := r.Run(context.Background()); err == nil {
		t.Fatal("expected error when the requested range has no rows")
	}
}

func TestRunnerAllowEmptyOOS(t *testing.T) {
	bars := syntheticBars(100)
	cfg := testRunConfig(bars)
	// OOS window starts after the last bar.
	cfg.ISEnd = bars[98].Date.Time
	cfg.OOSStart = bars[99].Date.AddDate(0, 1, 0)
	cfg.OOSEnd = bars[99].Date.AddDate(0, 2, 0)

	r, err := NewRunner(cfg, staticSource{"AAPL": bars}, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	if _, err := r.Run(context.Background()); err == nil {
		t.Fatal("expected error for empty out-of-sample segment")
	}

	cfg.AllowEmptyOOS = true
	r, err = NewRunner(cfg, staticSource{"AAPL": bars}, nil)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	results, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run with AllowEmptyOOS: %v", err)
	}
	if results[0].OOS.Bars != 0 {
		t.Fatalf("oos bars = %d, want 0", results[0].OOS.Bars)
	}
}

func TestRunConfigValidation(t *testing.T) {
	bars := syntheticBars(10)
	cfg := testRunConfig(bars)
	cfg.Variants = []string{"bogus"}
	if _, err := NewRunner(cfg, staticSource{}, nil); err == nil {
		t.Fatal("expected error for unknown variant")
	}

	cfg = testRunConfig(bars)
	cfg.OOSStart = cfg.ISEnd
	if _, err := NewRunner(cfg, staticSource{}, nil); err == nil {
		t.Fatal("expected error when is_end is not before oos_start")
	}

	cfg = testRunConfig(bars)
	cfg.SearchMetric = "vibes"
	if _, err := NewRunner(cfg, staticSource{}, nil); err == nil {
		t.Fatal("expected error for unknown search metric")
	}
}
