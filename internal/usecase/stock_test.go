package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/domain/models"
	"github.com/Alwyn-Tan/dma-strategy-backend/internal/marketdata"
	"github.com/Alwyn-Tan/dma-strategy-backend/internal/strategy"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/cache"
	apphttp "github.com/Alwyn-Tan/dma-strategy-backend/pkg/http"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/logger"
)

func testBars(closes []float64) []strategy.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]strategy.Bar, len(closes))
	for i, c := range closes {
		bars[i] = strategy.Bar{
			Date:   strategy.NewDate(start.AddDate(0, 0, i)),
			Open:   c,
			High:   c + 0.5,
			Low:    c - 0.5,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

func newAnalytics(t *testing.T, bars []strategy.Bar) *StockAnalytics {
	t.Helper()
	dir := t.TempDir()
	store := marketdata.NewStore(dir)
	if _, err := store.MergeWrite(store.WritePath("AAPL"), nil, bars); err != nil {
		t.Fatalf("seed csv: %v", err)
	}
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	svc := marketdata.NewService(marketdata.Config{DataDir: dir}, store, nil, cache.NewMemoryCache(), log)
	return NewStockAnalytics(svc, nil, log)
}

func upDownCloses() []float64 {
	// downtrend then recovery then decline again: one buy cross and one
	// sell cross for short=2 long=3
	return []float64{10, 9, 8, 7, 6, 7, 9, 11, 12, 11, 9, 7, 6, 5, 6, 8, 10}
}

func baseQuery() models.StockQuery {
	return models.StockQuery{
		Code:           "AAPL",
		ShortWindow:    2,
		LongWindow:     3,
		StrategyMode:   "basic",
		EnsemblePairs:  "2:3",
		EnsembleMAType: "sma",
		RegimeMAWindow: 3,
		ADXWindow:      3,
		ADXThreshold:   20,
		TargetVol:      0.02,
		VolWindow:      3,
		MaxLeverage:    1,
		MinVolFloor:    1e-6,
		ChandelierK:    3,
		VolStopATRMult: 2,
	}
}

func TestStockDataRowsAndWarmup(t *testing.T) {
	uc := newAnalytics(t, testBars(upDownCloses()))
	q := baseQuery()

	res, err := uc.StockData(context.Background(), &q)
	if err != nil {
		t.Fatalf("StockData: %v", err)
	}
	if len(res.Data) != len(upDownCloses()) {
		t.Fatalf("rows = %d, want %d", len(res.Data), len(upDownCloses()))
	}
	if res.Data[0].MAShort != nil || res.Data[0].MALong != nil {
		t.Fatal("first row should have null moving averages")
	}
	if res.Data[1].MAShort == nil || res.Data[1].MALong != nil {
		t.Fatal("second row should have short MA only")
	}
	if res.Data[2].MALong == nil {
		t.Fatal("third row should have the long MA")
	}
	got := *res.Data[1].MAShort
	if math.Abs(got-9.5) > 1e-12 {
		t.Fatalf("ma_short[1] = %v, want 9.5", got)
	}
	if res.Performance != nil {
		t.Fatal("performance should be omitted unless requested")
	}
	if res.Meta == nil || res.Meta.Code != "AAPL" {
		t.Fatalf("meta = %+v", res.Meta)
	}
	if res.Meta.Assumptions != nil {
		t.Fatal("assumptions belong to performance responses only")
	}
}

func TestStockDataIncludePerformance(t *testing.T) {
	uc := newAnalytics(t, testBars(upDownCloses()))
	q := baseQuery()
	q.IncludePerformance = true

	res, err := uc.StockData(context.Background(), &q)
	if err != nil {
		t.Fatalf("StockData: %v", err)
	}
	if res.Performance == nil {
		t.Fatal("expected a performance payload")
	}
	if len(res.Performance.Strategy) != len(res.Data) || len(res.Performance.Benchmark) != len(res.Data) {
		t.Fatalf("series lengths %d/%d, want %d",
			len(res.Performance.Strategy), len(res.Performance.Benchmark), len(res.Data))
	}
	a := res.Meta.Assumptions
	if a == nil {
		t.Fatal("expected assumptions on a performance response")
	}
	if a.Fill != "next_open" || a.InitialCapital != 100 || !a.AllowFractional {
		t.Fatalf("assumptions = %+v", a)
	}
	if a.Strategy != nil {
		t.Fatal("basic mode should not attach strategy assumptions")
	}
}

func TestStockDataAdvancedMode(t *testing.T) {
	uc := newAnalytics(t, testBars(upDownCloses()))
	q := baseQuery()
	q.IncludePerformance = true
	q.StrategyMode = "advanced"

	res, err := uc.StockData(context.Background(), &q)
	if err != nil {
		t.Fatalf("StockData advanced: %v", err)
	}
	if res.Meta.Assumptions == nil || res.Meta.Assumptions.Strategy == nil {
		t.Fatal("advanced mode should attach strategy assumptions")
	}
	if got := res.Meta.Assumptions.Strategy.Ensemble.Pairs; len(got) != 1 || got[0] != (strategy.WindowPair{Short: 2, Long: 3}) {
		t.Fatalf("ensemble pairs = %v", got)
	}

	q.EnsemblePairs = ""
	if _, err := uc.StockData(context.Background(), &q); err == nil {
		t.Fatal("advanced mode without ensemble pairs should fail")
	}
}

func TestStockDataUnknownCode(t *testing.T) {
	uc := newAnalytics(t, testBars(upDownCloses()))
	q := baseQuery()
	q.Code = "TSLA"

	_, err := uc.StockData(context.Background(), &q)
	appErr, ok := err.(*apphttp.AppError)
	if !ok || appErr.Status != 404 {
		t.Fatalf("err = %v, want a 404 app error", err)
	}
}

func TestSignalsFilterSortLimit(t *testing.T) {
	uc := newAnalytics(t, testBars(upDownCloses()))
	q := &models.SignalsQuery{
		StockQuery:       baseQuery(),
		FilterSignalType: "all",
		FilterSort:       "desc",
	}

	res, err := uc.Signals(context.Background(), q)
	if err != nil {
		t.Fatalf("Signals: %v", err)
	}
	if res.Meta.GeneratedCount == 0 || res.Meta.ReturnedCount != len(res.Data) {
		t.Fatalf("meta = %+v with %d rows", res.Meta, len(res.Data))
	}
	for i := 1; i < len(res.Data); i++ {
		if res.Data[i].Date.After(res.Data[i-1].Date.Time) {
			t.Fatal("desc sort violated")
		}
	}
	if res.Meta.DataMeta != nil {
		t.Fatal("data_meta should only appear with include_meta")
	}

	q.FilterSignalType = "BUY"
	q.FilterSort = "asc"
	q.FilterLimit = 1
	q.IncludeMeta = true
	res, err = uc.Signals(context.Background(), q)
	if err != nil {
		t.Fatalf("Signals filtered: %v", err)
	}
	if len(res.Data) != 1 || res.Data[0].Type != strategy.SignalBuy {
		t.Fatalf("filtered signals = %+v", res.Data)
	}
	if res.Meta.DataMeta == nil {
		t.Fatal("expected data_meta with include_meta")
	}
	if res.Meta.Params.FilterSignalType != "BUY" || res.Meta.Params.FilterLimit != 1 {
		t.Fatalf("params = %+v", res.Meta.Params)
	}
}

func TestCodesListing(t *testing.T) {
	uc := newAnalytics(t, testBars(upDownCloses()))
	items, err := uc.Codes(context.Background())
	if err != nil {
		t.Fatalf("Codes: %v", err)
	}
	if len(items) != 1 || items[0].Code != "AAPL" || items[0].File != "AAPL.csv" {
		t.Fatalf("items = %+v", items)
	}
}
