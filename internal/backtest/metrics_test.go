package backtest

import (
	"math"
	"testing"
	"time"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/strategy"
)

func day(n int) strategy.Date {
	return strategy.NewDate(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n))
}

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"peak to trough", []float64{1.0, 1.1, 0.99, 1.2}, 1 - 0.99/1.1},
		{"monotone up", []float64{1, 2, 3}, 0},
		{"nan rows skipped", []float64{1, math.NaN(), 0.5}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaxDrawdown(tt.values); !almost(got, tt.want) {
				t.Fatalf("MaxDrawdown = %v, want %v", got, tt.want)
			}
		})
	}
	if got := MaxDrawdown(nil); !math.IsNaN(got) {
		t.Fatalf("MaxDrawdown(nil) = %v, want NaN", got)
	}
}

func TestCAGR(t *testing.T) {
	// Doubling over 252 bars (251 intervals) is slightly above +100%/yr.
	values := make([]float64, 252)
	for i := range values {
		values[i] = 1 + float64(i)/251
	}
	got := CAGR(values, 252)
	want := math.Pow(2, 252.0/251.0) - 1
	if !almost(got, want) {
		t.Fatalf("CAGR = %v, want %v", got, want)
	}
	if !math.IsNaN(CAGR([]float64{1}, 252)) {
		t.Fatal("CAGR of a single point should be NaN")
	}
	if !math.IsNaN(CAGR([]float64{-1, 2}, 252)) {
		t.Fatal("CAGR with a non-positive endpoint should be NaN")
	}
}

func TestSharpeZeroDeviation(t *testing.T) {
	if got := Sharpe([]float64{0.01, 0.01, 0.01}, 252); got != 0 {
		t.Fatalf("Sharpe with zero std = %v, want 0", got)
	}
	if !math.IsNaN(Sharpe([]float64{0.01}, 252)) {
		t.Fatal("Sharpe of a single return should be NaN")
	}
	got := Sharpe([]float64{0.01, -0.01, 0.02}, 252)
	if math.IsNaN(got) || math.IsInf(got, 0) {
		t.Fatalf("Sharpe = %v, want finite", got)
	}
}

func TestCalmarUndefinedWithoutDrawdown(t *testing.T) {
	if !math.IsNaN(Calmar([]float64{1, 2, 3}, 252)) {
		t.Fatal("Calmar with zero drawdown should be NaN")
	}
	got := Calmar([]float64{1, 1.1, 0.99, 1.2}, 252)
	if math.IsNaN(got) {
		t.Fatal("Calmar with real drawdown should be finite")
	}
}

func TestTurnover(t *testing.T) {
	fills := []strategy.Fill{{Notional: 500}, {Notional: 300}}
	if got := Turnover(fills, []float64{1000, 1000}); !almost(got, 0.8) {
		t.Fatalf("Turnover = %v, want 0.8", got)
	}
	if got := Turnover(nil, []float64{1000}); got != 0 {
		t.Fatalf("Turnover with no fills = %v, want 0", got)
	}
	if !math.IsNaN(Turnover(fills, nil)) {
		t.Fatal("Turnover with no equity should be NaN")
	}
	if !math.IsNaN(Turnover(fills, []float64{-5})) {
		t.Fatal("Turnover with non-positive mean equity should be NaN")
	}
}

func TestWinRateAndPLRatio(t *testing.T) {
	trades := []strategy.ClosedTrade{{PnL: 100}, {PnL: -50}, {PnL: 20}, {PnL: -10}}
	if got := WinRate(trades); !almost(got, 0.5) {
		t.Fatalf("WinRate = %v, want 0.5", got)
	}
	if got := PLRatio(trades); !almost(got, 60.0/30.0) {
		t.Fatalf("PLRatio = %v, want 2", got)
	}
	if !math.IsNaN(WinRate(nil)) {
		t.Fatal("WinRate with no trades should be NaN")
	}
	if !math.IsNaN(PLRatio([]strategy.ClosedTrade{{PnL: 5}})) {
		t.Fatal("PLRatio without losses should be NaN")
	}
}

func TestSummarizeSegmentWindows(t *testing.T) {
	details := &strategy.Details{
		Daily: []strategy.DailyRecord{
			{Date: day(0), Value: 1.0, Equity: 1000, Exposure: 0},
			{Date: day(1), Value: 1.1, Equity: 1100, Exposure: 1},
			{Date: day(2), Value: 0.99, Equity: 990, Exposure: 1},
			{Date: day(3), Value: 1.2, Equity: 1200, Exposure: 0},
		},
		Fills: []strategy.Fill{
			{Date: day(1), Notional: 1000},
			{Date: day(3), Notional: 1200},
		},
		ClosedTrades: []strategy.ClosedTrade{
			{ExitDate: day(3), PnL: 200},
		},
	}

	full := SummarizeSegment(details, day(0).Time, day(3).Time, 252)
	if full.Bars != 4 || full.Trades != 1 {
		t.Fatalf("full segment bars/trades = %d/%d, want 4/1", full.Bars, full.Trades)
	}
	if !almost(full.MDD, 1-0.99/1.1) {
		t.Fatalf("full segment mdd = %v", full.MDD)
	}
	if !almost(full.AvgExposure, 0.5) {
		t.Fatalf("avg exposure = %v, want 0.5", full.AvgExposure)
	}

	// The early window excludes the day-3 fill and the only closed trade.
	early := SummarizeSegment(details, day(0).Time, day(1).Time, 252)
	if early.Bars != 2 || early.Trades != 0 {
		t.Fatalf("early segment bars/trades = %d/%d, want 2/0", early.Bars, early.Trades)
	}
	if !almost(early.Turnover, 1000/1050.0) {
		t.Fatalf("early turnover = %v, want %v", early.Turnover, 1000/1050.0)
	}
	if !math.IsNaN(early.WinRate) {
		t.Fatalf("early win rate = %v, want NaN", early.WinRate)
	}

	empty := SummarizeSegment(details, day(10).Time, day(20).Time, 252)
	if empty.Bars != 0 || empty.Trades != 0 {
		t.Fatalf("empty segment bars/trades = %d/%d, want 0/0", empty.Bars, empty.Trades)
	}
	if !math.IsNaN(empty.CAGR) || !math.IsNaN(empty.Turnover) {
		t.Fatalf("empty segment metrics = %+v, want NaN", empty)
	}
}

func TestSummarizeSegmentOpenEnd(t *testing.T) {
	details := &strategy.Details{
		Daily: []strategy.DailyRecord{
			{Date: day(0), Value: 1.0, Equity: 1000},
			{Date: day(1), Value: 1.05, Equity: 1050},
		},
	}
	got := SummarizeSegment(details, day(1).Time, time.Time{}, 252)
	if got.Bars != 1 {
		t.Fatalf("open-ended segment bars = %d, want 1", got.Bars)
	}
}
