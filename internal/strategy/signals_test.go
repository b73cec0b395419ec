package strategy

import (
	"math"
	"testing"
	"time"
)

func day(n int) Date {
	return NewDate(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n))
}

func barsFromDiffs(diffs []float64) []BarMA {
	bars := make([]BarMA, len(diffs))
	for i, d := range diffs {
		bars[i] = BarMA{
			Bar:     Bar{Date: day(i), Open: float64(i + 1), High: float64(i + 2), Low: float64(i), Close: float64(i + 1)},
			MAShort: 100 + d,
			MALong:  100,
		}
	}
	return bars
}

func TestCalculateMovingAveragesWarmup(t *testing.T) {
	bars := make([]Bar, 5)
	for i := range bars {
		bars[i] = Bar{Date: day(i), Close: float64(i + 1)}
	}
	out, err := CalculateMovingAverages(bars, 2, 3)
	if err != nil {
		t.Fatalf("CalculateMovingAverages: %v", err)
	}
	if !math.IsNaN(out[0].MAShort) || !math.IsNaN(out[1].MALong) {
		t.Fatalf("expected NaN warm-up rows, got short=%v long=%v", out[0].MAShort, out[1].MALong)
	}
	if out[1].MAShort != 1.5 {
		t.Fatalf("short MA at index 1 = %v, want 1.5", out[1].MAShort)
	}
	if out[4].MALong != 4 {
		t.Fatalf("long MA at index 4 = %v, want 4", out[4].MALong)
	}
}

func TestCalculateMovingAveragesWindowOrder(t *testing.T) {
	if _, err := CalculateMovingAverages([]Bar{{Date: day(0)}}, 5, 5); err == nil {
		t.Fatal("expected error for short >= long")
	}
	if _, err := CalculateMovingAverages([]Bar{{Date: day(0)}}, 0, 5); err == nil {
		t.Fatal("expected error for zero window")
	}
}

func TestGenerateSignalsConfirmation(t *testing.T) {
	bars := barsFromDiffs([]float64{-1, -0.5, 0.5, 1, 1, -0.5, -1})
	signals, err := GenerateSignals(bars, 1, 0)
	if err != nil {
		t.Fatalf("GenerateSignals: %v", err)
	}
	if len(signals) != 2 {
		t.Fatalf("got %d signals, want 2", len(signals))
	}
	if signals[0].Type != SignalBuy || !signals[0].Date.Equal(day(3).Time) {
		t.Fatalf("first signal = %+v, want BUY on %s", signals[0], day(3))
	}
	if signals[0].Price != 4 {
		t.Fatalf("signal price = %v, want close of confirmation bar", signals[0].Price)
	}
	if signals[1].Type != SignalSell || !signals[1].Date.Equal(day(6).Time) {
		t.Fatalf("second signal = %+v, want SELL on %s", signals[1], day(6))
	}
}

func TestGenerateSignalsConfirmationWindowPastEnd(t *testing.T) {
	bars := barsFromDiffs([]float64{-1, 1})
	signals, err := GenerateSignals(bars, 3, 0)
	if err != nil {
		t.Fatalf("GenerateSignals: %v", err)
	}
	if len(signals) != 0 {
		t.Fatalf("got %d signals, want 0 when the window runs past the series", len(signals))
	}
}

func TestGenerateSignalsSuppression(t *testing.T) {
	bars := barsFromDiffs([]float64{-1, 1, -1, 1, 1})
	signals, err := GenerateSignals(bars, 0, 5)
	if err != nil {
		t.Fatalf("GenerateSignals: %v", err)
	}
	if len(signals) != 2 {
		t.Fatalf("got %d signals, want 2 (repeat buy suppressed)", len(signals))
	}
	if signals[0].Type != SignalBuy || signals[1].Type != SignalSell {
		t.Fatalf("signal types = %v, %v", signals[0].Type, signals[1].Type)
	}
}

func TestGenerateSignalsSkipsWarmupRows(t *testing.T) {
	bars := barsFromDiffs([]float64{-1, 1})
	warm := BarMA{Bar: Bar{Date: day(99), Close: 1}, MAShort: math.NaN(), MALong: math.NaN()}
	bars = append([]BarMA{warm}, bars...)
	signals, err := GenerateSignals(bars, 0, 0)
	if err != nil {
		t.Fatalf("GenerateSignals: %v", err)
	}
	if len(signals) != 1 || signals[0].Type != SignalBuy {
		t.Fatalf("got %+v, want one BUY", signals)
	}
}

// A flat tape has identical MAs on every bar, so no crossover can ever
// confirm.
func TestGenerateSignalsFlatSeriesYieldsNone(t *testing.T) {
	bars := make([]Bar, 40)
	for i := range bars {
		bars[i] = Bar{Date: day(i), Open: 50, High: 51, Low: 49, Close: 50}
	}
	withMA, err := CalculateMovingAverages(bars, 5, 20)
	if err != nil {
		t.Fatalf("CalculateMovingAverages: %v", err)
	}
	signals, err := GenerateSignals(withMA, 0, 0)
	if err != nil {
		t.Fatalf("GenerateSignals: %v", err)
	}
	if len(signals) != 0 {
		t.Fatalf("got %d signals on a constant-close series, want 0", len(signals))
	}
}

// Raising the suppression gap can only drop repeat signals, never add
// new ones.
func TestGenerateSignalsSuppressionIsMonotone(t *testing.T) {
	bars := barsFromDiffs([]float64{-1, 1, -1, 1, -1, 1, 1, -1, -1, 1, -1, 1, 1, -1, 1})
	prev := -1
	for _, gap := range []int{0, 1, 2, 3, 5, 8, 20} {
		signals, err := GenerateSignals(bars, 0, gap)
		if err != nil {
			t.Fatalf("GenerateSignals(gap=%d): %v", gap, err)
		}
		if prev >= 0 && len(signals) > prev {
			t.Fatalf("gap %d produced %d signals, more than the %d at the smaller gap", gap, len(signals), prev)
		}
		prev = len(signals)
	}
}

func TestGenerateSignalsRejectsNegativeParams(t *testing.T) {
	bars := barsFromDiffs([]float64{-1, 1})
	if _, err := GenerateSignals(bars, -1, 0); err == nil {
		t.Fatal("expected error for negative confirm bars")
	}
	if _, err := GenerateSignals(bars, 0, -1); err == nil {
		t.Fatal("expected error for negative min cross gap")
	}
}
