package strategy

import (
	"math"
	"testing"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/indicator"
)

func ptr(v float64) *float64 { return &v }

func TestResolveTargetVolDaily(t *testing.T) {
	tests := []struct {
		name   string
		annual *float64
		daily  *float64
		want   float64
		source string
	}{
		{"annual preferred", ptr(0.16), ptr(0.05), 0.16 / math.Sqrt(252), "annual"},
		{"daily fallback", nil, ptr(0.02), 0.02, "daily"},
		{"nothing set", nil, nil, 0, "none"},
		{"zero annual ignored", ptr(0), ptr(0.02), 0.02, "daily"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, source := ResolveTargetVolDaily(tt.annual, tt.daily, 252)
			if math.Abs(got-tt.want) > 1e-12 || source != tt.source {
				t.Fatalf("got (%v, %q), want (%v, %q)", got, source, tt.want, tt.source)
			}
		})
	}
}

func trendBars(closes []float64) []BarMA {
	bars := make([]BarMA, len(closes))
	for i, c := range closes {
		bars[i] = BarMA{Bar: Bar{Date: day(i), Open: c, High: c + 1, Low: c - 1, Close: c}}
	}
	return bars
}

func TestTargetExposureEnsembleAverage(t *testing.T) {
	cfg := DefaultPerformanceConfig()
	cfg.UseEnsemble = true
	cfg.EnsemblePairs = []WindowPair{{Short: 1, Long: 2}, {Short: 3, Long: 5}}

	// Rising through bar 7, then a dip that flips only the short pair.
	bars := trendBars([]float64{1, 2, 3, 4, 5, 6, 7, 8, 7.9})
	target, _, err := targetExposure(bars, cfg)
	if err != nil {
		t.Fatalf("targetExposure: %v", err)
	}
	if !math.IsNaN(target[0]) {
		t.Fatalf("target[0] = %v, want NaN before any pair is defined", target[0])
	}
	// Bars 1-3: only the short pair has both MAs; the warming long pair
	// must not count against the average.
	for i := 1; i <= 3; i++ {
		if target[i] != 1 {
			t.Fatalf("target[%d] = %v, want 1 while the long pair is still warming up", i, target[i])
		}
	}
	for i := 4; i <= 7; i++ {
		if target[i] != 1 {
			t.Fatalf("target[%d] = %v, want 1 with both pairs bullish", i, target[i])
		}
	}
	if target[8] != 0.5 {
		t.Fatalf("target[8] = %v, want 0.5 with one bullish and one bearish pair", target[8])
	}
}

func TestTargetExposureRegimeFilterZeroesBelowMA(t *testing.T) {
	cfg := DefaultPerformanceConfig()
	cfg.UseEnsemble = true
	cfg.EnsemblePairs = []WindowPair{{Short: 1, Long: 2}}
	cfg.UseRegimeFilter = true
	cfg.RegimeMAWindow = 3

	// Uptrend, then a close back below the regime MA.
	bars := trendBars([]float64{1, 2, 3, 4, 5, 2})
	target, _, err := targetExposure(bars, cfg)
	if err != nil {
		t.Fatalf("targetExposure: %v", err)
	}
	if target[4] != 1 {
		t.Fatalf("target[4] = %v, want 1 while above the regime MA", target[4])
	}
	if target[5] != 0 {
		t.Fatalf("target[5] = %v, want 0 once the close drops below the regime MA", target[5])
	}
}

func TestTargetExposureADXRequiresRegime(t *testing.T) {
	cfg := DefaultPerformanceConfig()
	cfg.UseEnsemble = true
	cfg.EnsemblePairs = []WindowPair{{Short: 1, Long: 2}}
	cfg.UseADXFilter = true

	if _, _, err := targetExposure(trendBars([]float64{1, 2, 3}), cfg); err == nil {
		t.Fatal("expected error when the adx filter is enabled without the regime filter")
	}
}

func TestTargetExposureRejectsEmptyEnsemble(t *testing.T) {
	cfg := DefaultPerformanceConfig()
	cfg.UseEnsemble = true
	if _, _, err := targetExposure(trendBars([]float64{1, 2, 3}), cfg); err == nil {
		t.Fatal("expected error for empty ensemble pairs")
	}
}

func TestTargetExposureVolScalingCapsAtMaxLeverage(t *testing.T) {
	cfg := DefaultPerformanceConfig()
	cfg.UseEnsemble = true
	cfg.EnsemblePairs = []WindowPair{{Short: 1, Long: 2}}
	cfg.UseVolTargeting = true
	cfg.TargetVolDaily = ptr(0.5)
	cfg.VolWindow = 2
	cfg.MaxLeverage = 1.0

	// Narrow bars relative to the target imply a huge scale; the cap
	// keeps it at 1.
	bars := trendBars([]float64{100, 100.1, 100.2, 100.3, 100.4})
	target, info, err := targetExposure(bars, cfg)
	if err != nil {
		t.Fatalf("targetExposure: %v", err)
	}
	if info == nil || info.Source != "daily" {
		t.Fatalf("vol target info = %+v, want daily source", info)
	}
	last := target[len(target)-1]
	if last != 1 {
		t.Fatalf("scaled target = %v, want capped at max leverage 1", last)
	}
}

// Volatility is the average true range relative to the close, so wide
// bars shrink the scale even when close-to-close moves are tiny.
func TestTargetExposureVolScalingUsesTrueRange(t *testing.T) {
	cfg := DefaultPerformanceConfig()
	cfg.UseEnsemble = true
	cfg.EnsemblePairs = []WindowPair{{Short: 1, Long: 2}}
	cfg.UseVolTargeting = true
	cfg.TargetVolDaily = ptr(0.02)
	cfg.VolWindow = 3
	cfg.MaxLeverage = 1.0

	n := 12
	bars := make([]BarMA, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		c := 100 + float64(i)
		bars[i] = BarMA{Bar: Bar{Date: day(i), Open: c, High: c + 10, Low: c - 10, Close: c}}
		highs[i] = c + 10
		lows[i] = c - 10
		closes[i] = c
	}

	target, _, err := targetExposure(bars, cfg)
	if err != nil {
		t.Fatalf("targetExposure: %v", err)
	}
	atr, err := indicator.ATR(highs, lows, closes, cfg.VolWindow)
	if err != nil {
		t.Fatalf("ATR: %v", err)
	}
	for i := 1; i < n; i++ {
		if math.IsNaN(atr[i]) {
			if !math.IsNaN(target[i]) {
				t.Fatalf("target[%d] = %v, want NaN while the vol window fills", i, target[i])
			}
			continue
		}
		want := *cfg.TargetVolDaily / (atr[i] / closes[i])
		if want > cfg.MaxLeverage {
			want = cfg.MaxLeverage
		}
		if math.Abs(target[i]-want) > 1e-12 {
			t.Fatalf("target[%d] = %v, want %v (atr %v over close %v)", i, target[i], want, atr[i], closes[i])
		}
	}
	last := target[n-1]
	if !(last > 0 && last < 0.5) {
		t.Fatalf("final scale = %v, want well below the cap on wide-range bars", last)
	}
}
