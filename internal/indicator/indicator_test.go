package indicator

import (
	"math"
	"testing"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSMA(t *testing.T) {
	out, err := SMA([]float64{1, 2, 3, 4, 5}, 3)
	if err != nil {
		t.Fatalf("SMA: %v", err)
	}
	if !math.IsNaN(out[0]) || !math.IsNaN(out[1]) {
		t.Fatalf("expected NaN warm-up, got %v %v", out[0], out[1])
	}
	for i, want := range []float64{2, 3, 4} {
		if !almost(out[i+2], want) {
			t.Fatalf("out[%d] = %v, want %v", i+2, out[i+2], want)
		}
	}
}

func TestSMASkipsNaNInputs(t *testing.T) {
	out, err := SMA([]float64{1, math.NaN(), 3, 4, 5}, 3)
	if err != nil {
		t.Fatalf("SMA: %v", err)
	}
	// No full window of valid values exists until the NaN leaves the window.
	for i := 0; i < 4; i++ {
		if !math.IsNaN(out[i]) {
			t.Fatalf("out[%d] = %v, want NaN", i, out[i])
		}
	}
	if !almost(out[4], 4) {
		t.Fatalf("out[4] = %v, want 4", out[4])
	}
}

func TestSMAMatchesNaiveRecompute(t *testing.T) {
	values := make([]float64, 200)
	x := 42.0
	for i := range values {
		x = math.Mod(x*1103515245+12345, 1000)
		values[i] = x / 10
	}
	const window = 17
	got, err := SMA(values, window)
	if err != nil {
		t.Fatalf("SMA: %v", err)
	}
	for i := window - 1; i < len(values); i++ {
		var sum float64
		for j := i - window + 1; j <= i; j++ {
			sum += values[j]
		}
		if !almost(got[i], sum/window) {
			t.Fatalf("index %d: rolling %v, naive %v", i, got[i], sum/window)
		}
	}
}

func TestEMAWarmupAndRecursion(t *testing.T) {
	out, err := EMA([]float64{1, 2, 3}, 2)
	if err != nil {
		t.Fatalf("EMA: %v", err)
	}
	if !math.IsNaN(out[0]) {
		t.Fatalf("out[0] = %v, want NaN", out[0])
	}
	// alpha = 2/3, seeded at the first observation.
	if !almost(out[1], 5.0/3.0) || !almost(out[2], 23.0/9.0) {
		t.Fatalf("got %v %v, want 5/3 23/9", out[1], out[2])
	}
}

func TestRMA(t *testing.T) {
	out, err := RMA([]float64{1, 2, 3}, 2)
	if err != nil {
		t.Fatalf("RMA: %v", err)
	}
	if !math.IsNaN(out[0]) || !almost(out[1], 1.5) || !almost(out[2], 2.25) {
		t.Fatalf("got %v, want [NaN 1.5 2.25]", out)
	}
}

func TestWindowValidation(t *testing.T) {
	if _, err := SMA([]float64{1}, 0); err == nil {
		t.Fatal("SMA: expected error for window 0")
	}
	if _, err := EMA([]float64{1}, 0); err == nil {
		t.Fatal("EMA: expected error for window 0")
	}
	if _, err := ATR([]float64{1}, []float64{1}, []float64{1}, 0); err == nil {
		t.Fatal("ATR: expected error for window 0")
	}
}

func TestMADispatch(t *testing.T) {
	sma, err := MA([]float64{1, 2, 3}, 2, SMAType)
	if err != nil {
		t.Fatalf("MA sma: %v", err)
	}
	if !almost(sma[1], 1.5) {
		t.Fatalf("sma[1] = %v, want 1.5", sma[1])
	}
	if _, err := MA([]float64{1}, 1, MAType("wma")); err == nil {
		t.Fatal("expected error for unknown ma type")
	}
}

func TestParseMAType(t *testing.T) {
	for _, s := range []string{"sma", "ema"} {
		if _, err := ParseMAType(s); err != nil {
			t.Fatalf("ParseMAType(%q): %v", s, err)
		}
	}
	if _, err := ParseMAType("SMA"); err == nil {
		t.Fatal("expected error for uppercase type")
	}
}

func TestTrueRangeUsesPrevClose(t *testing.T) {
	high := []float64{10, 11}
	low := []float64{9, 10.5}
	closes := []float64{9.5, 10.8}
	out, err := TrueRange(high, low, closes)
	if err != nil {
		t.Fatalf("TrueRange: %v", err)
	}
	if !almost(out[0], 1) {
		t.Fatalf("out[0] = %v, want 1", out[0])
	}
	// max(|11-10.5|, |11-9.5|, |10.5-9.5|) = 1.5
	if !almost(out[1], 1.5) {
		t.Fatalf("out[1] = %v, want 1.5", out[1])
	}
	if _, err := TrueRange(high, low, []float64{1}); err == nil {
		t.Fatal("expected error for length mismatch")
	}
}

func TestATRConstantRange(t *testing.T) {
	n := 10
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		closes[i] = 10
		high[i] = 11
		low[i] = 9
	}
	out, err := ATR(high, low, closes, 3)
	if err != nil {
		t.Fatalf("ATR: %v", err)
	}
	if !math.IsNaN(out[0]) || !math.IsNaN(out[1]) {
		t.Fatalf("expected NaN warm-up, got %v %v", out[0], out[1])
	}
	for i := 2; i < n; i++ {
		if !almost(out[i], 2) {
			t.Fatalf("out[%d] = %v, want 2", i, out[i])
		}
	}
}

func TestATREmptyInput(t *testing.T) {
	out, err := ATR(nil, nil, nil, 3)
	if err != nil {
		t.Fatalf("ATR: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("len = %d, want 0", len(out))
	}
}

func TestADXBoundsOnUptrend(t *testing.T) {
	n := 40
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100 + float64(i)*2
		high[i] = base + 1
		low[i] = base - 1
		closes[i] = base
	}
	out, err := ADX(high, low, closes, 14)
	if err != nil {
		t.Fatalf("ADX: %v", err)
	}
	if len(out) != n {
		t.Fatalf("len = %d, want %d", len(out), n)
	}
	defined := 0
	for i, v := range out {
		if math.IsNaN(v) {
			continue
		}
		defined++
		if v < 0 || v > 100 {
			t.Fatalf("out[%d] = %v, outside [0, 100]", i, v)
		}
	}
	if defined == 0 {
		t.Fatal("no defined ADX values")
	}
	// A clean uptrend has only +DM, so the smoothed index should end high.
	if out[n-1] < 50 {
		t.Fatalf("final ADX = %v, want strong trend reading", out[n-1])
	}
}
