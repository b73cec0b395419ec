// Package indicator provides the rolling-window indicators used by the
// strategy engine: simple and exponential moving averages, Wilder's
// smoothing, Average True Range and the Average Directional Index.
//
// All functions are pure and operate on parallel float64 slices aligned
// with the price series. math.NaN() marks undefined values: every
// indicator is undefined for its warm-up prefix, and downstream code is
// expected to treat NaN as "no value" rather than an error.
package indicator

import (
	"fmt"
	"math"
)

// MAType selects the moving-average flavour for dispatching functions.
type MAType string

const (
	SMAType MAType = "sma"
	EMAType MAType = "ema"
)

// ParseMAType validates a moving-average type string.
func ParseMAType(s string) (MAType, error) {
	switch MAType(s) {
	case SMAType, EMAType:
		return MAType(s), nil
	}
	return "", fmt.Errorf("ma_type must be %q or %q, got %q", SMAType, EMAType, s)
}

// SMA computes a simple moving average over exactly window trailing
// observations. Output is NaN until window non-NaN values are available
// in the trailing window.
func SMA(values []float64, window int) ([]float64, error) {
	if window < 1 {
		return nil, fmt.Errorf("window must be >= 1, got %d", window)
	}
	out := make([]float64, len(values))
	var sum float64
	valid := 0
	for i, v := range values {
		if !math.IsNaN(v) {
			sum += v
			valid++
		}
		if i >= window {
			old := values[i-window]
			if !math.IsNaN(old) {
				sum -= old
				valid--
			}
		}
		if i >= window-1 && valid == window {
			out[i] = sum / float64(window)
		} else {
			out[i] = math.NaN()
		}
	}
	return out, nil
}

// EMA computes an exponential moving average with smoothing equivalent to
// span=window (alpha = 2/(window+1)). The recursion is seeded at the first
// observation, but outputs stay NaN until window observations have been
// consumed, so the warm-up prefix is undefined rather than merely noisy.
func EMA(values []float64, window int) ([]float64, error) {
	if window < 1 {
		return nil, fmt.Errorf("window must be >= 1, got %d", window)
	}
	alpha := 2.0 / (float64(window) + 1.0)
	return ewm(values, alpha, window), nil
}

// RMA computes Wilder's smoothing: an EMA with alpha = 1/window. ATR and
// ADX are built on it.
func RMA(values []float64, window int) ([]float64, error) {
	if window < 1 {
		return nil, fmt.Errorf("window must be >= 1, got %d", window)
	}
	return ewm(values, 1.0/float64(window), window), nil
}

// ewm is the shared recursive smoother. NaN inputs carry the previous
// smoothed value forward and do not count toward the minimum-periods
// requirement.
func ewm(values []float64, alpha float64, minPeriods int) []float64 {
	out := make([]float64, len(values))
	prev := math.NaN()
	seen := 0
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		seen++
		if math.IsNaN(prev) {
			prev = v
		} else {
			prev = prev + alpha*(v-prev)
		}
		if seen >= minPeriods {
			out[i] = prev
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// MA dispatches to SMA or EMA based on maType.
func MA(values []float64, window int, maType MAType) ([]float64, error) {
	switch maType {
	case SMAType:
		return SMA(values, window)
	case EMAType:
		return EMA(values, window)
	}
	return nil, fmt.Errorf("ma_type must be %q or %q, got %q", SMAType, EMAType, maType)
}

// TrueRange computes the per-bar true range:
// max(|high-low|, |high-prevClose|, |low-prevClose|). The first bar has no
// previous close, so the prev-close terms drop out and the first true
// range is just |high-low|.
func TrueRange(high, low, closes []float64) ([]float64, error) {
	if len(high) != len(low) || len(low) != len(closes) {
		return nil, fmt.Errorf("high/low/close length mismatch: %d/%d/%d", len(high), len(low), len(closes))
	}
	out := make([]float64, len(closes))
	for i := range closes {
		tr := math.Abs(high[i] - low[i])
		if i > 0 && !math.IsNaN(closes[i-1]) {
			tr = math.Max(tr, math.Abs(high[i]-closes[i-1]))
			tr = math.Max(tr, math.Abs(low[i]-closes[i-1]))
		}
		out[i] = tr
	}
	return out, nil
}

// ATR computes the Average True Range: true range smoothed with RMA(window).
// Empty input yields an empty series.
func ATR(high, low, closes []float64, window int) ([]float64, error) {
	if window < 1 {
		return nil, fmt.Errorf("window must be >= 1, got %d", window)
	}
	if len(closes) == 0 {
		return []float64{}, nil
	}
	tr, err := TrueRange(high, low, closes)
	if err != nil {
		return nil, err
	}
	return RMA(tr, window)
}

// ADX computes the Average Directional Index. Directional movement is
// smoothed with RMA(window) and normalized by ATR to form +DI and -DI;
// bars where ATR is zero or undefined produce undefined DI ratios. The
// DX series treats a zero DI sum as 0 before the final smoothing, so the
// warm-up prefix never poisons later values with NaN. Output, wherever
// defined, lies within [0, 100].
func ADX(high, low, closes []float64, window int) ([]float64, error) {
	if window < 1 {
		return nil, fmt.Errorf("window must be >= 1, got %d", window)
	}
	if len(closes) == 0 {
		return []float64{}, nil
	}

	n := len(closes)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	atr, err := ATR(high, low, closes, window)
	if err != nil {
		return nil, err
	}
	plusSm, err := RMA(plusDM, window)
	if err != nil {
		return nil, err
	}
	minusSm, err := RMA(minusDM, window)
	if err != nil {
		return nil, err
	}

	dx := make([]float64, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(atr[i]) || atr[i] <= 0 || math.IsNaN(plusSm[i]) || math.IsNaN(minusSm[i]) {
			dx[i] = 0
			continue
		}
		plusDI := 100.0 * plusSm[i] / atr[i]
		minusDI := 100.0 * minusSm[i] / atr[i]
		denom := plusDI + minusDI
		if denom == 0 {
			dx[i] = 0
			continue
		}
		dx[i] = 100.0 * math.Abs(plusDI-minusDI) / denom
	}

	return RMA(dx, window)
}
