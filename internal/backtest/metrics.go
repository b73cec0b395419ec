// Package backtest evaluates simulator output over in-sample and
// out-of-sample windows and drives variant and grid-search runs.
package backtest

import (
	"math"
	"sort"
	"time"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/strategy"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/util"
)

// SegmentMetrics summarizes one date-bounded evaluation window. Metrics
// that cannot be computed are NaN; Bars and Trades are always defined.
type SegmentMetrics struct {
	Bars        int     `json:"bars"`
	CAGR        float64 `json:"cagr"`
	MDD         float64 `json:"mdd"`
	Sharpe      float64 `json:"sharpe"`
	Calmar      float64 `json:"calmar"`
	Turnover    float64 `json:"turnover"`
	AvgExposure float64 `json:"avg_exposure"`
	Trades      int     `json:"trades"`
	WinRate     float64 `json:"win_rate"`
	PLRatio     float64 `json:"pl_ratio"`
}

func emptySegment() SegmentMetrics {
	nan := math.NaN()
	return SegmentMetrics{
		CAGR: nan, MDD: nan, Sharpe: nan, Calmar: nan,
		Turnover: nan, AvgExposure: nan, WinRate: nan, PLRatio: nan,
	}
}

// SliceDaily returns the daily records with start <= date <= end, sorted
// ascending. A zero end leaves the window open on the right.
func SliceDaily(daily []strategy.DailyRecord, start, end time.Time) []strategy.DailyRecord {
	out := make([]strategy.DailyRecord, 0, len(daily))
	for _, d := range daily {
		if util.DateBetween(d.Date.Time, start, end) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out
}

// MaxDrawdown computes the worst peak-to-trough decline of a value
// series as a non-negative fraction. NaN when no finite values exist.
func MaxDrawdown(values []float64) float64 {
	peak := math.NaN()
	worst := math.NaN()
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(peak) || v > peak {
			peak = v
		}
		dd := v/peak - 1
		if math.IsNaN(worst) || dd < worst {
			worst = dd
		}
	}
	if math.IsNaN(worst) {
		return math.NaN()
	}
	return math.Max(0, -worst)
}

// CAGR annualizes the growth between the first and last finite values
// using (len-1)/tradingDays as the year fraction.
func CAGR(values []float64, tradingDays int) float64 {
	finite := dropNaN(values)
	if len(finite) < 2 || tradingDays <= 0 {
		return math.NaN()
	}
	first, last := finite[0], finite[len(finite)-1]
	if first <= 0 || last <= 0 {
		return math.NaN()
	}
	years := float64(len(finite)-1) / float64(tradingDays)
	return math.Pow(last/first, 1/years) - 1
}

// Sharpe annualizes mean/std of periodic returns with the sample (n-1)
// standard deviation. Zero deviation yields 0, not infinity.
func Sharpe(returns []float64, tradingDays int) float64 {
	finite := dropNaN(returns)
	if len(finite) < 2 || tradingDays <= 0 {
		return math.NaN()
	}
	mean := 0.0
	for _, r := range finite {
		mean += r
	}
	mean /= float64(len(finite))
	ss := 0.0
	for _, r := range finite {
		ss += (r - mean) * (r - mean)
	}
	std := math.Sqrt(ss / float64(len(finite)-1))
	if std <= 0 {
		return 0
	}
	return mean / std * math.Sqrt(float64(tradingDays))
}

// Calmar is CAGR over max drawdown; NaN when either input is NaN or the
// drawdown is zero.
func Calmar(values []float64, tradingDays int) float64 {
	cagr := CAGR(values, tradingDays)
	mdd := MaxDrawdown(values)
	if math.IsNaN(cagr) || math.IsNaN(mdd) || mdd <= 0 {
		return math.NaN()
	}
	return cagr / mdd
}

// Turnover is the sum of absolute fill notionals over mean equity. No
// fills means no turnover; an unusable equity series is NaN.
func Turnover(fills []strategy.Fill, equity []float64) float64 {
	if len(fills) == 0 {
		return 0
	}
	finite := dropNaN(equity)
	if len(finite) == 0 {
		return math.NaN()
	}
	denom := 0.0
	for _, e := range finite {
		denom += e
	}
	denom /= float64(len(finite))
	if denom <= 0 {
		return math.NaN()
	}
	traded := 0.0
	for _, f := range fills {
		if !math.IsNaN(f.Notional) {
			traded += math.Abs(f.Notional)
		}
	}
	return traded / denom
}

// WinRate is the share of closed trades with positive PnL.
func WinRate(trades []strategy.ClosedTrade) float64 {
	valid, wins := 0, 0
	for _, t := range trades {
		if math.IsNaN(t.PnL) {
			continue
		}
		valid++
		if t.PnL > 0 {
			wins++
		}
	}
	if valid == 0 {
		return math.NaN()
	}
	return float64(wins) / float64(valid)
}

// PLRatio is average winning PnL over average losing magnitude; NaN
// unless both wins and losses exist.
func PLRatio(trades []strategy.ClosedTrade) float64 {
	var wins, losses []float64
	for _, t := range trades {
		switch {
		case math.IsNaN(t.PnL):
		case t.PnL > 0:
			wins = append(wins, t.PnL)
		case t.PnL < 0:
			losses = append(losses, t.PnL)
		}
	}
	if len(wins) == 0 || len(losses) == 0 {
		return math.NaN()
	}
	avgWin := avg(wins)
	avgLoss := math.Abs(avg(losses))
	if avgLoss <= 0 {
		return math.NaN()
	}
	return avgWin / avgLoss
}

// SummarizeSegment slices the full backtest log to [start, end] and
// computes the segment metric set. Fills are kept by fill date, closed
// trades by exit date. An empty segment reports zero bars and trades
// with NaN metrics.
func SummarizeSegment(details *strategy.Details, start, end time.Time, tradingDays int) SegmentMetrics {
	if details == nil {
		return emptySegment()
	}
	daily := SliceDaily(details.Daily, start, end)
	if len(daily) == 0 {
		return emptySegment()
	}

	values := make([]float64, len(daily))
	equity := make([]float64, len(daily))
	expSum, expN := 0.0, 0
	for i, d := range daily {
		values[i] = d.Value
		equity[i] = d.Equity
		if !math.IsNaN(d.Exposure) {
			expSum += d.Exposure
			expN++
		}
	}

	// First return is defined as zero, matching a pct-change with the
	// leading gap filled.
	returns := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 && !math.IsNaN(values[i-1]) && !math.IsNaN(values[i]) {
			returns[i] = values[i]/values[i-1] - 1
		}
	}

	var fills []strategy.Fill
	for _, f := range details.Fills {
		if util.DateBetween(f.Date.Time, start, end) {
			fills = append(fills, f)
		}
	}
	var trades []strategy.ClosedTrade
	for _, t := range details.ClosedTrades {
		if util.DateBetween(t.ExitDate.Time, start, end) {
			trades = append(trades, t)
		}
	}

	avgExposure := math.NaN()
	if expN > 0 {
		avgExposure = expSum / float64(expN)
	}

	return SegmentMetrics{
		Bars:        len(daily),
		CAGR:        CAGR(values, tradingDays),
		MDD:         MaxDrawdown(values),
		Sharpe:      Sharpe(returns, tradingDays),
		Calmar:      Calmar(values, tradingDays),
		Turnover:    Turnover(fills, equity),
		AvgExposure: avgExposure,
		Trades:      len(trades),
		WinRate:     WinRate(trades),
		PLRatio:     PLRatio(trades),
	}
}

func dropNaN(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func avg(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
