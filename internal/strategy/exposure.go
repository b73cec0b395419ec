package strategy

import (
	"fmt"
	"math"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/indicator"
)

// VolTargetInfo reports how the daily volatility target was resolved and
// the sizing parameters in force for a run.
type VolTargetInfo struct {
	Source             string  `json:"source"`
	TargetVolDaily     float64 `json:"target_vol_daily"`
	TargetVolAnnual    float64 `json:"target_vol_annual,omitempty"`
	TradingDaysPerYear int     `json:"trading_days_per_year"`
	VolWindow          int     `json:"vol_window"`
	MaxLeverage        float64 `json:"max_leverage"`
	MinVolFloor        float64 `json:"min_vol_floor"`
}

// ResolveTargetVolDaily converts the configured volatility target to a
// daily figure. An annual target takes precedence over a daily one and
// is de-annualized by sqrt(tradingDays). When neither is set the daily
// target is 0 and volatility scaling is a no-op.
func ResolveTargetVolDaily(annual, daily *float64, tradingDays int) (float64, string) {
	if annual != nil && *annual > 0 {
		return *annual / math.Sqrt(float64(tradingDays)), "annual"
	}
	if daily != nil && *daily > 0 {
		return *daily, "daily"
	}
	return 0, "none"
}

// targetExposure builds the per-bar desired exposure for the advanced
// simulator path: trend score, then multiplicative regime and ADX gates,
// then volatility scaling. The result is aligned 1:1 with bars and is
// NOT yet lagged; the simulator shifts it by one bar before trading.
func targetExposure(bars []BarMA, cfg PerformanceConfig) ([]float64, *VolTargetInfo, error) {
	n := len(bars)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
	}

	exposure := make([]float64, n)
	if cfg.UseEnsemble {
		if len(cfg.EnsemblePairs) == 0 {
			return nil, nil, fmt.Errorf("strategy: ensemble enabled with no window pairs")
		}
		defined := make([]int, n)
		for _, p := range cfg.EnsemblePairs {
			if p.Short < 1 || p.Long < 1 || p.Short >= p.Long {
				return nil, nil, fmt.Errorf("strategy: invalid ensemble pair %d:%d", p.Short, p.Long)
			}
			maS, err := indicator.MA(closes, p.Short, cfg.EnsembleMAType)
			if err != nil {
				return nil, nil, err
			}
			maL, err := indicator.MA(closes, p.Long, cfg.EnsembleMAType)
			if err != nil {
				return nil, nil, err
			}
			for i := 0; i < n; i++ {
				if math.IsNaN(maS[i]) || math.IsNaN(maL[i]) {
					continue
				}
				defined[i]++
				if maS[i] > maL[i] {
					exposure[i] += 1
				}
			}
		}
		// Average over the pairs whose MAs exist on the bar; a bar where
		// no pair is warmed up yet has no trend score at all.
		for i := range exposure {
			if defined[i] == 0 {
				exposure[i] = math.NaN()
				continue
			}
			exposure[i] /= float64(defined[i])
		}
	} else {
		// Binary on/off from the confirmed crossover signals.
		signals, err := GenerateSignals(bars, cfg.ConfirmBars, cfg.MinCrossGap)
		if err != nil {
			return nil, nil, err
		}
		state := 0.0
		next := 0
		for i, b := range bars {
			for next < len(signals) && !signals[next].Date.After(b.Date.Time) {
				if signals[next].Type == SignalBuy {
					state = 1
				} else {
					state = 0
				}
				next++
			}
			exposure[i] = state
		}
	}

	if cfg.UseADXFilter && !cfg.UseRegimeFilter {
		return nil, nil, fmt.Errorf("strategy: adx filter requires the regime filter")
	}

	if cfg.UseRegimeFilter {
		if cfg.RegimeMAWindow < 1 {
			return nil, nil, fmt.Errorf("strategy: regime ma window must be >= 1, got %d", cfg.RegimeMAWindow)
		}
		regime, err := indicator.SMA(closes, cfg.RegimeMAWindow)
		if err != nil {
			return nil, nil, err
		}
		for i := 0; i < n; i++ {
			if !(closes[i] > regime[i]) {
				exposure[i] = 0
			}
		}
	}

	if cfg.UseADXFilter {
		if cfg.ADXThreshold < 0 || cfg.ADXThreshold > 100 {
			return nil, nil, fmt.Errorf("strategy: adx threshold must be in [0, 100], got %v", cfg.ADXThreshold)
		}
		adx, err := indicator.ADX(highs, lows, closes, cfg.ADXWindow)
		if err != nil {
			return nil, nil, err
		}
		for i := 0; i < n; i++ {
			if !(adx[i] >= cfg.ADXThreshold) {
				exposure[i] = 0
			}
		}
	}

	var info *VolTargetInfo
	if cfg.UseVolTargeting {
		if cfg.VolWindow < 1 {
			return nil, nil, fmt.Errorf("strategy: vol window must be >= 1, got %d", cfg.VolWindow)
		}
		if cfg.MinVolFloor <= 0 {
			return nil, nil, fmt.Errorf("strategy: min vol floor must be > 0, got %v", cfg.MinVolFloor)
		}
		if cfg.MaxLeverage < 0 {
			return nil, nil, fmt.Errorf("strategy: max leverage must be >= 0, got %v", cfg.MaxLeverage)
		}
		targetDaily, source := ResolveTargetVolDaily(cfg.TargetVolAnnual, cfg.TargetVolDaily, cfg.TradingDaysPerYear)
		info = &VolTargetInfo{
			Source:             source,
			TargetVolDaily:     targetDaily,
			TradingDaysPerYear: cfg.TradingDaysPerYear,
			VolWindow:          cfg.VolWindow,
			MaxLeverage:        cfg.MaxLeverage,
			MinVolFloor:        cfg.MinVolFloor,
		}
		if cfg.TargetVolAnnual != nil {
			info.TargetVolAnnual = *cfg.TargetVolAnnual
		}
		// Zero target or zero leverage cap disables scaling rather than
		// forcing a flat book.
		if targetDaily > 0 && cfg.MaxLeverage > 0 {
			atr, err := indicator.ATR(highs, lows, closes, cfg.VolWindow)
			if err != nil {
				return nil, nil, err
			}
			// Percentage volatility is ATR over the close, floored at
			// MinVolFloor before scaling.
			for i := 0; i < n; i++ {
				vol := math.Abs(atr[i] / closes[i])
				if math.IsNaN(vol) {
					exposure[i] = math.NaN()
					continue
				}
				if vol < cfg.MinVolFloor {
					vol = cfg.MinVolFloor
				}
				scale := targetDaily / vol
				if scale > cfg.MaxLeverage {
					scale = cfg.MaxLeverage
				}
				exposure[i] *= scale
			}
		}
	}

	return exposure, info, nil
}
