package strategy

import (
	"fmt"
	"math"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/indicator"
)

// PerformanceConfig parameterizes a single simulator run. The zero
// value is not usable; start from DefaultPerformanceConfig.
type PerformanceConfig struct {
	InitialCapital  float64
	FeeRate         float64
	SlippageRate    float64
	AllowFractional bool
	ConfirmBars     int
	MinCrossGap     int
	ReturnDetails   bool

	UseEnsemble    bool
	EnsemblePairs  []WindowPair
	EnsembleMAType indicator.MAType

	UseRegimeFilter bool
	RegimeMAWindow  int

	UseADXFilter bool
	ADXWindow    int
	ADXThreshold float64

	UseVolTargeting    bool
	TargetVolAnnual    *float64
	TargetVolDaily     *float64
	TradingDaysPerYear int
	VolWindow          int
	MaxLeverage        float64
	MinVolFloor        float64

	UseChandelierStop bool
	ChandelierK       float64
	StopATRWindow     int

	UseVolStop     bool
	VolStopATRMult float64
}

// DefaultPerformanceConfig returns the baseline configuration with every
// advanced feature disabled.
func DefaultPerformanceConfig() PerformanceConfig {
	return PerformanceConfig{
		InitialCapital:     1_000_000,
		FeeRate:            0.0005,
		SlippageRate:       0.0005,
		AllowFractional:    false,
		ConfirmBars:        0,
		MinCrossGap:        0,
		EnsembleMAType:     indicator.SMAType,
		RegimeMAWindow:     200,
		ADXWindow:          14,
		ADXThreshold:       20,
		TradingDaysPerYear: 252,
		VolWindow:          20,
		MaxLeverage:        1.0,
		MinVolFloor:        1e-4,
		ChandelierK:        3.0,
		StopATRWindow:      14,
		VolStopATRMult:     2.5,
	}
}

func (c PerformanceConfig) advanced() bool {
	return c.UseEnsemble || c.UseRegimeFilter || c.UseADXFilter ||
		c.UseVolTargeting || c.UseChandelierStop || c.UseVolStop
}

func (c PerformanceConfig) validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("strategy: initial capital must be > 0, got %v", c.InitialCapital)
	}
	if c.FeeRate < 0 || c.SlippageRate < 0 {
		return fmt.Errorf("strategy: fee and slippage rates must be >= 0")
	}
	if c.TradingDaysPerYear < 1 {
		return fmt.Errorf("strategy: trading days per year must be >= 1, got %d", c.TradingDaysPerYear)
	}
	return nil
}

// book tracks the open position and the current trade across the bar
// loop.
type book struct {
	cash   float64
	shares float64

	entryPrice float64
	highMax    float64

	entryDate    Date
	buyCost      float64
	sellProceeds float64
	fillsInTrade int
}

type recorder struct {
	enabled bool
	details *Details
}

func (r *recorder) fill(f Fill) {
	if r.enabled {
		r.details.Fills = append(r.details.Fills, f)
	}
}

func (r *recorder) daily(d DailyRecord) {
	if r.enabled {
		r.details.Daily = append(r.details.Daily, d)
	}
}

func (r *recorder) closeTrade(b *book, exit Date) {
	if r.enabled {
		pnl := b.sellProceeds - b.buyCost
		pct := math.NaN()
		if b.buyCost > 0 {
			pct = pnl / b.buyCost
		}
		r.details.ClosedTrades = append(r.details.ClosedTrades, ClosedTrade{
			EntryDate:    b.entryDate,
			ExitDate:     exit,
			PnL:          pnl,
			PnLPct:       pct,
			BuyCost:      b.buyCost,
			SellProceeds: b.sellProceeds,
			Fills:        b.fillsInTrade,
		})
	}
	b.entryPrice = 0
	b.highMax = 0
	b.buyCost = 0
	b.sellProceeds = 0
	b.fillsInTrade = 0
}

// buy executes a purchase of qty shares at openPrice with slippage and
// fees applied on top, and debits cash.
func (b *book) buy(r *recorder, date Date, qty, openPrice, slipRate, feeRate float64, reason FillReason) {
	fillPrice := openPrice * (1 + slipRate)
	notional := qty * fillPrice
	fee := notional * feeRate
	b.cash -= notional + fee
	if b.shares == 0 {
		b.entryDate = date
		b.entryPrice = fillPrice
	}
	b.shares += qty
	b.buyCost += notional + fee
	b.fillsInTrade++
	r.fill(Fill{
		Date:      date,
		Side:      SignalBuy,
		Quantity:  qty,
		OpenPrice: openPrice,
		FillPrice: fillPrice,
		Notional:  notional,
		Fee:       fee,
		Slippage:  qty * openPrice * slipRate,
		CashDelta: -(notional + fee),
		Reason:    reason,
	})
}

// sell executes a sale of qty shares at refPrice with slippage and fees
// deducted, and credits cash. Returns true when the book went flat.
func (b *book) sell(r *recorder, date Date, qty, refPrice, slipRate, feeRate float64, reason FillReason) bool {
	fillPrice := refPrice * (1 - slipRate)
	notional := qty * fillPrice
	fee := notional * feeRate
	b.cash += notional - fee
	b.shares -= qty
	b.sellProceeds += notional - fee
	b.fillsInTrade++
	r.fill(Fill{
		Date:      date,
		Side:      SignalSell,
		Quantity:  qty,
		OpenPrice: refPrice,
		FillPrice: fillPrice,
		Notional:  notional,
		Fee:       fee,
		Slippage:  qty * refPrice * slipRate,
		CashDelta: notional - fee,
		Reason:    reason,
	})
	if b.shares <= 1e-12 {
		b.shares = 0
		r.closeTrade(b, date)
		return true
	}
	return false
}

// CalculatePerformance runs the portfolio simulation over bars and
// returns strategy and benchmark value series normalized to 1.0 at the
// start, with fills, closed trades and daily records when
// cfg.ReturnDetails is set.
//
// With every advanced feature disabled the simulator is strictly binary:
// each confirmed signal triggers one all-in buy or all-out sell at the
// next bar's open, at most one action per bar. With any advanced feature
// enabled it instead rebalances each bar's open toward the previous
// bar's target exposure and evaluates protective stops against the bar's
// low.
func CalculatePerformance(bars []BarMA, cfg PerformanceConfig) (*Performance, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Rows without a usable open or close cannot be traded or valued.
	clean := make([]BarMA, 0, len(bars))
	for _, b := range bars {
		if math.IsNaN(b.Open) || math.IsNaN(b.Close) {
			continue
		}
		clean = append(clean, b)
	}

	perf := &Performance{Strategy: []Point{}, Benchmark: []Point{}}
	rec := &recorder{enabled: cfg.ReturnDetails}
	if cfg.ReturnDetails {
		rec.details = &Details{Daily: []DailyRecord{}, Fills: []Fill{}, ClosedTrades: []ClosedTrade{}}
		perf.Details = rec.details
	}
	if len(clean) == 0 {
		return perf, nil
	}

	if cfg.advanced() {
		if err := runAdvanced(clean, cfg, perf, rec); err != nil {
			return nil, err
		}
		return perf, nil
	}
	if err := runBasic(clean, cfg, perf, rec); err != nil {
		return nil, err
	}
	return perf, nil
}

func runBasic(bars []BarMA, cfg PerformanceConfig, perf *Performance, rec *recorder) error {
	signals, err := GenerateSignals(bars, cfg.ConfirmBars, cfg.MinCrossGap)
	if err != nil {
		return err
	}

	// Each signal executes at the open of the bar after its confirmation
	// bar; at most one action per bar, first writer wins. Signals whose
	// execution bar falls past the end of the series are dropped.
	byDate := make(map[string]int, len(bars))
	for i, b := range bars {
		byDate[b.Date.String()] = i
	}
	pending := make(map[int]SignalType)
	for _, s := range signals {
		idx, ok := byDate[s.Date.String()]
		if !ok || idx+1 >= len(bars) {
			continue
		}
		if _, taken := pending[idx+1]; !taken {
			pending[idx+1] = s.Type
		}
	}

	b := &book{cash: cfg.InitialCapital}
	firstClose := bars[0].Close
	for i, bar := range bars {
		if action, ok := pending[i]; ok && bar.Open > 0 {
			switch action {
			case SignalBuy:
				if b.shares == 0 && b.cash > 0 {
					unitCost := bar.Open * (1 + cfg.SlippageRate) * (1 + cfg.FeeRate)
					qty := b.cash / unitCost
					if !cfg.AllowFractional {
						qty = math.Floor(qty)
					}
					if qty > 0 {
						b.buy(rec, bar.Date, qty, bar.Open, cfg.SlippageRate, cfg.FeeRate, FillReasonSignal)
					}
				}
			case SignalSell:
				if b.shares > 0 {
					b.sell(rec, bar.Date, b.shares, bar.Open, cfg.SlippageRate, cfg.FeeRate, FillReasonSignal)
				}
			}
		}
		held := 0.0
		if b.shares > 0 {
			held = 1
		}
		recordBar(perf, rec, b, bar, cfg.InitialCapital, firstClose, held)
	}
	return nil
}

func runAdvanced(bars []BarMA, cfg PerformanceConfig, perf *Performance, rec *recorder) error {
	target, volInfo, err := targetExposure(bars, cfg)
	if err != nil {
		return err
	}
	if rec.enabled {
		rec.details.VolTargeting = volInfo
	}

	// Decisions use information through the prior bar only: the target
	// applied on bar i is the exposure computed on bar i-1.
	desired := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		if v := target[i-1]; !math.IsNaN(v) {
			desired[i] = v
		}
	}

	useStops := cfg.UseChandelierStop || cfg.UseVolStop
	var atr []float64
	if useStops {
		if cfg.StopATRWindow < 1 {
			return fmt.Errorf("strategy: stop atr window must be >= 1, got %d", cfg.StopATRWindow)
		}
		highs := make([]float64, len(bars))
		lows := make([]float64, len(bars))
		closes := make([]float64, len(bars))
		for i, b := range bars {
			highs[i] = b.High
			lows[i] = b.Low
			closes[i] = b.Close
		}
		atr, err = indicator.ATR(highs, lows, closes, cfg.StopATRWindow)
		if err != nil {
			return err
		}
	}

	b := &book{cash: cfg.InitialCapital}
	firstClose := bars[0].Close
	for i, bar := range bars {
		// Stops are armed from the prior bar's ATR and the position
		// state before this bar's rebalance.
		stopTriggered := false
		stopLevel := math.NaN()
		if useStops && b.shares > 0 && i > 0 && !math.IsNaN(atr[i-1]) && atr[i-1] > 0 {
			prevATR := atr[i-1]
			if cfg.UseChandelierStop && b.highMax > 0 {
				stopLevel = b.highMax - cfg.ChandelierK*prevATR
			}
			if cfg.UseVolStop && b.entryPrice > 0 {
				vs := b.entryPrice - cfg.VolStopATRMult*prevATR
				if math.IsNaN(stopLevel) || vs > stopLevel {
					stopLevel = vs
				}
			}
			if !math.IsNaN(stopLevel) && bar.Low <= stopLevel {
				stopTriggered = true
			}
		}

		if bar.Open > 0 {
			equityAtOpen := b.cash + b.shares*bar.Open
			delta := equityAtOpen*desired[i] - b.shares*bar.Open
			if delta > 0 && b.cash > 0 {
				unitCost := bar.Open * (1 + cfg.SlippageRate) * (1 + cfg.FeeRate)
				qty := delta / unitCost
				if !cfg.AllowFractional {
					qty = math.Floor(qty)
				}
				if afford := b.cash / unitCost; qty > afford {
					qty = afford
					if !cfg.AllowFractional {
						qty = math.Floor(qty)
					}
				}
				if qty > 0 {
					wasFlat := b.shares == 0
					b.buy(rec, bar.Date, qty, bar.Open, cfg.SlippageRate, cfg.FeeRate, FillReasonRebalance)
					if wasFlat {
						b.highMax = bar.High
					}
				}
			} else if delta < 0 && b.shares > 0 {
				qty := -delta / bar.Open
				if !cfg.AllowFractional {
					qty = math.Floor(qty)
				}
				if qty > b.shares {
					qty = b.shares
				}
				if qty > 0 {
					b.sell(rec, bar.Date, qty, bar.Open, cfg.SlippageRate, cfg.FeeRate, FillReasonRebalance)
				}
			}
		}

		// A stop armed before the open liquidates whatever the rebalance
		// left, filled at the worse of the open and the stop level.
		if stopTriggered && b.shares > 0 {
			execPrice := stopLevel
			if bar.Open > 0 && bar.Open < execPrice {
				execPrice = bar.Open
			}
			if execPrice > 0 {
				b.sell(rec, bar.Date, b.shares, execPrice, cfg.SlippageRate, cfg.FeeRate, FillReasonStop)
			}
		}

		if b.shares > 0 && bar.High > b.highMax {
			b.highMax = bar.High
		}

		recordBar(perf, rec, b, bar, cfg.InitialCapital, firstClose, desired[i])
	}
	return nil
}

func recordBar(perf *Performance, rec *recorder, b *book, bar BarMA, capital, firstClose, targetExp float64) {
	equity := b.cash + b.shares*bar.Close
	bench := 0.0
	if firstClose > 0 {
		bench = bar.Close / firstClose
	}
	perf.Strategy = append(perf.Strategy, Point{Date: bar.Date, Value: equity / capital})
	perf.Benchmark = append(perf.Benchmark, Point{Date: bar.Date, Value: bench})

	exp := 0.0
	if equity > 0 {
		exp = b.shares * bar.Close / equity
	}
	rec.daily(DailyRecord{
		Date:           bar.Date,
		Equity:         equity,
		Value:          equity / capital,
		BenchmarkValue: bench,
		Exposure:       exp,
		TargetExposure: targetExp,
		Cash:           b.cash,
		Shares:         b.shares,
	})
}
