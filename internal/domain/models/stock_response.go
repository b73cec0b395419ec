package models

import (
	"math"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/marketdata"
	"github.com/Alwyn-Tan/dma-strategy-backend/internal/strategy"
)

// PriceRow is one OHLCV bar with moving averages as returned by
// /api/stock-data. MA values are null during warm-up.
type PriceRow struct {
	Date    strategy.Date `json:"date"`
	Open    float64       `json:"open"`
	High    float64       `json:"high"`
	Low     float64       `json:"low"`
	Close   float64       `json:"close"`
	Volume  float64       `json:"volume"`
	MAShort *float64      `json:"ma_short"`
	MALong  *float64      `json:"ma_long"`
}

// NewPriceRows converts annotated bars to response rows, mapping NaN
// moving averages to null.
func NewPriceRows(bars []strategy.BarMA) []PriceRow {
	rows := make([]PriceRow, len(bars))
	for i, b := range bars {
		rows[i] = PriceRow{
			Date:    b.Date,
			Open:    b.Open,
			High:    b.High,
			Low:     b.Low,
			Close:   b.Close,
			Volume:  b.Volume,
			MAShort: finiteOrNil(b.MAShort),
			MALong:  finiteOrNil(b.MALong),
		}
	}
	return rows
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// SignalRules echoes the confirmation parameters applied to a run.
type SignalRules struct {
	ConfirmBars int `json:"confirm_bars"`
	MinCrossGap int `json:"min_cross_gap"`
}

// RegimeAssumptions documents the trend-regime gate in force.
type RegimeAssumptions struct {
	MAWindow     int     `json:"ma_window"`
	UseADXFilter bool    `json:"use_adx_filter"`
	ADXWindow    int     `json:"adx_window"`
	ADXThreshold float64 `json:"adx_threshold"`
}

// EnsembleAssumptions documents the moving-average ensemble in force.
type EnsembleAssumptions struct {
	Pairs  []strategy.WindowPair `json:"pairs"`
	MAType string                `json:"ma_type"`
}

// VolTargetingAssumptions documents the volatility sizing in force.
type VolTargetingAssumptions struct {
	TargetVol   float64 `json:"target_vol"`
	VolWindow   int     `json:"vol_window"`
	MaxLeverage float64 `json:"max_leverage"`
	MinVolFloor float64 `json:"min_vol_floor"`
}

// ExitAssumptions documents the protective stop configuration.
type ExitAssumptions struct {
	UseChandelierStop bool    `json:"use_chandelier_stop"`
	ChandelierK       float64 `json:"chandelier_k"`
	UseVolStop        bool    `json:"use_vol_stop"`
	VolStopATRMult    float64 `json:"vol_stop_atr_mult"`
}

// StrategyAssumptions bundles the advanced-mode parameters.
type StrategyAssumptions struct {
	StrategyMode string                  `json:"strategy_mode"`
	Regime       RegimeAssumptions       `json:"regime"`
	Ensemble     EnsembleAssumptions     `json:"ensemble"`
	VolTargeting VolTargetingAssumptions `json:"vol_targeting"`
	Exits        ExitAssumptions         `json:"exits"`
}

// Assumptions documents the simulator contract attached to performance
// responses so clients can reproduce a run.
type Assumptions struct {
	Mode            string               `json:"mode"`
	Fill            string               `json:"fill"`
	InitialCapital  float64              `json:"initial_capital"`
	FeeRate         float64              `json:"fee_rate"`
	SlippageRate    float64              `json:"slippage_rate"`
	AllowFractional bool                 `json:"allow_fractional"`
	PriceAdjusted   bool                 `json:"price_adjusted"`
	SignalRules     SignalRules          `json:"signal_rules"`
	Strategy        *StrategyAssumptions `json:"strategy,omitempty"`
}

// StockMeta is the data-provenance meta plus backtest assumptions.
type StockMeta struct {
	marketdata.Meta
	Assumptions *Assumptions `json:"assumptions,omitempty"`
}

// StockDataPayload is the enveloped /api/stock-data response used when
// meta or performance is requested; otherwise the rows go out bare.
type StockDataPayload struct {
	Data        []PriceRow            `json:"data"`
	Meta        *StockMeta            `json:"meta"`
	Performance *strategy.Performance `json:"performance,omitempty"`
}

// SignalsParams echoes the resolved signal query back to the caller.
type SignalsParams struct {
	Code             string  `json:"code"`
	StartDate        *string `json:"start_date"`
	EndDate          *string `json:"end_date"`
	ShortWindow      int     `json:"short_window"`
	LongWindow       int     `json:"long_window"`
	GenConfirmBars   int     `json:"gen_confirm_bars"`
	GenMinCrossGap   int     `json:"gen_min_cross_gap"`
	FilterSignalType string  `json:"filter_signal_type"`
	FilterLimit      int     `json:"filter_limit"`
	FilterSort       string  `json:"filter_sort"`
}

// SignalsMeta describes a /api/signals result set.
type SignalsMeta struct {
	GeneratedCount int              `json:"generated_count"`
	ReturnedCount  int              `json:"returned_count"`
	Params         SignalsParams    `json:"params"`
	DataMeta       *marketdata.Meta `json:"data_meta,omitempty"`
}

// SignalsPayload is the /api/signals response.
type SignalsPayload struct {
	Data []strategy.Signal `json:"data"`
	Meta SignalsMeta       `json:"meta"`
}

// CodeItem is one entry of the /api/codes listing.
type CodeItem struct {
	Code  string `json:"code"`
	Label string `json:"label"`
	File  string `json:"file"`
}
