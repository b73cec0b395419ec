// Package strategy implements the dual moving-average trading engine:
// signal generation, composite exposure modeling and the event-driven
// portfolio simulator that produces equity curves, fills and closed
// trades from daily OHLCV bars.
package strategy

import (
	"strconv"
	"time"

	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/util"
)

// Date is a trading day at UTC midnight. It serializes as YYYY-MM-DD to
// match CSV files and API payloads.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date in UTC.
func NewDate(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string { return util.FormatDate(d.Time) }

// MarshalJSON renders the date as a quoted YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(d.String())), nil
}

// UnmarshalJSON parses a quoted YYYY-MM-DD string.
func (d *Date) UnmarshalJSON(b []byte) error {
	s, err := strconv.Unquote(string(b))
	if err != nil {
		return err
	}
	t, err := util.ParseDate(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// Bar is one daily OHLCV record. A price series is sorted ascending by
// date with no duplicate dates; the loader guarantees finite values.
type Bar struct {
	Date   Date    `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// BarMA is a bar annotated with the short/long moving averages computed by
// CalculateMovingAverages. MA values are NaN during warm-up.
type BarMA struct {
	Bar
	MAShort float64 `json:"ma_short"`
	MALong  float64 `json:"ma_long"`
}

// SignalType distinguishes crossover directions.
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
)

// Signal is a confirmed, non-suppressed moving-average crossover. Price
// and MA values are taken as of the confirmation bar.
type Signal struct {
	Date    Date       `json:"date"`
	Type    SignalType `json:"signal_type"`
	Price   float64    `json:"price"`
	MAShort float64    `json:"ma_short"`
	MALong  float64    `json:"ma_long"`
}

// FillReason records why the simulator traded.
type FillReason string

const (
	FillReasonSignal    FillReason = "signal"
	FillReasonRebalance FillReason = "rebalance"
	FillReasonStop      FillReason = "stop"
)

// Fill is one executed trade leg. Fills are append-only and immutable
// once recorded.
type Fill struct {
	Date      Date       `json:"date"`
	Side      SignalType `json:"side"`
	Quantity  float64    `json:"quantity"`
	OpenPrice float64    `json:"open_price"`
	FillPrice float64    `json:"fill_price"`
	Notional  float64    `json:"notional"`
	Fee       float64    `json:"fee"`
	Slippage  float64    `json:"slippage"`
	CashDelta float64    `json:"cash_delta"`
	Reason    FillReason `json:"reason"`
}

// ClosedTrade aggregates all fills between a flat-to-long transition and
// the return to flat.
type ClosedTrade struct {
	EntryDate    Date    `json:"entry_date"`
	ExitDate     Date    `json:"exit_date"`
	PnL          float64 `json:"pnl"`
	PnLPct       float64 `json:"pnl_pct"`
	BuyCost      float64 `json:"buy_cost"`
	SellProceeds float64 `json:"sell_proceeds"`
	Fills        int     `json:"fills"`
}

// DailyRecord is the canonical per-bar log consumed by segment metrics.
type DailyRecord struct {
	Date           Date    `json:"date"`
	Equity         float64 `json:"equity"`
	Value          float64 `json:"value"`
	BenchmarkValue float64 `json:"benchmark_value"`
	Exposure       float64 `json:"exposure"`
	TargetExposure float64 `json:"target_exposure"`
	Cash           float64 `json:"cash"`
	Shares         float64 `json:"shares"`
}

// Point is one sample of a value series (equity or benchmark).
type Point struct {
	Date  Date    `json:"date"`
	Value float64 `json:"value"`
}

// Details is the full backtest log, populated only on request.
type Details struct {
	Daily        []DailyRecord  `json:"daily"`
	Fills        []Fill         `json:"fills"`
	ClosedTrades []ClosedTrade  `json:"closed_trades"`
	VolTargeting *VolTargetInfo `json:"vol_targeting_info,omitempty"`
}

// Performance is the simulator output: strategy and benchmark value
// series aligned 1:1 with the input bars, plus optional details.
type Performance struct {
	Strategy  []Point  `json:"strategy"`
	Benchmark []Point  `json:"benchmark"`
	Details   *Details `json:"details,omitempty"`
}

// WindowPair is one (short, long) moving-average pair of the ensemble.
type WindowPair struct {
	Short int `json:"short"`
	Long  int `json:"long"`
}
