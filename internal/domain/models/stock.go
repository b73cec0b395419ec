// Package models defines the HTTP request and response shapes for the
// market-data and signal endpoints.
package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/strategy"
	apphttp "github.com/Alwyn-Tan/dma-strategy-backend/pkg/http"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/util"
)

// StockQuery is the /api/stock-data query string. Window and rate
// bounds mirror what the research tooling accepts.
type StockQuery struct {
	Code        string `query:"code" json:"code" default:"AAPL"`
	StartDate   string `query:"start_date" json:"start_date"`
	EndDate     string `query:"end_date" json:"end_date"`
	ShortWindow int    `query:"short_window" json:"short_window" default:"5" validate:"gte=1,lte=500"`
	LongWindow  int    `query:"long_window" json:"long_window" default:"20" validate:"gte=1,lte=500"`

	IncludeMeta        bool `query:"include_meta" json:"include_meta"`
	ForceRefresh       bool `query:"force_refresh" json:"force_refresh"`
	IncludePerformance bool `query:"include_performance" json:"include_performance"`

	GenConfirmBars int `query:"gen_confirm_bars" json:"gen_confirm_bars" validate:"gte=0,lte=50"`
	GenMinCrossGap int `query:"gen_min_cross_gap" json:"gen_min_cross_gap" validate:"gte=0,lte=365"`

	StrategyMode string `query:"strategy_mode" json:"strategy_mode" default:"basic" validate:"oneof=basic advanced"`

	RegimeMAWindow int     `query:"regime_ma_window" json:"regime_ma_window" default:"200" validate:"gte=2,lte=1000"`
	UseADXFilter   bool    `query:"use_adx_filter" json:"use_adx_filter"`
	ADXWindow      int     `query:"adx_window" json:"adx_window" default:"14" validate:"gte=2,lte=200"`
	ADXThreshold   float64 `query:"adx_threshold" json:"adx_threshold" default:"20" validate:"gte=0,lte=100"`

	EnsemblePairs  string `query:"ensemble_pairs" json:"ensemble_pairs" default:"5:20,10:50,20:100,50:200"`
	EnsembleMAType string `query:"ensemble_ma_type" json:"ensemble_ma_type" default:"sma" validate:"oneof=sma ema"`

	TargetVol   float64 `query:"target_vol" json:"target_vol" default:"0.02" validate:"gte=0,lte=1"`
	VolWindow   int     `query:"vol_window" json:"vol_window" default:"14" validate:"gte=2,lte=200"`
	MaxLeverage float64 `query:"max_leverage" json:"max_leverage" default:"1.0" validate:"gte=0,lte=10"`
	MinVolFloor float64 `query:"min_vol_floor" json:"min_vol_floor" default:"0.000001" validate:"gte=0.000000000001,lte=1"`

	UseChandelierStop bool    `query:"use_chandelier_stop" json:"use_chandelier_stop"`
	ChandelierK       float64 `query:"chandelier_k" json:"chandelier_k" default:"3.0" validate:"gte=0.1,lte=10"`
	UseVolStop        bool    `query:"use_vol_stop" json:"use_vol_stop"`
	VolStopATRMult    float64 `query:"vol_stop_atr_mult" json:"vol_stop_atr_mult" default:"2.0" validate:"gte=0.1,lte=20"`
}

// SignalsQuery is the /api/signals query string: the stock query plus
// result filtering. Signal listing only supports the basic mode.
type SignalsQuery struct {
	StockQuery
	FilterSignalType string `query:"filter_signal_type" json:"filter_signal_type" default:"all" validate:"oneof=all BUY SELL"`
	FilterLimit      int    `query:"filter_limit" json:"filter_limit" validate:"gte=0,lte=5000"`
	FilterSort       string `query:"filter_sort" json:"filter_sort" default:"desc" validate:"oneof=asc desc"`
}

// Window is the parsed, resolved form of a stock query.
type Window struct {
	Start time.Time
	End   time.Time
}

// Resolve parses the date strings and applies cross-field rules the
// validator tags cannot express. The end date defaults to today.
func (q *StockQuery) Resolve() (Window, *apphttp.AppError) {
	var w Window
	if q.StartDate != "" {
		t, err := util.ParseDate(q.StartDate)
		if err != nil {
			return w, apphttp.BadRequestError("start_date must be YYYY-MM-DD")
		}
		w.Start = t
	}
	if q.EndDate != "" {
		t, err := util.ParseDate(q.EndDate)
		if err != nil {
			return w, apphttp.BadRequestError("end_date must be YYYY-MM-DD")
		}
		w.End = t
	} else {
		now := time.Now().UTC()
		w.End = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
	if !w.Start.IsZero() && w.Start.After(w.End) {
		return w, apphttp.BadRequestError("start_date must be <= end_date")
	}
	if q.ShortWindow >= q.LongWindow {
		return w, apphttp.BadRequestError("short_window must be < long_window")
	}
	return w, nil
}

// ParseEnsemblePairs parses "5:20,10:50" style pair lists: at most 12
// pairs, windows in [1, 2000], short < long, duplicates dropped in
// order.
func ParseEnsemblePairs(raw string) ([]strategy.WindowPair, *apphttp.AppError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var pairs []strategy.WindowPair
	for _, part := range strings.Split(raw, ",") {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}
		left, right, found := strings.Cut(token, ":")
		if !found {
			return nil, apphttp.BadRequestError("ensemble_pairs must be like '5:20,10:50'")
		}
		short, err1 := strconv.Atoi(strings.TrimSpace(left))
		long, err2 := strconv.Atoi(strings.TrimSpace(right))
		if err1 != nil || err2 != nil {
			return nil, apphttp.BadRequestError("ensemble_pairs must contain integer windows")
		}
		if short < 1 || long < 1 {
			return nil, apphttp.BadRequestError("ensemble_pairs windows must be >= 1")
		}
		if short >= long {
			return nil, apphttp.BadRequestError("ensemble_pairs requires short < long for each pair")
		}
		if short > 2000 || long > 2000 {
			return nil, apphttp.BadRequestError("ensemble_pairs windows must be <= 2000")
		}
		pairs = append(pairs, strategy.WindowPair{Short: short, Long: long})
	}
	if len(pairs) > 12 {
		return nil, apphttp.BadRequestError("ensemble_pairs supports up to 12 pairs")
	}
	seen := map[strategy.WindowPair]bool{}
	out := pairs[:0]
	for _, p := range pairs {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}
