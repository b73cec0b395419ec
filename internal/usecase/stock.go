package usecase

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/domain/models"
	"github.com/Alwyn-Tan/dma-strategy-backend/internal/indicator"
	"github.com/Alwyn-Tan/dma-strategy-backend/internal/marketdata"
	"github.com/Alwyn-Tan/dma-strategy-backend/internal/strategy"
	apphttp "github.com/Alwyn-Tan/dma-strategy-backend/pkg/http"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/logger"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/metrics"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/queue"
)

// StockAnalytics provides the business logic behind the stock-data,
// signals and codes endpoints: price loading with auto-refresh, moving
// averages, signal generation and backtest simulation.
type StockAnalytics struct {
	data    *marketdata.Service
	metrics *metrics.Recorder
	archive queue.QueueService
	log     *logger.Logger
}

func NewStockAnalytics(data *marketdata.Service, rec *metrics.Recorder, log *logger.Logger) *StockAnalytics {
	return &StockAnalytics{data: data, metrics: rec, log: log}
}

// WithArchiveQueue enables asynchronous mirroring of generated signals
// into the persistence store.
func (uc *StockAnalytics) WithArchiveQueue(q queue.QueueService) *StockAnalytics {
	uc.archive = q
	return uc
}

// StockData loads bars for the query window, annotates them with moving
// averages and optionally runs the portfolio simulator.
func (uc *StockAnalytics) StockData(ctx context.Context, q *models.StockQuery) (*models.StockDataPayload, error) {
	started := time.Now()
	w, appErr := q.Resolve()
	if appErr != nil {
		return nil, appErr
	}

	bars, meta, err := uc.load(ctx, q.Code, w, q.ForceRefresh)
	if err != nil {
		return nil, err
	}

	annotated, err := strategy.CalculateMovingAverages(bars, q.ShortWindow, q.LongWindow)
	if err != nil {
		return nil, apphttp.BadRequestError(err.Error())
	}

	var perf *strategy.Performance
	if q.IncludePerformance {
		cfg, cfgErr := uc.performanceConfig(q)
		if cfgErr != nil {
			return nil, cfgErr
		}
		perf, err = strategy.CalculatePerformance(annotated, cfg)
		if err != nil {
			return nil, apphttp.BadRequestError(err.Error())
		}
	}

	payload := &models.StockDataPayload{
		Data:        models.NewPriceRows(annotated),
		Meta:        &models.StockMeta{Meta: *meta},
		Performance: perf,
	}
	if q.IncludePerformance {
		assumptions, aerr := uc.assumptions(q)
		if aerr != nil {
			return nil, aerr
		}
		payload.Meta.Assumptions = assumptions
	}

	uc.observe("stock_data", q.Code, meta, bars, started)
	return payload, nil
}

// Signals generates crossover signals for the query window and applies
// the type/sort/limit result filters.
func (uc *StockAnalytics) Signals(ctx context.Context, q *models.SignalsQuery) (*models.SignalsPayload, error) {
	started := time.Now()
	w, appErr := q.Resolve()
	if appErr != nil {
		return nil, appErr
	}

	bars, meta, err := uc.load(ctx, q.Code, w, q.ForceRefresh)
	if err != nil {
		return nil, err
	}

	annotated, err := strategy.CalculateMovingAverages(bars, q.ShortWindow, q.LongWindow)
	if err != nil {
		return nil, apphttp.BadRequestError(err.Error())
	}
	signals, err := strategy.GenerateSignals(annotated, q.GenConfirmBars, q.GenMinCrossGap)
	if err != nil {
		return nil, apphttp.BadRequestError(err.Error())
	}
	generated := len(signals)
	uc.countSignals(q.Code, signals)
	uc.enqueueArchive(ctx, meta.Code, q)

	if q.FilterSignalType != "all" {
		kept := signals[:0]
		for _, s := range signals {
			if string(s.Type) == q.FilterSignalType {
				kept = append(kept, s)
			}
		}
		signals = kept
	}
	desc := q.FilterSort == "desc"
	sort.SliceStable(signals, func(i, j int) bool {
		if desc {
			return signals[j].Date.Before(signals[i].Date.Time)
		}
		return signals[i].Date.Before(signals[j].Date.Time)
	})
	if q.FilterLimit > 0 && len(signals) > q.FilterLimit {
		signals = signals[:q.FilterLimit]
	}
	if signals == nil {
		signals = []strategy.Signal{}
	}

	payload := &models.SignalsPayload{
		Data: signals,
		Meta: models.SignalsMeta{
			GeneratedCount: generated,
			ReturnedCount:  len(signals),
			Params: models.SignalsParams{
				Code:             meta.Code,
				StartDate:        optString(q.StartDate),
				EndDate:          optString(q.EndDate),
				ShortWindow:      q.ShortWindow,
				LongWindow:       q.LongWindow,
				GenConfirmBars:   q.GenConfirmBars,
				GenMinCrossGap:   q.GenMinCrossGap,
				FilterSignalType: q.FilterSignalType,
				FilterLimit:      q.FilterLimit,
				FilterSort:       q.FilterSort,
			},
		},
	}
	if q.IncludeMeta {
		payload.Meta.DataMeta = meta
	}

	uc.observe("signals", q.Code, meta, bars, started)
	return payload, nil
}

// Codes lists the symbols available in the local data directory.
func (uc *StockAnalytics) Codes(ctx context.Context) ([]models.CodeItem, error) {
	entries, err := uc.data.ListCodes(ctx)
	if err != nil {
		return nil, apphttp.InternalError(err.Error())
	}
	items := make([]models.CodeItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, models.CodeItem{Code: e.Code, Label: e.Code, File: e.File})
	}
	return items, nil
}

// load fetches bars plus provenance meta and maps storage errors to
// HTTP error codes.
func (uc *StockAnalytics) load(ctx context.Context, code string, w models.Window, force bool) ([]strategy.Bar, *marketdata.Meta, error) {
	if _, err := marketdata.ValidateCode(code); err != nil {
		return nil, nil, apphttp.BadRequestError(err.Error())
	}
	bars, meta, err := uc.data.GetStockData(ctx, code, w.Start, w.End, force)
	if err != nil {
		if errors.Is(err, marketdata.ErrNotFound) {
			return nil, nil, apphttp.NotFoundError(err.Error())
		}
		uc.log.Error("stock data load failed", logger.String("code", code), logger.Error(err))
		if uc.metrics != nil {
			uc.metrics.RecordError("marketdata")
		}
		return nil, nil, apphttp.InternalError(err.Error())
	}
	if len(bars) == 0 {
		return nil, nil, apphttp.NotFoundError("No data found")
	}
	return bars, meta, nil
}

// performanceConfig maps the validated query onto a simulator config.
// Research runs use a small fractional book so the equity curve doubles
// as a normalized value series.
func (uc *StockAnalytics) performanceConfig(q *models.StockQuery) (strategy.PerformanceConfig, error) {
	cfg := strategy.DefaultPerformanceConfig()
	cfg.InitialCapital = 100
	cfg.FeeRate = 0.001
	cfg.SlippageRate = 0.0005
	cfg.AllowFractional = true
	cfg.ConfirmBars = q.GenConfirmBars
	cfg.MinCrossGap = q.GenMinCrossGap

	if q.StrategyMode != "advanced" {
		return cfg, nil
	}

	pairs, perr := models.ParseEnsemblePairs(q.EnsemblePairs)
	if perr != nil {
		return cfg, perr
	}
	if len(pairs) == 0 {
		return cfg, apphttp.BadRequestError("ensemble_pairs is required for advanced mode")
	}
	maType, err := indicator.ParseMAType(q.EnsembleMAType)
	if err != nil {
		return cfg, apphttp.BadRequestError(err.Error())
	}

	cfg.UseEnsemble = true
	cfg.EnsemblePairs = pairs
	cfg.EnsembleMAType = maType
	cfg.UseRegimeFilter = true
	cfg.RegimeMAWindow = q.RegimeMAWindow
	cfg.UseADXFilter = q.UseADXFilter
	cfg.ADXWindow = q.ADXWindow
	cfg.ADXThreshold = q.ADXThreshold
	cfg.UseVolTargeting = true
	targetVol := q.TargetVol
	cfg.TargetVolDaily = &targetVol
	cfg.VolWindow = q.VolWindow
	cfg.MaxLeverage = q.MaxLeverage
	cfg.MinVolFloor = q.MinVolFloor
	cfg.UseChandelierStop = q.UseChandelierStop
	cfg.ChandelierK = q.ChandelierK
	cfg.UseVolStop = q.UseVolStop
	cfg.VolStopATRMult = q.VolStopATRMult
	cfg.StopATRWindow = q.VolWindow
	return cfg, nil
}

func (uc *StockAnalytics) assumptions(q *models.StockQuery) (*models.Assumptions, error) {
	a := &models.Assumptions{
		Mode:            "research",
		Fill:            "next_open",
		InitialCapital:  100,
		FeeRate:         0.001,
		SlippageRate:    0.0005,
		AllowFractional: true,
		PriceAdjusted:   false,
		SignalRules: models.SignalRules{
			ConfirmBars: q.GenConfirmBars,
			MinCrossGap: q.GenMinCrossGap,
		},
	}
	if q.StrategyMode != "advanced" {
		return a, nil
	}
	pairs, perr := models.ParseEnsemblePairs(q.EnsemblePairs)
	if perr != nil {
		return nil, perr
	}
	a.Strategy = &models.StrategyAssumptions{
		StrategyMode: q.StrategyMode,
		Regime: models.RegimeAssumptions{
			MAWindow:     q.RegimeMAWindow,
			UseADXFilter: q.UseADXFilter,
			ADXWindow:    q.ADXWindow,
			ADXThreshold: q.ADXThreshold,
		},
		Ensemble: models.EnsembleAssumptions{
			Pairs:  pairs,
			MAType: q.EnsembleMAType,
		},
		VolTargeting: models.VolTargetingAssumptions{
			TargetVol:   q.TargetVol,
			VolWindow:   q.VolWindow,
			MaxLeverage: q.MaxLeverage,
			MinVolFloor: q.MinVolFloor,
		},
		Exits: models.ExitAssumptions{
			UseChandelierStop: q.UseChandelierStop,
			ChandelierK:       q.ChandelierK,
			UseVolStop:        q.UseVolStop,
			VolStopATRMult:    q.VolStopATRMult,
		},
	}
	return a, nil
}

func (uc *StockAnalytics) observe(op, code string, meta *marketdata.Meta, bars []strategy.Bar, started time.Time) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.RecordLatency(op, time.Since(started).Seconds())
	if meta.Refresh.Attempted {
		uc.metrics.RecordRefresh(meta.Code, meta.Refresh.Status)
	}
	if n := len(bars); n > 0 {
		uc.metrics.RecordLastClose(meta.Code, bars[n-1].Close)
	}
}

// enqueueArchive publishes a background job so the store catches up
// with the latest generated signals. Publish failures are logged only.
func (uc *StockAnalytics) enqueueArchive(ctx context.Context, code string, q *models.SignalsQuery) {
	if uc.archive == nil {
		return
	}
	payload := ArchiveSignalsPayload{
		Code:        code,
		ShortWindow: q.ShortWindow,
		LongWindow:  q.LongWindow,
		ConfirmBars: q.GenConfirmBars,
		MinCrossGap: q.GenMinCrossGap,
	}
	if err := uc.archive.PublishMessage(ctx, ArchiveSignalsJobType, payload); err != nil {
		uc.log.Warn("signal archive enqueue failed", logger.String("code", code), logger.Error(err))
	}
}

func (uc *StockAnalytics) countSignals(code string, signals []strategy.Signal) {
	if uc.metrics == nil {
		return
	}
	byType := map[strategy.SignalType]int{}
	for _, s := range signals {
		byType[s.Type]++
	}
	for st, n := range byType {
		uc.metrics.RecordSignals(code, string(st), n)
	}
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
