// Command backtest runs IS/OOS research evaluations over local CSV
// history and writes per-run artifacts (config, summary, daily series,
// fills, trades, grid rows) under the output directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/backtest"
	"github.com/Alwyn-Tan/dma-strategy-backend/internal/domain/models"
	"github.com/Alwyn-Tan/dma-strategy-backend/internal/indicator"
	"github.com/Alwyn-Tan/dma-strategy-backend/internal/marketdata"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/cache"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/logger"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/util"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("backtest: %v", err)
	}
}

func run() error {
	var (
		symbols   = flag.String("symbols", "", "comma-separated symbols (required), e.g. AAPL,MSFT,00700.HK")
		runID     = flag.String("run-id", "", "run identifier (default: UTC timestamp)")
		outputDir = flag.String("output-dir", "results/backtesting", "base output directory")
		dataDir   = flag.String("data-dir", "data", "CSV data directory")

		isStart  = flag.String("is-start", "2015-01-01", "in-sample start (YYYY-MM-DD)")
		isEnd    = flag.String("is-end", "2020-12-31", "in-sample end (YYYY-MM-DD)")
		oosStart = flag.String("oos-start", "2021-01-01", "out-of-sample start (YYYY-MM-DD)")
		oosEnd   = flag.String("oos-end", "", "optional out-of-sample end (YYYY-MM-DD)")

		allowEmptyIS  = flag.Bool("allow-empty-is", false, "allow a zero-bar IS segment")
		allowEmptyOOS = flag.Bool("allow-empty-oos", false, "allow a zero-bar OOS segment")

		variants = flag.String("variants", strings.Join(backtest.DefaultVariants, ","), "comma-separated variant ids")

		gridSearch   = flag.Bool("grid-search", false, "enable constrained grid search on IS")
		shortGrid    = flag.String("short-grid", "5,10,20", "comma-separated short_window candidates")
		longGrid     = flag.String("long-grid", "20,50,100,200", "comma-separated long_window candidates")
		searchMetric = flag.String("search-metric", backtest.MetricSharpe, "grid selection metric: sharpe, calmar or cagr")
		concurrency  = flag.Int("concurrency", 4, "grid search workers")

		feeRate      = flag.Float64("fee-rate", 0.001, "fee rate per fill")
		slippageRate = flag.Float64("slippage-rate", 0.0005, "slippage rate per fill")
		confirmBars  = flag.Int("confirm-bars", 0, "signal confirmation bars")
		minCrossGap  = flag.Int("min-cross-gap", 0, "minimum bars between confirmed crossings")
		useExits     = flag.Bool("use-exits", false, "enable protective stops in advanced variants")

		tradingDays     = flag.Int("trading-days-per-year", 252, "trading days per year")
		volWindow       = flag.Int("vol-window", 14, "ATR window for vol targeting and stops")
		targetVolAnnual = flag.Float64("target-vol-annual", 0.15, "annualized target volatility")
		targetVolDaily  = flag.String("target-vol", "", "legacy daily target volatility (overridden by annual)")
		maxLeverage     = flag.Float64("max-leverage", 1.0, "exposure cap")
		minVolFloor     = flag.Float64("min-vol-floor", 1e-6, "volatility floor")
		regimeMAWindow  = flag.Int("regime-ma-window", 200, "regime filter MA window")
		adxWindow       = flag.Int("adx-window", 14, "ADX window")
		adxThreshold    = flag.Float64("adx-threshold", 20.0, "ADX threshold")
		ensemblePairs   = flag.String("ensemble-pairs", "5:20,10:50,20:100,50:200", "MA ensemble pairs")
		ensembleMAType  = flag.String("ensemble-ma-type", "sma", "ensemble MA type: sma or ema")
		chandelierK     = flag.Float64("chandelier-k", 3.0, "chandelier stop ATR multiple")
		volStopATRMult  = flag.Float64("vol-stop-atr-mult", 2.0, "volatility stop ATR multiple")
	)
	flag.Parse()

	if strings.TrimSpace(*symbols) == "" {
		return fmt.Errorf("-symbols is required")
	}

	cfg := backtest.DefaultRunConfig()
	cfg.Symbols = splitList(*symbols)
	cfg.Variants = splitList(*variants)
	cfg.RunID = *runID
	if cfg.RunID == "" {
		cfg.RunID = time.Now().UTC().Format("20060102T150405Z")
	}

	var err error
	if cfg.ISStart, err = util.ParseDate(*isStart); err != nil {
		return fmt.Errorf("is-start: %w", err)
	}
	if cfg.ISEnd, err = util.ParseDate(*isEnd); err != nil {
		return fmt.Errorf("is-end: %w", err)
	}
	if cfg.OOSStart, err = util.ParseDate(*oosStart); err != nil {
		return fmt.Errorf("oos-start: %w", err)
	}
	if *oosEnd != "" {
		if cfg.OOSEnd, err = util.ParseDate(*oosEnd); err != nil {
			return fmt.Errorf("oos-end: %w", err)
		}
	}
	cfg.AllowEmptyIS = *allowEmptyIS
	cfg.AllowEmptyOOS = *allowEmptyOOS

	cfg.GridSearch = *gridSearch
	if cfg.ShortGrid, err = parseIntList(*shortGrid); err != nil {
		return fmt.Errorf("short-grid: %w", err)
	}
	if cfg.LongGrid, err = parseIntList(*longGrid); err != nil {
		return fmt.Errorf("long-grid: %w", err)
	}
	cfg.SearchMetric = *searchMetric
	cfg.Concurrency = *concurrency

	cfg.FeeRate = *feeRate
	cfg.SlippageRate = *slippageRate
	cfg.ConfirmBars = *confirmBars
	cfg.MinCrossGap = *minCrossGap
	cfg.UseExits = *useExits

	cfg.TradingDaysPerYear = *tradingDays
	cfg.VolWindow = *volWindow
	if *targetVolAnnual > 0 {
		annual := *targetVolAnnual
		cfg.TargetVolAnnual = &annual
	} else {
		cfg.TargetVolAnnual = nil
	}
	cfg.TargetVolDaily = nil
	if *targetVolDaily != "" {
		daily, perr := strconv.ParseFloat(*targetVolDaily, 64)
		if perr != nil {
			return fmt.Errorf("target-vol: %w", perr)
		}
		cfg.TargetVolDaily = &daily
	}
	cfg.MaxLeverage = *maxLeverage
	cfg.MinVolFloor = *minVolFloor
	cfg.RegimeMAWindow = *regimeMAWindow
	cfg.ADXWindow = *adxWindow
	cfg.ADXThreshold = *adxThreshold

	pairs, perr := models.ParseEnsemblePairs(*ensemblePairs)
	if perr != nil {
		return fmt.Errorf("ensemble-pairs: %v", perr)
	}
	cfg.EnsemblePairs = pairs
	if cfg.EnsembleMAType, err = indicator.ParseMAType(*ensembleMAType); err != nil {
		return err
	}
	cfg.ChandelierK = *chandelierK
	cfg.VolStopATRMult = *volStopATRMult

	lgr, err := logger.New(&logger.Config{Level: "info", Format: "console", Output: "stdout"})
	if err != nil {
		return err
	}

	store := marketdata.NewStore(*dataDir)
	source := marketdata.NewService(marketdata.Config{DataDir: *dataDir}, store, nil, cache.NewMemoryCache(), lgr)

	runner, err := backtest.NewRunner(cfg, source, lgr)
	if err != nil {
		return err
	}
	results, err := runner.Run(context.Background())
	if err != nil {
		return err
	}

	writer, err := backtest.NewArtifactWriter(*outputDir, cfg.RunID)
	if err != nil {
		return err
	}
	if err := writer.WriteConfig(cfg); err != nil {
		return err
	}
	for _, res := range results {
		if err := writer.WriteResult(res); err != nil {
			return err
		}
	}
	if err := writer.WriteSummary(results); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "wrote %d results to %s\n", len(results), writer.Dir())
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseIntList(raw string) ([]int, error) {
	var out []int
	for _, part := range splitList(raw) {
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
