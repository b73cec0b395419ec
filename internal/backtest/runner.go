package backtest

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/indicator"
	"github.com/Alwyn-Tan/dma-strategy-backend/internal/strategy"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/logger"
)

// Variant identifiers accepted by the runner.
const (
	VariantBaseline        = "dma_baseline"
	VariantAdvancedFull    = "advanced_full"
	VariantAdvancedNoVolTg = "advanced_no_vol_targeting"
)

// DefaultVariants lists the variants run when none are requested.
var DefaultVariants = []string{VariantBaseline, VariantAdvancedFull, VariantAdvancedNoVolTg}

// Search metrics usable for grid selection.
const (
	MetricSharpe = "sharpe"
	MetricCalmar = "calmar"
	MetricCAGR   = "cagr"
)

// BarSource loads the full daily history for a symbol.
type BarSource interface {
	Bars(ctx context.Context, code string) ([]strategy.Bar, error)
}

// RunConfig describes one evaluation run across symbols and variants.
type RunConfig struct {
	RunID    string
	Symbols  []string
	Variants []string

	ISStart  time.Time
	ISEnd    time.Time
	OOSStart time.Time
	OOSEnd   time.Time // zero means up to the last available bar

	AllowEmptyIS  bool
	AllowEmptyOOS bool

	GridSearch   bool
	ShortGrid    []int
	LongGrid     []int
	SearchMetric string
	Concurrency  int

	ShortWindow int
	LongWindow  int

	FeeRate      float64
	SlippageRate float64
	ConfirmBars  int
	MinCrossGap  int
	UseExits     bool

	TradingDaysPerYear int
	VolWindow          int
	TargetVolAnnual    *float64
	TargetVolDaily     *float64
	MaxLeverage        float64
	MinVolFloor        float64
	RegimeMAWindow     int
	ADXWindow          int
	ADXThreshold       float64
	EnsemblePairs      []strategy.WindowPair
	EnsembleMAType     indicator.MAType
	ChandelierK        float64
	VolStopATRMult     float64
}

// DefaultRunConfig returns the standard evaluation setup.
func DefaultRunConfig() RunConfig {
	annual := 0.15
	return RunConfig{
		Variants:           append([]string(nil), DefaultVariants...),
		ShortGrid:          []int{5, 10, 20},
		LongGrid:           []int{20, 50, 100, 200},
		SearchMetric:       MetricSharpe,
		Concurrency:        runtime.GOMAXPROCS(0),
		ShortWindow:        5,
		LongWindow:         20,
		FeeRate:            0.001,
		SlippageRate:       0.0005,
		TradingDaysPerYear: 252,
		VolWindow:          14,
		TargetVolAnnual:    &annual,
		MaxLeverage:        1.0,
		MinVolFloor:        1e-6,
		RegimeMAWindow:     200,
		ADXWindow:          14,
		ADXThreshold:       20,
		EnsemblePairs: []strategy.WindowPair{
			{Short: 5, Long: 20}, {Short: 10, Long: 50},
			{Short: 20, Long: 100}, {Short: 50, Long: 200},
		},
		EnsembleMAType: indicator.SMAType,
		ChandelierK:    3.0,
		VolStopATRMult: 2.0,
	}
}

func (c RunConfig) validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("backtest: no symbols given")
	}
	if c.ISStart.IsZero() || c.ISEnd.IsZero() || c.OOSStart.IsZero() {
		return fmt.Errorf("backtest: is_start, is_end and oos_start are required")
	}
	if !c.ISEnd.Before(c.OOSStart) {
		return fmt.Errorf("backtest: is_end must be before oos_start")
	}
	switch c.SearchMetric {
	case MetricSharpe, MetricCalmar, MetricCAGR:
	default:
		return fmt.Errorf("backtest: unknown search metric %q", c.SearchMetric)
	}
	for _, v := range c.Variants {
		if _, err := c.variantConfig(v); err != nil {
			return err
		}
	}
	return nil
}

// variantConfig materializes the simulator configuration for a named
// variant. All variants share fees, confirmation and sizing settings;
// the advanced ones layer the exposure model on top, with exits gated on
// UseExits.
func (c RunConfig) variantConfig(variant string) (strategy.PerformanceConfig, error) {
	cfg := strategy.DefaultPerformanceConfig()
	cfg.InitialCapital = 100
	cfg.FeeRate = c.FeeRate
	cfg.SlippageRate = c.SlippageRate
	cfg.AllowFractional = true
	cfg.ConfirmBars = c.ConfirmBars
	cfg.MinCrossGap = c.MinCrossGap
	cfg.ReturnDetails = true

	advanced := func() {
		cfg.UseEnsemble = true
		cfg.EnsemblePairs = append([]strategy.WindowPair(nil), c.EnsemblePairs...)
		cfg.EnsembleMAType = c.EnsembleMAType
		cfg.UseRegimeFilter = true
		cfg.RegimeMAWindow = c.RegimeMAWindow
		cfg.UseADXFilter = true
		cfg.ADXWindow = c.ADXWindow
		cfg.ADXThreshold = c.ADXThreshold
		cfg.UseChandelierStop = c.UseExits
		cfg.ChandelierK = c.ChandelierK
		cfg.UseVolStop = c.UseExits
		cfg.VolStopATRMult = c.VolStopATRMult
	}

	switch variant {
	case VariantBaseline:
	case VariantAdvancedFull:
		advanced()
		cfg.UseVolTargeting = true
		cfg.TargetVolAnnual = c.TargetVolAnnual
		cfg.TargetVolDaily = c.TargetVolDaily
		cfg.TradingDaysPerYear = c.TradingDaysPerYear
		cfg.VolWindow = c.VolWindow
		cfg.MaxLeverage = c.MaxLeverage
		cfg.MinVolFloor = c.MinVolFloor
	case VariantAdvancedNoVolTg:
		advanced()
	default:
		return cfg, fmt.Errorf("backtest: unknown variant %q", variant)
	}
	return cfg, nil
}

// GridRow is one grid-search evaluation on the in-sample window.
type GridRow struct {
	Code        string
	Variant     string
	ShortWindow int
	LongWindow  int
	Metrics     SegmentMetrics
}

// Result is the evaluation of one symbol/variant pair.
type Result struct {
	Code        string
	Variant     string
	ShortWindow int
	LongWindow  int
	IS          SegmentMetrics
	OOS         SegmentMetrics
	Details     *strategy.Details
	Grid        []GridRow
}

// Runner executes evaluation runs against a bar source.
type Runner struct {
	cfg    RunConfig
	source BarSource
	log    *logger.Logger
}

// NewRunner builds a runner; cfg is validated up front so misconfigured
// runs fail before any data is loaded.
func NewRunner(cfg RunConfig, source BarSource, log *logger.Logger) (*Runner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Runner{cfg: cfg, source: source, log: log}, nil
}

// Run evaluates every requested symbol and variant and returns the
// results in input order.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	var results []Result
	for _, raw := range r.cfg.Symbols {
		code := strings.ToUpper(strings.TrimSpace(raw))
		if code == "" {
			continue
		}
		bars, err := r.source.Bars(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("load bars for %s: %w", code, err)
		}
		if len(bars) == 0 {
			return nil, fmt.Errorf("%s: no price rows available", code)
		}

		csvMin := bars[0].Date.Time
		csvMax := bars[len(bars)-1].Date.Time
		effectiveEnd := r.cfg.OOSEnd
		if effectiveEnd.IsZero() {
			effectiveEnd = csvMax
		}

		window := bars[:0:0]
		hasIS, hasOOS := false, false
		for _, b := range bars {
			d := b.Date.Time
			if d.Before(r.cfg.ISStart) || d.After(effectiveEnd) {
				continue
			}
			window = append(window, b)
			if !d.Before(r.cfg.ISStart) && !d.After(r.cfg.ISEnd) {
				hasIS = true
			}
			if !d.Before(r.cfg.OOSStart) {
				hasOOS = true
			}
		}
		if len(window) == 0 {
			return nil, fmt.Errorf("%s: no rows in %s..%s (history %s..%s)",
				code, fmtDate(r.cfg.ISStart), fmtDate(effectiveEnd), fmtDate(csvMin), fmtDate(csvMax))
		}
		if r.cfg.GridSearch && !hasIS {
			return nil, fmt.Errorf("%s: grid search requires in-sample bars in %s..%s",
				code, fmtDate(r.cfg.ISStart), fmtDate(r.cfg.ISEnd))
		}
		if !hasIS && !r.cfg.AllowEmptyIS {
			return nil, fmt.Errorf("%s: in-sample segment %s..%s has zero bars (history %s..%s)",
				code, fmtDate(r.cfg.ISStart), fmtDate(r.cfg.ISEnd), fmtDate(csvMin), fmtDate(csvMax))
		}
		if !hasOOS && !r.cfg.AllowEmptyOOS {
			return nil, fmt.Errorf("%s: out-of-sample segment %s..%s has zero bars (history %s..%s)",
				code, fmtDate(r.cfg.OOSStart), fmtDate(effectiveEnd), fmtDate(csvMin), fmtDate(csvMax))
		}

		for _, variant := range r.cfg.Variants {
			res, err := r.runVariant(ctx, code, variant, window)
			if err != nil {
				return nil, err
			}
			results = append(results, res)
		}
	}
	return results, nil
}

func (r *Runner) runVariant(ctx context.Context, code, variant string, bars []strategy.Bar) (Result, error) {
	cfg, err := r.cfg.variantConfig(variant)
	if err != nil {
		return Result{}, err
	}

	runOne := func(short, long int) (*strategy.Performance, error) {
		withMA, err := strategy.CalculateMovingAverages(bars, short, long)
		if err != nil {
			return nil, err
		}
		return strategy.CalculatePerformance(withMA, cfg)
	}

	short, long := r.cfg.ShortWindow, r.cfg.LongWindow
	var best *strategy.Performance
	var grid []GridRow

	if r.cfg.GridSearch {
		grid, err = r.searchGrid(ctx, code, variant, runOne)
		if err != nil {
			return Result{}, err
		}
		bestScore := math.Inf(-1)
		for _, row := range grid {
			score := r.scoreOf(row.Metrics)
			if math.IsNaN(score) {
				score = math.Inf(-1)
			}
			if score > bestScore {
				bestScore = score
				short, long = row.ShortWindow, row.LongWindow
			}
		}
		if r.log != nil {
			r.log.Info("grid search finished",
				logger.String("code", code),
				logger.String("variant", variant),
				logger.Int("short", short),
				logger.Int("long", long))
		}
	}

	if best == nil {
		best, err = runOne(short, long)
		if err != nil {
			return Result{}, fmt.Errorf("%s %s: %w", code, variant, err)
		}
	}

	details := best.Details
	res := Result{
		Code:        code,
		Variant:     variant,
		ShortWindow: short,
		LongWindow:  long,
		IS:          SummarizeSegment(details, r.cfg.ISStart, r.cfg.ISEnd, r.cfg.TradingDaysPerYear),
		OOS:         SummarizeSegment(details, r.cfg.OOSStart, r.cfg.OOSEnd, r.cfg.TradingDaysPerYear),
		Details:     details,
		Grid:        grid,
	}
	return res, nil
}

// searchGrid evaluates every short < long combination on the in-sample
// window, fanned out over a bounded worker pool. Combinations that fail
// to simulate are skipped rather than aborting the search.
func (r *Runner) searchGrid(ctx context.Context, code, variant string, runOne func(int, int) (*strategy.Performance, error)) ([]GridRow, error) {
	type pair struct{ short, long int }
	var pairs []pair
	for _, s := range r.cfg.ShortGrid {
		for _, l := range r.cfg.LongGrid {
			if s < l {
				pairs = append(pairs, pair{s, l})
			}
		}
	}

	workers := r.cfg.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(pairs) {
		workers = len(pairs)
	}

	rows := make([]GridRow, len(pairs))
	ok := make([]bool, len(pairs))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				p := pairs[i]
				perf, err := runOne(p.short, p.long)
				if err != nil {
					if r.log != nil {
						r.log.Warn("grid combination failed",
							logger.String("code", code),
							logger.String("variant", variant),
							logger.Int("short", p.short),
							logger.Int("long", p.long),
							logger.Error(err))
					}
					continue
				}
				rows[i] = GridRow{
					Code:        code,
					Variant:     variant,
					ShortWindow: p.short,
					LongWindow:  p.long,
					Metrics:     SummarizeSegment(perf.Details, r.cfg.ISStart, r.cfg.ISEnd, r.cfg.TradingDaysPerYear),
				}
				ok[i] = true
			}
		}()
	}

	var sendErr error
	for i := range pairs {
		select {
		case <-ctx.Done():
			sendErr = ctx.Err()
		case jobs <- i:
			continue
		}
		break
	}
	close(jobs)
	wg.Wait()
	if sendErr != nil {
		return nil, sendErr
	}

	out := make([]GridRow, 0, len(rows))
	for i, row := range rows {
		if ok[i] {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ShortWindow != out[j].ShortWindow {
			return out[i].ShortWindow < out[j].ShortWindow
		}
		return out[i].LongWindow < out[j].LongWindow
	})
	return out, nil
}

func (r *Runner) scoreOf(m SegmentMetrics) float64 {
	switch r.cfg.SearchMetric {
	case MetricCalmar:
		return m.Calmar
	case MetricCAGR:
		return m.CAGR
	default:
		return m.Sharpe
	}
}

func fmtDate(t time.Time) string {
	if t.IsZero() {
		return "open"
	}
	return t.Format("2006-01-02")
}
