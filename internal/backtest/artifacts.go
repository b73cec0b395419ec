package backtest

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ArtifactWriter persists one run's outputs under
// <baseDir>/<runID>/ with config.json, summary.csv and per-variant
// series, fills, trades and grid CSVs.
type ArtifactWriter struct {
	dir string
}

// NewArtifactWriter creates the run directory tree.
func NewArtifactWriter(baseDir, runID string) (*ArtifactWriter, error) {
	dir := filepath.Join(baseDir, runID)
	for _, sub := range []string{"", "series", "fills", "trades", "grid"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create artifact dir: %w", err)
		}
	}
	return &ArtifactWriter{dir: dir}, nil
}

// Dir returns the run directory.
func (w *ArtifactWriter) Dir() string { return w.dir }

type splitDoc struct {
	ISStart  string  `json:"is_start"`
	ISEnd    string  `json:"is_end"`
	OOSStart string  `json:"oos_start"`
	OOSEnd   *string `json:"oos_end"`
}

type gridDoc struct {
	Enabled   bool   `json:"enabled"`
	ShortGrid []int  `json:"short_grid"`
	LongGrid  []int  `json:"long_grid"`
	Metric    string `json:"metric"`
}

type assumptionsDoc struct {
	Fill         string  `json:"fill"`
	FeeRate      float64 `json:"fee_rate"`
	SlippageRate float64 `json:"slippage_rate"`
	ConfirmBars  int     `json:"confirm_bars"`
	MinCrossGap  int     `json:"min_cross_gap"`
}

type configDoc struct {
	RunID       string         `json:"run_id"`
	CreatedAt   string         `json:"created_at"`
	Symbols     []string       `json:"symbols"`
	Variants    []string       `json:"variants"`
	Split       splitDoc       `json:"split"`
	GridSearch  gridDoc        `json:"grid_search"`
	Assumptions assumptionsDoc `json:"assumptions"`
}

// WriteConfig records the run configuration for reproducibility.
func (w *ArtifactWriter) WriteConfig(cfg RunConfig) error {
	doc := configDoc{
		RunID:     cfg.RunID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Symbols:   cfg.Symbols,
		Variants:  cfg.Variants,
		Split: splitDoc{
			ISStart:  fmtDate(cfg.ISStart),
			ISEnd:    fmtDate(cfg.ISEnd),
			OOSStart: fmtDate(cfg.OOSStart),
		},
		GridSearch: gridDoc{
			Enabled:   cfg.GridSearch,
			ShortGrid: cfg.ShortGrid,
			LongGrid:  cfg.LongGrid,
			Metric:    cfg.SearchMetric,
		},
		Assumptions: assumptionsDoc{
			Fill:         "next_open",
			FeeRate:      cfg.FeeRate,
			SlippageRate: cfg.SlippageRate,
			ConfirmBars:  cfg.ConfirmBars,
			MinCrossGap:  cfg.MinCrossGap,
		},
	}
	if !cfg.OOSEnd.IsZero() {
		end := fmtDate(cfg.OOSEnd)
		doc.Split.OOSEnd = &end
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(w.dir, "config.json"), data, 0o644)
}

// WriteSummary writes one summary row per symbol/variant result.
func (w *ArtifactWriter) WriteSummary(results []Result) error {
	header := []string{
		"code", "variant", "short_window", "long_window",
		"is_bars", "is_cagr", "is_mdd", "is_sharpe", "is_calmar",
		"is_turnover", "is_avg_exposure", "is_trades", "is_win_rate", "is_pl_ratio",
		"oos_bars", "oos_cagr", "oos_mdd", "oos_sharpe", "oos_calmar",
		"oos_turnover", "oos_avg_exposure", "oos_trades", "oos_win_rate", "oos_pl_ratio",
	}
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		row := []string{res.Code, res.Variant, itoa(res.ShortWindow), itoa(res.LongWindow)}
		row = append(row, segmentCells(res.IS)...)
		row = append(row, segmentCells(res.OOS)...)
		rows = append(rows, row)
	}
	return w.writeCSV(filepath.Join(w.dir, "summary.csv"), header, rows)
}

// WriteResult writes the per-variant daily series, fill log, closed
// trades and, when present, the grid-search table.
func (w *ArtifactWriter) WriteResult(res Result) error {
	base := res.Code + "__" + res.Variant
	if res.Details != nil {
		daily := make([][]string, 0, len(res.Details.Daily))
		for _, d := range res.Details.Daily {
			daily = append(daily, []string{
				d.Date.String(), ftoa(d.Equity), ftoa(d.Value), ftoa(d.BenchmarkValue),
				ftoa(d.Exposure), ftoa(d.TargetExposure), ftoa(d.Cash), ftoa(d.Shares),
			})
		}
		err := w.writeCSV(filepath.Join(w.dir, "series", base+"__daily.csv"),
			[]string{"date", "equity", "value", "benchmark_value", "exposure", "target_exposure", "cash", "shares"},
			daily)
		if err != nil {
			return err
		}

		fills := make([][]string, 0, len(res.Details.Fills))
		for _, f := range res.Details.Fills {
			fills = append(fills, []string{
				f.Date.String(), string(f.Side), ftoa(f.Quantity), ftoa(f.OpenPrice),
				ftoa(f.FillPrice), ftoa(f.Notional), ftoa(f.Fee), ftoa(f.Slippage),
				ftoa(f.CashDelta), string(f.Reason),
			})
		}
		err = w.writeCSV(filepath.Join(w.dir, "fills", base+"__fills.csv"),
			[]string{"date", "side", "quantity", "open_price", "fill_price", "notional", "fee", "slippage", "cash_delta", "reason"},
			fills)
		if err != nil {
			return err
		}

		trades := make([][]string, 0, len(res.Details.ClosedTrades))
		for _, t := range res.Details.ClosedTrades {
			trades = append(trades, []string{
				t.EntryDate.String(), t.ExitDate.String(), ftoa(t.PnL), ftoa(t.PnLPct),
				ftoa(t.BuyCost), ftoa(t.SellProceeds), itoa(t.Fills),
			})
		}
		err = w.writeCSV(filepath.Join(w.dir, "trades", base+"__trades.csv"),
			[]string{"entry_date", "exit_date", "pnl", "pnl_pct", "buy_cost", "sell_proceeds", "fills"},
			trades)
		if err != nil {
			return err
		}
	}

	if len(res.Grid) > 0 {
		rows := make([][]string, 0, len(res.Grid))
		for _, g := range res.Grid {
			rows = append(rows, []string{
				g.Code, g.Variant, itoa(g.ShortWindow), itoa(g.LongWindow),
				itoa(g.Metrics.Bars), ftoa(g.Metrics.CAGR), ftoa(g.Metrics.MDD),
				ftoa(g.Metrics.Sharpe), ftoa(g.Metrics.Calmar),
			})
		}
		err := w.writeCSV(filepath.Join(w.dir, "grid", base+"__grid.csv"),
			[]string{"code", "variant", "short_window", "long_window", "bars", "cagr", "mdd", "sharpe", "calmar"},
			rows)
		if err != nil {
			return err
		}
	}
	return nil
}

func segmentCells(m SegmentMetrics) []string {
	return []string{
		itoa(m.Bars), ftoa(m.CAGR), ftoa(m.MDD), ftoa(m.Sharpe), ftoa(m.Calmar),
		ftoa(m.Turnover), ftoa(m.AvgExposure), itoa(m.Trades), ftoa(m.WinRate), ftoa(m.PLRatio),
	}
}

func (w *ArtifactWriter) writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer f.Close()
	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func itoa(v int) string { return strconv.Itoa(v) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
