// Package marketdata loads, persists and refreshes daily OHLCV history
// stored as per-symbol CSV files.
package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/strategy"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/util"
)

var safeCodeRE = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ErrNotFound reports that no local CSV exists for a symbol.
var ErrNotFound = errors.New("marketdata: no local data")

// ValidateCode rejects symbols that could escape the data directory.
// Only letters, digits, dot, underscore and dash are allowed.
func ValidateCode(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("marketdata: code is required")
	}
	if !safeCodeRE.MatchString(code) {
		return "", fmt.Errorf("marketdata: invalid code %q: only letters/numbers/._- are allowed", code)
	}
	return code, nil
}

// Store reads and writes normalized per-symbol price CSVs under a data
// directory.
type Store struct {
	dataDir string
}

func NewStore(dataDir string) *Store {
	return &Store{dataDir: dataDir}
}

func (s *Store) DataDir() string { return s.dataDir }

// candidatePaths lists the file names probed for a symbol, in priority
// order. Legacy exports used a _3y suffix.
func (s *Store) candidatePaths(code string) []string {
	candidates := []string{
		filepath.Join(s.dataDir, code+".csv"),
		filepath.Join(s.dataDir, strings.ToUpper(code)+".csv"),
		filepath.Join(s.dataDir, code+"_3y.csv"),
		filepath.Join(s.dataDir, strings.ToUpper(code)+"_3y.csv"),
	}
	seen := map[string]bool{}
	out := candidates[:0]
	for _, c := range candidates {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

// ResolveCSVPath returns the existing CSV file for a symbol, or an
// error when none of the candidate names exist.
func (s *Store) ResolveCSVPath(code string) (string, error) {
	code, err := ValidateCode(code)
	if err != nil {
		return "", err
	}
	for _, candidate := range s.candidatePaths(code) {
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: no CSV for code=%s in %s", ErrNotFound, code, s.dataDir)
}

// WritePath returns the canonical path new data is written to.
func (s *Store) WritePath(code string) string {
	return filepath.Join(s.dataDir, strings.ToUpper(code)+".csv")
}

// ReadPriceCSV loads a price CSV into bars sorted ascending by date
// with duplicate dates collapsed (last row wins).
//
// Two layouts are accepted: the normalized
// date,open,high,low,close,volume form, and provider exports whose
// first column is named Price and which carry extra Ticker/Date label
// rows. Label rows and rows with unparseable dates or prices are
// dropped.
func (s *Store) ReadPriceCSV(path string) ([]strategy.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("marketdata: open %s: %w", path, err)
	}
	defer f.Close()
	return ParsePriceCSV(f, path)
}

// ParsePriceCSV parses price CSV content from r; label names the source
// in error messages.
func ParsePriceCSV(src io.Reader, label string) ([]strategy.Bar, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("marketdata: parse %s: %w", label, err)
	}
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, fmt.Errorf("marketdata: CSV has no columns: %s", label)
	}

	header := records[0]
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	dateIdx, ok := cols["date"]
	if !ok {
		// Provider exports name the date column Price; otherwise the
		// first column is assumed to hold dates.
		if idx, ok := cols["price"]; ok {
			dateIdx = idx
		} else {
			dateIdx = 0
		}
	}
	var missing []string
	idx := map[string]int{}
	for _, name := range []string{"open", "high", "low", "close", "volume"} {
		i, ok := cols[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		idx[name] = i
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("marketdata: CSV missing required columns %v: %s", missing, label)
	}

	cell := func(row []string, i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	var bars []strategy.Bar
	for _, row := range records[1:] {
		t, ok := util.ParseDateLoose(cell(row, dateIdx))
		if !ok {
			continue
		}
		open := parseFloat(cell(row, idx["open"]))
		high := parseFloat(cell(row, idx["high"]))
		low := parseFloat(cell(row, idx["low"]))
		closeP := parseFloat(cell(row, idx["close"]))
		if math.IsNaN(open) || math.IsNaN(high) || math.IsNaN(low) || math.IsNaN(closeP) {
			continue
		}
		volume := parseFloat(cell(row, idx["volume"]))
		if math.IsNaN(volume) {
			volume = 0
		}
		bars = append(bars, strategy.Bar{
			Date:   strategy.NewDate(t),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closeP,
			Volume: volume,
		})
	}
	return normalizeBars(bars), nil
}

// MergeWrite combines existing and incoming bars (incoming wins on
// duplicate dates) and atomically rewrites the CSV via a temp file.
func (s *Store) MergeWrite(path string, existing, incoming []strategy.Bar) ([]strategy.Bar, error) {
	merged := normalizeBars(append(append([]strategy.Bar{}, existing...), incoming...))

	tmp := strings.TrimSuffix(path, filepath.Ext(path)) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("marketdata: create %s: %w", tmp, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write([]string{"date", "open", "high", "low", "close", "volume"}); err != nil {
		f.Close()
		return nil, err
	}
	for _, b := range merged {
		row := []string{
			b.Date.String(),
			strconv.FormatFloat(b.Open, 'g', -1, 64),
			strconv.FormatFloat(b.High, 'g', -1, 64),
			strconv.FormatFloat(b.Low, 'g', -1, 64),
			strconv.FormatFloat(b.Close, 'g', -1, 64),
			strconv.FormatFloat(b.Volume, 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			f.Close()
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("marketdata: replace %s: %w", path, err)
	}
	return merged, nil
}

// DataRange returns the first and last bar dates; ok is false for an
// empty series.
func DataRange(bars []strategy.Bar) (min, max time.Time, ok bool) {
	if len(bars) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return bars[0].Date.Time, bars[len(bars)-1].Date.Time, true
}

// FilterRange keeps bars with start <= date <= end; zero bounds are
// open.
func FilterRange(bars []strategy.Bar, start, end time.Time) []strategy.Bar {
	out := make([]strategy.Bar, 0, len(bars))
	for _, b := range bars {
		if util.DateBetween(b.Date.Time, start, end) {
			out = append(out, b)
		}
	}
	return out
}

func normalizeBars(bars []strategy.Bar) []strategy.Bar {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date.Time) })
	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Date.Equal(b.Date.Time) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

func parseFloat(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
