package marketdata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/strategy"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/cache"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/logger"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/util"
)

// Fetcher pulls daily bars from a remote provider. A zero start means
// the full available history; a zero end means up to today.
type Fetcher interface {
	FetchDaily(ctx context.Context, code string, start, end time.Time) ([]strategy.Bar, error)
}

// Config controls auto-refresh behavior.
type Config struct {
	DataDir     string        `yaml:"data_dir" default:"data"`
	AutoRefresh bool          `yaml:"auto_refresh" default:"true"`
	Cooldown    time.Duration `yaml:"cooldown" default:"15m"`
}

// DateRange is a nullable date span for metadata payloads.
type DateRange struct {
	MinDate *string `json:"min_date"`
	MaxDate *string `json:"max_date"`
}

// RequestedRange echoes the caller's requested window.
type RequestedRange struct {
	StartDate *string `json:"start_date"`
	EndDate   *string `json:"end_date"`
}

// RefreshMeta describes what the auto-refresh attempt did.
type RefreshMeta struct {
	Attempted   bool   `json:"attempted"`
	Status      string `json:"status"`
	Reason      string `json:"reason"`
	FetchedRows int    `json:"fetched_rows"`
}

// Coverage reports whether local data spans the requested window.
type Coverage struct {
	StartOK bool `json:"start_ok"`
	EndOK   bool `json:"end_ok"`
}

// Meta is the data-provenance envelope returned alongside bars.
type Meta struct {
	Code           string         `json:"code"`
	File           string         `json:"file"`
	Source         string         `json:"source"`
	LastModified   *string        `json:"last_modified"`
	DataRange      DateRange      `json:"data_range"`
	RequestedRange RequestedRange `json:"requested_range"`
	Refresh        RefreshMeta    `json:"refresh"`
	Coverage       Coverage       `json:"coverage"`
	DataStatus     string         `json:"data_status"`
	FilteredRange  DateRange      `json:"filtered_range"`
	ReturnedCount  int            `json:"returned_count"`
}

// Service serves price history from the CSV store, transparently
// refreshing from the remote provider when the requested window is not
// covered locally.
type Service struct {
	store   *Store
	fetcher Fetcher
	cache   cache.Service
	cfg     Config
	log     *logger.Logger
}

func NewService(cfg Config, store *Store, fetcher Fetcher, cacheSvc cache.Service, log *logger.Logger) *Service {
	return &Service{store: store, fetcher: fetcher, cache: cacheSvc, cfg: cfg, log: log}
}

func (s *Service) Store() *Store { return s.store }

// Bars loads the full local history for a symbol without refresh. It
// satisfies the backtest runner's bar source.
func (s *Service) Bars(_ context.Context, code string) ([]strategy.Bar, error) {
	path, err := s.store.ResolveCSVPath(code)
	if err != nil {
		return nil, err
	}
	return s.store.ReadPriceCSV(path)
}

func refreshKey(code string) string { return cache.GenerateKey("stock_refresh", code) }

// shouldRefresh decides whether a remote fetch is warranted for the
// requested window, and why. Order matters: the feature switch, then
// window checks, then the per-symbol cooldown.
func (s *Service) shouldRefresh(ctx context.Context, code string, start, end, minDate, maxDate time.Time, hasLocal, force bool) (bool, string) {
	if !s.cfg.AutoRefresh {
		return false, "disabled"
	}
	if start.IsZero() && end.IsZero() {
		return false, "no_requested_range"
	}

	coverageStart := start.IsZero() || !hasLocal || !start.Before(minDate)
	coverageEnd := end.IsZero() || !hasLocal || !end.After(maxDate)
	if coverageStart && coverageEnd && !force {
		return false, "covered_by_local"
	}

	reason := "range_not_covered"
	switch {
	case !hasLocal:
		reason = "no_local_data"
	case !start.IsZero() && start.Before(minDate):
		reason = "start_date_before_min_date"
	case !end.IsZero() && end.After(maxDate):
		reason = "end_date_after_max_date"
	}

	if s.cfg.Cooldown > 0 && !force && s.cache != nil {
		if hot, err := s.cache.Exists(ctx, refreshKey(code)); err == nil && hot {
			return false, "cooldown"
		}
	}
	return true, reason
}

func refreshLockKey(code string) string { return cache.GenerateKey("stock_refresh_lock", code) }

// acquireRefresh takes the per-symbol fetch lock so concurrent requests
// do not hammer the provider for the same code.
func (s *Service) acquireRefresh(ctx context.Context, code string) bool {
	if s.cache == nil {
		return true
	}
	ok, err := s.cache.TryLock(ctx, refreshLockKey(code), time.Minute)
	if err != nil {
		// A broken cache should not block serving data.
		return true
	}
	return ok
}

func (s *Service) releaseRefresh(ctx context.Context, code string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Unlock(ctx, refreshLockKey(code))
}

func (s *Service) markRefreshed(ctx context.Context, code string) {
	if s.cfg.Cooldown <= 0 || s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, refreshKey(code), time.Now().UTC().Format(time.RFC3339), s.cfg.Cooldown); err != nil && s.log != nil {
		s.log.Warn("refresh cooldown not recorded", logger.String("code", code), logger.Error(err))
	}
}

// GetStockData returns bars within [start, end] (zero bounds are open)
// together with provenance metadata. When the local CSV does not cover
// the window and auto-refresh permits it, missing history is fetched,
// merged into the CSV and served in the same call. Fetch failures
// degrade to the local data with the failure noted in the metadata.
func (s *Service) GetStockData(ctx context.Context, code string, start, end time.Time, forceRefresh bool) ([]strategy.Bar, *Meta, error) {
	code, err := ValidateCode(code)
	if err != nil {
		return nil, nil, err
	}
	path, err := s.store.ResolveCSVPath(code)
	if err != nil {
		return nil, nil, err
	}
	bars, err := s.store.ReadPriceCSV(path)
	if err != nil {
		return nil, nil, err
	}

	minDate, maxDate, hasLocal := DataRange(bars)
	meta := &Meta{
		Code:         code,
		File:         baseName(path),
		Source:       "csv",
		LastModified: fileModifiedISO(path),
		DataRange:    rangeDoc(minDate, maxDate, hasLocal),
		RequestedRange: RequestedRange{
			StartDate: optDate(start),
			EndDate:   optDate(end),
		},
		Refresh: RefreshMeta{Status: "skipped", Reason: "not_checked"},
	}

	refresh, reason := s.shouldRefresh(ctx, code, start, end, minDate, maxDate, hasLocal, forceRefresh)
	meta.Refresh.Reason = reason
	if refresh && !s.acquireRefresh(ctx, code) {
		// Another request is already fetching this symbol; serve local data.
		refresh = false
		meta.Refresh.Reason = "refresh_in_progress"
	}
	if refresh {
		defer s.releaseRefresh(ctx, code)
		meta.Refresh.Attempted = true
		fetchStart := fetchStartFor(start, minDate, maxDate, hasLocal)
		fetched, err := s.fetcher.FetchDaily(ctx, code, fetchStart, end)
		switch {
		case err != nil:
			if s.log != nil {
				s.log.Warn("auto refresh failed", logger.String("code", code), logger.Error(err))
			}
			meta.Refresh.Status = "failed"
			meta.Refresh.Reason = err.Error()
		case len(fetched) == 0:
			meta.Refresh.Status = "failed"
			meta.Refresh.Reason = "no_new_rows"
		default:
			bars, err = s.store.MergeWrite(path, bars, fetched)
			if err != nil {
				return nil, nil, err
			}
			minDate, maxDate, hasLocal = DataRange(bars)
			meta.Source = "csv+remote"
			meta.Refresh.Status = "updated"
			meta.Refresh.FetchedRows = len(fetched)
			meta.DataRange = rangeDoc(minDate, maxDate, hasLocal)
			meta.LastModified = fileModifiedISO(path)
		}
		s.markRefreshed(ctx, code)
	}

	meta.Coverage = Coverage{
		StartOK: start.IsZero() || !hasLocal || !start.Before(minDate),
		EndOK:   end.IsZero() || !hasLocal || !end.After(maxDate),
	}
	if meta.Coverage.StartOK && meta.Coverage.EndOK {
		meta.DataStatus = "up_to_date"
	} else {
		meta.DataStatus = "stale"
	}

	filtered := FilterRange(bars, start, end)
	fMin, fMax, fOK := DataRange(filtered)
	meta.FilteredRange = rangeDoc(fMin, fMax, fOK)
	meta.ReturnedCount = len(filtered)
	return filtered, meta, nil
}

// fetchStartFor picks where the remote fetch begins: from the requested
// start when it precedes local history, otherwise right after the last
// local bar.
func fetchStartFor(start, minDate, maxDate time.Time, hasLocal bool) time.Time {
	if !start.IsZero() && hasLocal && start.Before(minDate) {
		return start
	}
	if hasLocal {
		return maxDate.AddDate(0, 0, 1)
	}
	return start
}

func rangeDoc(min, max time.Time, ok bool) DateRange {
	if !ok {
		return DateRange{}
	}
	return DateRange{MinDate: optDate(min), MaxDate: optDate(max)}
}

func optDate(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := util.FormatDate(t)
	return &s
}

func baseName(path string) string {
	return filepath.Base(path)
}

func fileModifiedISO(path string) *string {
	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	s := info.ModTime().UTC().Format(time.RFC3339)
	return &s
}

// CodeEntry is one symbol backed by a CSV file in the data directory.
type CodeEntry struct {
	Code string
	File string
}

// ListCodes enumerates symbols that have a CSV in the data directory.
func (s *Service) ListCodes(_ context.Context) ([]CodeEntry, error) {
	entries, err := os.ReadDir(s.store.DataDir())
	if err != nil {
		return nil, fmt.Errorf("marketdata: list %s: %w", s.store.DataDir(), err)
	}
	var codes []CodeEntry
	seen := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(name), ".csv") {
			continue
		}
		code := strings.TrimSuffix(name, ".csv")
		code = strings.TrimSuffix(code, "_3y")
		code = strings.ToUpper(code)
		if safeCodeRE.MatchString(code) && !seen[code] {
			seen[code] = true
			codes = append(codes, CodeEntry{Code: code, File: name})
		}
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i].Code < codes[j].Code })
	return codes, nil
}
