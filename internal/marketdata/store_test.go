package marketdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/strategy"
	"github.com/Alwyn-Tan/dma-strategy-backend/pkg/util"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestValidateCode(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
	}{
		{"AAPL", true},
		{"brk.b", true},
		{"000001_SZ", true},
		{" AAPL ", true},
		{"", false},
		{"../etc/passwd", false},
		{"a b", false},
	}
	for _, tt := range tests {
		_, err := ValidateCode(tt.in)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateCode(%q) err=%v, want valid=%v", tt.in, err, tt.valid)
		}
	}
}

func TestReadPriceCSVSimpleFormat(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "AAPL.csv",
		"date,open,high,low,close,volume\n"+
			"2024-01-03,11,12,10,11.5,2000\n"+
			"2024-01-02,10,11,9,10.5,1000\n"+
			"2024-01-02,10,11,9,10.6,1500\n"+
			"bad-date,1,1,1,1,1\n"+
			"2024-01-04,12,13,11,,3000\n")

	bars, err := NewStore(dir).ReadPriceCSV(path)
	if err != nil {
		t.Fatalf("ReadPriceCSV: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2 (sorted, deduped, bad rows dropped)", len(bars))
	}
	if bars[0].Date.String() != "2024-01-02" || bars[1].Date.String() != "2024-01-03" {
		t.Fatalf("dates = %s, %s", bars[0].Date, bars[1].Date)
	}
	if bars[0].Close != 10.6 {
		t.Fatalf("duplicate date close = %v, want last row to win (10.6)", bars[0].Close)
	}
}

func TestReadPriceCSVProviderFormat(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "AAPL.csv",
		"Price,Open,High,Low,Close,Volume\n"+
			"Ticker,AAPL,AAPL,AAPL,AAPL,AAPL\n"+
			"Date,,,,,\n"+
			"2024-01-02,10,11,9,10.5,1000\n"+
			"2024-01-03T00:00:00,11,12,10,11.5,2000\n")

	bars, err := NewStore(dir).ReadPriceCSV(path)
	if err != nil {
		t.Fatalf("ReadPriceCSV: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2 (label rows skipped)", len(bars))
	}
	if bars[1].Date.String() != "2024-01-03" {
		t.Fatalf("timestamped date parsed as %s", bars[1].Date)
	}
}

func TestReadPriceCSVMissingColumns(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "X.csv", "date,open,close\n2024-01-02,1,2\n")
	if _, err := NewStore(dir).ReadPriceCSV(path); err == nil {
		t.Fatal("expected error for missing columns")
	}
}

func TestResolveCSVPathCandidates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "MSFT_3y.csv", "date,open,high,low,close,volume\n")

	store := NewStore(dir)
	path, err := store.ResolveCSVPath("msft")
	if err != nil {
		t.Fatalf("ResolveCSVPath: %v", err)
	}
	if filepath.Base(path) != "MSFT_3y.csv" {
		t.Fatalf("resolved %s, want the legacy-suffixed file", path)
	}
	if _, err := store.ResolveCSVPath("TSLA"); err == nil {
		t.Fatal("expected error for unknown symbol")
	}
}

func TestMergeWriteKeepsIncomingOnOverlap(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	path := filepath.Join(dir, "AAPL.csv")

	mk := func(day string, closeP float64) strategy.Bar {
		d, err := util.ParseDate(day)
		if err != nil {
			t.Fatalf("fixture date %s: %v", day, err)
		}
		return strategy.Bar{
			Date: strategy.NewDate(d),
			Open: closeP, High: closeP + 1, Low: closeP - 1, Close: closeP, Volume: 100,
		}
	}
	existing := []strategy.Bar{mk("2024-01-02", 10), mk("2024-01-03", 11)}
	incoming := []strategy.Bar{mk("2024-01-03", 99), mk("2024-01-04", 12)}

	merged, err := store.MergeWrite(path, existing, incoming)
	if err != nil {
		t.Fatalf("MergeWrite: %v", err)
	}
	if len(merged) != 3 {
		t.Fatalf("got %d merged bars, want 3", len(merged))
	}
	if merged[1].Close != 99 {
		t.Fatalf("overlap close = %v, want incoming row (99)", merged[1].Close)
	}

	reread, err := store.ReadPriceCSV(path)
	if err != nil {
		t.Fatalf("ReadPriceCSV after merge: %v", err)
	}
	if len(reread) != 3 || reread[2].Date.String() != "2024-01-04" {
		t.Fatalf("reread = %+v", reread)
	}
	if _, err := os.Stat(filepath.Join(dir, "AAPL.tmp")); !os.IsNotExist(err) {
		t.Fatal("temp file left behind")
	}
}
