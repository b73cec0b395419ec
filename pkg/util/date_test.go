package util

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-10-10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	if _, err := ParseDate("10/10/2024"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseDateLooseRFC3339(t *testing.T) {
	got, ok := ParseDateLoose("2024-10-10T15:04:05Z")
	if !ok {
		t.Fatalf("expected ok")
	}
	if FormatDate(got) != "2024-10-10" {
		t.Fatalf("unexpected date %v", got)
	}
}

func TestDateBetween(t *testing.T) {
	d := time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC)
	start := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 10, 31, 0, 0, 0, 0, time.UTC)

	if !DateBetween(d, start, end) {
		t.Fatalf("expected in range")
	}
	if !DateBetween(d, d, d) {
		t.Fatalf("bounds are inclusive")
	}
	if DateBetween(start.AddDate(0, 0, -1), start, end) {
		t.Fatalf("expected out of range")
	}
	if !DateBetween(d, start, time.Time{}) {
		t.Fatalf("zero end means unbounded")
	}
}
