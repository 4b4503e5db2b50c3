package timerecorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecordAndEntriesSortedByStart(t *testing.T) {
	r := New()
	now := time.Now()
	r.Record("detect", 2, now.Add(10*time.Millisecond), 5*time.Millisecond)
	r.Record("detect", 1, now, 3*time.Millisecond)

	entries := r.Entries()
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].BatchIdx != 1 || entries[1].BatchIdx != 2 {
		t.Errorf("entries not sorted by start time: %+v", entries)
	}
}

func TestAverageDuration(t *testing.T) {
	r := New()
	now := time.Now()
	r.Record("scan", 0, now, 10*time.Millisecond)
	r.Record("scan", 1, now, 20*time.Millisecond)
	r.Record("write", 0, now, 100*time.Millisecond)

	avg := r.AverageDuration("scan")
	if avg != 15*time.Millisecond {
		t.Errorf("AverageDuration(scan) = %v, want 15ms", avg)
	}
	if r.AverageDuration("missing") != 0 {
		t.Error("AverageDuration for unknown stage should be 0")
	}
}

func TestWriteCSV(t *testing.T) {
	r := New()
	r.Record("scan", 0, time.Now(), time.Millisecond)

	path := filepath.Join(t.TempDir(), "times.csv")
	if err := r.WriteCSV(path); err != nil {
		t.Fatalf("WriteCSV failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty CSV output")
	}
}
