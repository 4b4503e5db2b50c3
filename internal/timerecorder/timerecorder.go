// Package timerecorder merges per-stage timing entries from every pipeline
// stage into one report, written out as a CSV time-records file.
package timerecorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Entry is one recorded stage timing.
type Entry struct {
	Stage    string
	BatchIdx int64
	Start    time.Time
	Duration time.Duration
}

// Recorder accumulates Entry values from any number of goroutines and
// writes them out as a single CSV time-records file.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// New creates an empty Recorder.
func New() *Recorder {
	return &Recorder{}
}

// Record appends one timing entry. Safe for concurrent use.
func (r *Recorder) Record(stage string, batchIdx int64, start time.Time, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Stage: stage, BatchIdx: batchIdx, Start: start, Duration: duration})
}

// Entries returns a copy of the recorded entries, sorted by start time.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// WriteCSV writes the recorded entries to path as a CSV with columns
// stage, batch_idx, start_unix_ns, duration_ms.
func (r *Recorder) WriteCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating time-records file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"stage", "batch_idx", "start_unix_ns", "duration_ms"}); err != nil {
		return err
	}
	for _, e := range r.Entries() {
		record := []string{
			e.Stage,
			fmt.Sprintf("%d", e.BatchIdx),
			fmt.Sprintf("%d", e.Start.UnixNano()),
			fmt.Sprintf("%.3f", float64(e.Duration.Microseconds())/1000),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return w.Error()
}

// AverageDuration returns the mean duration recorded for stage.
func (r *Recorder) AverageDuration(stage string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	var total time.Duration
	var count int
	for _, e := range r.entries {
		if e.Stage == stage {
			total += e.Duration
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / time.Duration(count)
}
