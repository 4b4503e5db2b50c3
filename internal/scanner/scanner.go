// Package scanner walks a source directory for raw detector frames and
// emits them as ordered path batches.
package scanner

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/schreiberlab/gixi/internal/config"
	"github.com/schreiberlab/gixi/internal/logging"
	"github.com/schreiberlab/gixi/internal/preprocess"
	"github.com/schreiberlab/gixi/internal/timerecorder"
	"github.com/schreiberlab/gixi/internal/util"
)

// Scanner walks SrcDir once per cycle, sorts matching raw-frame paths, and
// emits full batches of N paths. A single goroutine instance; no internal
// concurrency, since a detector-frame dump is flat enough that one
// sequential filepath.WalkDir per cycle is the right scale.
type Scanner struct {
	SrcDir    string
	BatchSize int
	RealTime  bool
	SleepTime time.Duration
	Timeout   time.Duration
	Logger    *logging.Logger

	// OnEmit, if set, is called with the size of each batch right after it
	// is successfully sent on out — the hook the coordinator's found-batch
	// counter is wired through.
	OnEmit func(n int)
	// OnPanic, if set, is called with the recovered value when Run's body
	// panics, letting the caller escalate to the coordinator's error flag
	// instead of taking down the whole process.
	OnPanic func(recovered any)
	// Recorder, if set, receives one "scan" timing entry per walk cycle.
	Recorder *timerecorder.Recorder

	cursor string // last path emitted, empty before the first batch
	cycles int64
}

// New builds a Scanner from cfg, reading general.sum_images as the batch
// size and general.real_time/sleep_time/timeout as the polling policy.
// With parallel.parallel_computation on, the poll sleep is zeroed: a
// parallel run paces itself on the bounded queues between stages, so the
// scanner re-walks as fast as the pool drains it.
func New(cfg *config.Config, logger *logging.Logger) *Scanner {
	sleep := time.Duration(cfg.General.SleepTime * float64(time.Second))
	if cfg.Parallel.ParallelComputation {
		sleep = 0
	}
	return &Scanner{
		SrcDir:    cfg.InputDir(),
		BatchSize: cfg.General.SumImages,
		RealTime:  cfg.General.RealTime,
		SleepTime: sleep,
		Timeout:   time.Duration(cfg.General.Timeout * float64(time.Second)),
		Logger:    logger,
	}
}

// Run walks SrcDir in a loop, sending each full PathBatch on out, until
// ctx is cancelled or (in one-shot mode) the directory is exhausted.
// Stop is signalled by closing out. A panic escaping the scan loop is
// recovered and escalated via OnPanic rather than crashing the process.
func (s *Scanner) Run(ctx context.Context, out chan<- preprocess.PathBatch) {
	defer close(out)
	defer func() {
		if r := recover(); r != nil {
			if s.Logger != nil {
				s.Logger.Error("scanner panicked", "recover", r)
			}
			if s.OnPanic != nil {
				s.OnPanic(r)
			}
		}
	}()

	lastEmit := time.Now()
	for {
		// Filesystem errors are retried next cycle rather than treated as
		// fatal: a transient listing failure appears as an empty listing
		// this cycle, and the scanner only ever stops, never aborts.
		cycleStart := time.Now()
		paths, err := s.listPaths()
		if s.Recorder != nil {
			s.Recorder.Record("scan", s.cycles, cycleStart, time.Since(cycleStart))
		}
		s.cycles++
		if err != nil {
			if s.Logger != nil {
				s.Logger.Warn("scan failed, retrying next cycle", "error", err, "dir", s.SrcDir)
			}
			paths = nil
		}

		pending := s.pathsAfterCursor(paths)
		emittedAny := false

		for len(pending) >= s.BatchSize {
			batch := pending[:s.BatchSize]
			pending = pending[s.BatchSize:]
			if !s.emit(ctx, out, batch) {
				return
			}
			emittedAny = true
			lastEmit = time.Now()
		}

		if emittedAny {
			continue
		}

		if !s.RealTime {
			if len(pending) > 0 {
				s.emit(ctx, out, pending)
			}
			return
		}

		if s.Timeout > 0 && time.Since(lastEmit) >= s.Timeout {
			if len(pending) > 0 {
				s.emit(ctx, out, pending)
			}
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.SleepTime):
		}
	}
}

// emit sends batch on out, advancing the cursor to its last path. Returns
// false if ctx was cancelled before the send completed.
func (s *Scanner) emit(ctx context.Context, out chan<- preprocess.PathBatch, batch []string) bool {
	cp := make([]string, len(batch))
	copy(cp, batch)

	select {
	case out <- preprocess.PathBatch{Paths: cp}:
		s.cursor = cp[len(cp)-1]
		if s.OnEmit != nil {
			s.OnEmit(len(cp))
		}
		return true
	case <-ctx.Done():
		return false
	}
}

// pathsAfterCursor returns the sorted paths strictly greater than the
// stored cursor. The cursor is a path string rather than an index so a
// mid-run directory mutation (a file removed ahead of the cursor) cannot
// silently skip or repeat entries the way a bare index would.
func (s *Scanner) pathsAfterCursor(sorted []string) []string {
	if s.cursor == "" {
		return sorted
	}
	idx := sort.SearchStrings(sorted, s.cursor)
	if idx < len(sorted) && sorted[idx] == s.cursor {
		idx++
	}
	return sorted[idx:]
}

func (s *Scanner) listPaths() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.SrcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !util.IsRawFrame(path) {
			return nil
		}
		if strings.Contains(path, "dark") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
