// Package preprocess assembles a batch of raw detector frames into a
// ProcessedRecord (summed, flipped, remapped into q-space and polar
// coordinates, and contrast-corrected), and runs a pool of workers doing
// that assembly concurrently.
package preprocess

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/schreiberlab/gixi/internal/config"
	"github.com/schreiberlab/gixi/internal/contrast"
	"github.com/schreiberlab/gixi/internal/frame"
	"github.com/schreiberlab/gixi/internal/logging"
	"github.com/schreiberlab/gixi/internal/polar"
	"github.com/schreiberlab/gixi/internal/qspace"
	"github.com/schreiberlab/gixi/internal/resample"
	"github.com/schreiberlab/gixi/internal/timerecorder"
	"github.com/schreiberlab/gixi/internal/worker"
)

// PathBatch is an ordered group of raw-frame paths emitted by the scanner.
// len(Paths) == N except possibly the final short batch of a one-shot run.
type PathBatch struct {
	Paths []string
}

// ProcessedRecord is the output of preprocessing one PathBatch.
type ProcessedRecord struct {
	Paths        PathBatch
	Img          *frame.Image32 // optional, per SaveConfig.SaveImg
	QImg         *frame.Image32 // optional, per SaveConfig.SaveQImg
	PolarImg     *frame.Image32 // always set; SaveConfig.SavePolarImg gates only persistence
	ProcessedImg frame.Image32  // always present
}

// Grids bundles the two lookup grids built once per QSpaceConfig/PolarConfig
// and reused across every batch a Pool processes.
type Grids struct {
	QSpace qspace.Grid
	Polar  polar.Grid
}

// BuildGrids constructs both lookup grids for cfg, to be cached once by the
// caller (internal/pipeline) and shared across the whole preprocessor pool.
func BuildGrids(cfg *config.Config) Grids {
	return Grids{
		QSpace: qspace.Build(cfg.QSpace),
		Polar:  polar.Build(cfg.QSpace, cfg.Polar),
	}
}

// Process reads and sums a batch's frames, flips per QSpaceConfig, remaps
// into q-space and polar coordinates, and applies contrast correction. It
// returns a shape-mismatch error (see internal/errors) if any frame's shape
// disagrees with the configured detector shape.
func Process(batch PathBatch, cfg *config.Config, grids Grids) (ProcessedRecord, error) {
	frames := make([]frame.RawFrame, 0, len(batch.Paths))
	for _, p := range batch.Paths {
		f, err := frame.ReadRawFrame(p)
		if err != nil {
			return ProcessedRecord{}, fmt.Errorf("reading %s: %w", p, err)
		}
		frames = append(frames, f)
	}

	summed, err := frame.Sum(frames, cfg.QSpace.SizeY, cfg.QSpace.SizeX)
	if err != nil {
		return ProcessedRecord{}, err
	}

	img := summed
	if cfg.QSpace.FlipX {
		img = frame.FlipHorizontal(img)
	}
	if cfg.QSpace.FlipY {
		img = frame.FlipVertical(img)
	}

	algo := resample.Algorithm(cfg.Polar.Algorithm)
	qImg := resample.Remap(img, resample.Grid(grids.QSpace), algo)
	polarImg := resample.Remap(img, resample.Grid(grids.Polar), algo)

	processed := contrast.Correct(polarImg, cfg.Contrast)

	rec := ProcessedRecord{
		Paths:        batch,
		ProcessedImg: processed,
	}
	if cfg.Save.SaveImg {
		rec.Img = &img
	}
	if cfg.Save.SaveQImg {
		rec.QImg = &qImg
	}
	// PolarImg is always retained, regardless of SaveConfig: the detector
	// needs it unconditionally to compute per-box intensities against the
	// raw polar image. SaveConfig.SavePolarImg only gates whether the
	// writer persists it.
	rec.PolarImg = &polarImg
	return rec, nil
}

// Pool runs N preprocessor goroutines, each pulling a PathBatch off in and
// pushing a ProcessedRecord onto out; a worker.PreprocessResult for every
// batch, dropped or not, goes to the separate results channel. The
// output channel's capacity is the backpressure; a full downstream queue
// blocks every worker on send.
type Pool struct {
	cfg    *config.Config
	grids  Grids
	logger *logging.Logger

	completed atomic.Int64
	dropped   atomic.Int64

	// OnProgress, if set, is called after every batch the pool finishes
	// (successful or dropped) with a snapshot of the pool's progress so
	// far — the hook the pipeline wires to reporter.Reporter.StageProgress.
	OnProgress func(worker.Progress)
	// TotalHint, if set, is consulted for Progress.BatchesTotal — the
	// pool itself has no notion of how many batches the scanner will
	// eventually find.
	TotalHint func() int
	// OnPanic, if set, is called with the recovered value when a worker
	// goroutine panics, letting the caller escalate to the coordinator's
	// error flag instead of losing the worker silently.
	OnPanic func(recovered any)
	// Recorder, if set, receives one "preprocess" timing entry per batch.
	Recorder *timerecorder.Recorder
}

// NewPool builds a Pool sharing one set of precomputed grids across workers.
func NewPool(cfg *config.Config, grids Grids, logger *logging.Logger) *Pool {
	return &Pool{cfg: cfg, grids: grids, logger: logger}
}

func (p *Pool) reportProgress(dropped bool) {
	if dropped {
		p.dropped.Add(1)
	}
	completed := p.completed.Add(1)
	if p.OnProgress == nil {
		return
	}
	total := 0
	if p.TotalHint != nil {
		total = p.TotalHint()
	}
	p.OnProgress(worker.Progress{
		BatchesComplete: int(completed),
		BatchesTotal:    total,
		BatchesDropped:  int(p.dropped.Load()),
	})
}

// Run starts n worker goroutines consuming in and producing on out/results,
// returning once in is closed and drained and every worker has exited.
// results receives a worker.PreprocessResult for every batch, successful or
// dropped, so the caller can track progress counters.
func (p *Pool) Run(ctx context.Context, n int, in <-chan PathBatch, out chan<- ProcessedRecord, results chan<- worker.PreprocessResult) {
	if n < 1 {
		n = 1
	}
	defer close(out)
	defer close(results)

	workers := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go p.worker(ctx, in, out, results, workers)
	}
	for i := 0; i < n; i++ {
		<-workers
	}
}

// worker drains in until it closes or ctx is cancelled. A panic escaping
// Process is recovered and escalated via OnPanic rather than crashing the
// process, mirroring runDetector's recover-and-SetError pattern.
func (p *Pool) worker(ctx context.Context, in <-chan PathBatch, out chan<- ProcessedRecord, results chan<- worker.PreprocessResult, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	defer func() {
		if r := recover(); r != nil {
			if p.logger != nil {
				p.logger.Error("preprocessor worker panicked", "recover", r)
			}
			if p.OnPanic != nil {
				p.OnPanic(r)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-in:
			if !ok {
				return
			}
			start := time.Now()
			rec, err := Process(batch, p.cfg, p.grids)
			if p.Recorder != nil {
				p.Recorder.Record("preprocess", p.completed.Load(), start, time.Since(start))
			}
			if err != nil {
				if p.logger != nil {
					p.logger.Warn("dropping batch", "error", err, "paths", batch.Paths)
				}
				select {
				case results <- worker.PreprocessResult{Dropped: true, Error: err}:
					p.reportProgress(true)
				case <-ctx.Done():
					return
				}
				continue
			}

			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
			select {
			case results <- worker.PreprocessResult{}:
				p.reportProgress(false)
			case <-ctx.Done():
				return
			}
		}
	}
}
