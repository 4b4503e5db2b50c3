// Package coordinator holds the pipeline-wide flags, counters, and
// channels shared across the scanner, preprocessor pool, detector, and
// writer goroutines. No mutex is needed since every field here is either
// an atomic counter or a one-way latch.
package coordinator

import (
	"sync/atomic"
	"time"

	"github.com/schreiberlab/gixi/internal/detect"
	"github.com/schreiberlab/gixi/internal/preprocess"
	"github.com/schreiberlab/gixi/internal/timerecorder"
)

// Coordinator is the run-wide shared state for one pipeline execution.
type Coordinator struct {
	stopFlag  atomic.Bool
	errorFlag atomic.Bool

	startTime time.Time

	numFoundBatches   atomic.Int64
	numSavedBatches   atomic.Int64
	numDroppedBatches atomic.Int64

	Qp chan preprocess.PathBatch
	Qi chan preprocess.ProcessedRecord
	Qr chan QrResult

	Recorder *timerecorder.Recorder

	Done chan struct{}
}

// QrResult is one detected batch traveling from the detector to the writer.
type QrResult struct {
	Record     preprocess.ProcessedRecord
	Detections []detect.Detection
}

// qpBufferSize is the finite buffer standing in for an unbounded Go
// channel (Go has no literal unbounded channel type): large enough that
// the scanner, which emits at filesystem-walk speed, never blocks on a
// healthy preprocessor pool.
const qpBufferSize = 4096

// New creates a Coordinator with Qp buffered at a large constant and
// Qi/Qr buffered at maxBatch, per the pipeline's channel-sizing policy.
func New(maxBatch int, recorder *timerecorder.Recorder) *Coordinator {
	if maxBatch < 1 {
		maxBatch = 1
	}
	return &Coordinator{
		startTime: time.Now(),
		Qp:        make(chan preprocess.PathBatch, qpBufferSize),
		Qi:        make(chan preprocess.ProcessedRecord, maxBatch),
		Qr:        make(chan QrResult, maxBatch),
		Recorder:  recorder,
		Done:      make(chan struct{}),
	}
}

// SetStop latches the stop flag. Idempotent; closes Done the first time.
func (c *Coordinator) SetStop() {
	if c.stopFlag.CompareAndSwap(false, true) {
		close(c.Done)
	}
}

// SetError latches the error flag and also stops the run.
func (c *Coordinator) SetError() {
	c.errorFlag.Store(true)
	c.SetStop()
}

// Stopped reports whether the run has been asked to stop.
func (c *Coordinator) Stopped() bool {
	return c.stopFlag.Load()
}

// Errored reports whether any stage recorded a fatal error.
func (c *Coordinator) Errored() bool {
	return c.errorFlag.Load()
}

// Finished reports whether Done has been closed.
func (c *Coordinator) Finished() bool {
	select {
	case <-c.Done:
		return true
	default:
		return false
	}
}

// IncFound increments the number of batches the scanner has found.
func (c *Coordinator) IncFound() {
	c.numFoundBatches.Add(1)
}

// DecFound decrements the found-batch count, undoing IncFound for a batch
// the preprocessor dropped so a clean run converges to found == saved.
func (c *Coordinator) DecFound() {
	c.numFoundBatches.Add(-1)
}

// IncSaved increments the number of batches the writer has persisted.
func (c *Coordinator) IncSaved() {
	c.numSavedBatches.Add(1)
}

// IncDropped increments the number of dropped batches: those the
// preprocessor pool drops (shape mismatch or read failure) and those lost to
// a failed detector batch or a failed write.
func (c *Coordinator) IncDropped() {
	c.numDroppedBatches.Add(1)
}

// FoundBatches returns the current found-batch count.
func (c *Coordinator) FoundBatches() int64 { return c.numFoundBatches.Load() }

// SavedBatches returns the current saved-batch count.
func (c *Coordinator) SavedBatches() int64 { return c.numSavedBatches.Load() }

// DroppedBatches returns the current dropped-batch count.
func (c *Coordinator) DroppedBatches() int64 { return c.numDroppedBatches.Load() }

// Elapsed returns the time since the run started.
func (c *Coordinator) Elapsed() time.Duration {
	return time.Since(c.startTime)
}
