package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// JSONReporter outputs NDJSON events, one per line, suitable for piping into
// a dashboard or log aggregator.
type JSONReporter struct {
	writer             io.Writer
	mu                 sync.Mutex
	lastProgressBucket int64
	lastProgressTime   time.Time
}

// NewJSONReporter creates a new JSON reporter that writes to stdout.
func NewJSONReporter() *JSONReporter {
	return &JSONReporter{
		writer:             os.Stdout,
		lastProgressBucket: -1,
	}
}

// NewJSONReporterWithWriter creates a JSON reporter with a custom writer.
func NewJSONReporterWithWriter(w io.Writer) *JSONReporter {
	return &JSONReporter{
		writer:             w,
		lastProgressBucket: -1,
	}
}

func (r *JSONReporter) timestamp() int64 {
	return time.Now().Unix()
}

func (r *JSONReporter) write(v interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintln(r.writer, string(data))
}

func (r *JSONReporter) Hardware(summary HardwareSummary) {
	r.write(map[string]interface{}{
		"type":           "hardware",
		"hostname":       summary.Hostname,
		"physical_cores": summary.PhysicalCores,
		"logical_cores":  summary.LogicalCores,
		"timestamp":      r.timestamp(),
	})
}

func (r *JSONReporter) RunStarted(summary RunSummary) {
	r.write(map[string]interface{}{
		"type":           "run_started",
		"scan_dir":       summary.ScanDir,
		"container_path": summary.ContainerPath,
		"detector_model": summary.DetectorModel,
		"batch_size":     summary.BatchSize,
		"workers":        summary.Workers,
		"timestamp":      r.timestamp(),
	})
}

func (r *JSONReporter) StageProgress(update StageProgress) {
	event := map[string]interface{}{
		"type":      "stage_progress",
		"stage":     update.Stage,
		"percent":   update.Percent,
		"message":   update.Message,
		"timestamp": r.timestamp(),
	}
	if update.ETA != nil {
		event["eta_seconds"] = int64(update.ETA.Seconds())
	}
	r.write(event)
}

func (r *JSONReporter) ShapeCheck(summary ShapeCheckSummary) {
	r.write(map[string]interface{}{
		"type":      "shape_check",
		"message":   summary.Message,
		"shape":     summary.Shape,
		"matched":   summary.Matched,
		"disabled":  summary.Disabled,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) DetectorConfig(summary DetectorConfigSummary) {
	r.write(map[string]interface{}{
		"type":               "detector_config",
		"backend":            summary.Backend,
		"model_path":         summary.ModelPath,
		"score_threshold":    summary.ScoreThreshold,
		"iou_threshold":      summary.IoUThreshold,
		"exec_command":       summary.ExecCommand,
		"postprocess_params": summary.PostprocessParams,
		"timestamp":          r.timestamp(),
	})
}

func (r *JSONReporter) PipelineStarted(totalBatches int64) {
	r.mu.Lock()
	r.lastProgressBucket = -1
	r.lastProgressTime = time.Time{}
	r.mu.Unlock()

	r.write(map[string]interface{}{
		"type":          "pipeline_started",
		"total_batches": totalBatches,
		"timestamp":     r.timestamp(),
	})
}

func (r *JSONReporter) PipelineProgress(progress ProgressSnapshot) {
	const progressBucketSize = 1
	const minInterval = 5 * time.Second

	bucket := int64(progress.Percent) / progressBucketSize
	now := time.Now()

	r.mu.Lock()
	intervalElapsed := r.lastProgressTime.IsZero() || now.Sub(r.lastProgressTime) >= minInterval
	shouldEmit := bucket > r.lastProgressBucket || intervalElapsed || progress.Percent >= 99.0

	if !shouldEmit {
		r.mu.Unlock()
		return
	}

	if bucket > r.lastProgressBucket {
		r.lastProgressBucket = bucket
	}
	r.lastProgressTime = now
	r.mu.Unlock()

	r.write(map[string]interface{}{
		"type":          "pipeline_progress",
		"stage":         "detect",
		"current_batch": progress.CurrentBatch,
		"total_batches": progress.TotalBatches,
		"percent":       progress.Percent,
		"throughput":    progress.Throughput,
		"eta_seconds":   int64(progress.ETA.Seconds()),
		"timestamp":     r.timestamp(),
	})
}

func (r *JSONReporter) MatchSummary(summary MatchSummaryInfo) {
	steps := make([]map[string]interface{}, len(summary.Steps))
	for i, step := range summary.Steps {
		steps[i] = map[string]interface{}{
			"step":    step.Name,
			"passed":  step.Passed,
			"details": step.Details,
		}
	}

	r.write(map[string]interface{}{
		"type":         "match_summary",
		"match_passed": summary.Matched,
		"match_steps":  steps,
		"timestamp":    r.timestamp(),
	})
}

func (r *JSONReporter) RunComplete(summary RunOutcome) {
	r.write(map[string]interface{}{
		"type":                 "run_complete",
		"scan_dir":             summary.ScanDir,
		"container_path":       summary.ContainerPath,
		"total_batches":        summary.TotalBatches,
		"total_frames_summed":  summary.TotalFramesSummed,
		"total_peaks_detected": summary.TotalPeaksDetected,
		"total_matched_peaks":  summary.TotalMatchedPeaks,
		"average_throughput":   summary.AverageThroughput,
		"container_size_bytes": summary.ContainerSizeBytes,
		"duration_seconds":     int64(summary.TotalTime.Seconds()),
		"timestamp":            r.timestamp(),
	})
}

func (r *JSONReporter) Warning(message string) {
	r.write(map[string]interface{}{
		"type":      "warning",
		"message":   message,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) Error(err ReporterError) {
	r.write(map[string]interface{}{
		"type":       "error",
		"title":      err.Title,
		"message":    err.Message,
		"context":    err.Context,
		"suggestion": err.Suggestion,
		"timestamp":  r.timestamp(),
	})
}

func (r *JSONReporter) OperationComplete(message string) {
	r.write(map[string]interface{}{
		"type":      "operation_complete",
		"message":   message,
		"timestamp": r.timestamp(),
	})
}

func (r *JSONReporter) ScanStarted(info ScanStartInfo) {
	r.write(map[string]interface{}{
		"type":           "scan_started",
		"total_batches":  info.TotalBatches,
		"batch_ids":      info.BatchIDs,
		"container_path": info.ContainerPath,
		"timestamp":      r.timestamp(),
	})
}

func (r *JSONReporter) BatchProgress(context BatchProgressContext) {
	r.write(map[string]interface{}{
		"type":          "batch_progress",
		"current_batch": context.CurrentBatch,
		"total_batches": context.TotalBatches,
		"timestamp":     r.timestamp(),
	})
}

func (r *JSONReporter) BatchComplete(summary BatchCompleteSummary) {
	r.write(map[string]interface{}{
		"type":                   "batch_complete",
		"successful_count":       summary.SuccessfulCount,
		"total_batches":          summary.TotalBatches,
		"total_peaks_detected":   summary.TotalPeaksDetected,
		"total_matched_peaks":    summary.TotalMatchedPeaks,
		"shape_ok_count":         summary.ShapeOKCount,
		"shape_mismatch_count":   summary.ShapeMismatchCount,
		"total_duration_seconds": int64(summary.TotalDuration.Seconds()),
		"timestamp":              r.timestamp(),
	})
}

func (r *JSONReporter) Verbose(message string) {
	r.write(map[string]interface{}{
		"type":      "verbose",
		"message":   message,
		"timestamp": r.timestamp(),
	})
}
