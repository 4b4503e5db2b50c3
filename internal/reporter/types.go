// Package reporter provides progress reporting interfaces and implementations.
package reporter

import "time"

// HardwareSummary contains host and CPU topology information gathered at startup.
type HardwareSummary struct {
	Hostname      string
	PhysicalCores int
	LogicalCores  int
}

// RunSummary describes a run before the pipeline starts.
type RunSummary struct {
	ScanDir       string
	ContainerPath string
	DetectorModel string
	BatchSize     int
	Workers       int
}

// ShapeCheckSummary reports the outcome of validating a summed batch's shape
// against the configured detector geometry.
type ShapeCheckSummary struct {
	Message  string
	Shape    string
	Matched  bool
	Disabled bool
}

// DetectorConfigSummary describes the resolved detector configuration.
type DetectorConfigSummary struct {
	Backend           string
	ModelPath         string
	ScoreThreshold    float64
	IoUThreshold      float64
	ExecCommand       string
	PostprocessParams []string
}

// ProgressSnapshot contains pipeline progress information.
type ProgressSnapshot struct {
	CurrentBatch int64
	TotalBatches int64
	Percent      float32
	Throughput   float32
	ETA          time.Duration
}

// MatchSummaryInfo contains peak-matching results for a batch or run.
type MatchSummaryInfo struct {
	Matched bool
	Steps   []MatchStep
}

// MatchStep represents a single matching check (e.g. CIF peak reconciliation).
type MatchStep struct {
	Name    string
	Passed  bool
	Details string
}

// RunOutcome contains final run results.
type RunOutcome struct {
	ScanDir            string
	ContainerPath      string
	TotalBatches       int64
	TotalFramesSummed  int64
	TotalPeaksDetected int64
	TotalMatchedPeaks  int64
	TotalTime          time.Duration
	AverageThroughput  float32
	ContainerSizeBytes uint64
}

// ReporterError contains error information.
type ReporterError struct {
	Title      string
	Message    string
	Context    string
	Suggestion string
}

// ScanStartInfo contains metadata about a run about to start scanning.
type ScanStartInfo struct {
	TotalBatches  int
	BatchIDs      []string
	ContainerPath string
}

// BatchProgressContext identifies the batch currently in flight.
type BatchProgressContext struct {
	CurrentBatch int
	TotalBatches int
}

// BatchCompleteSummary contains run-level completion information.
type BatchCompleteSummary struct {
	SuccessfulCount    int
	TotalBatches       int
	TotalPeaksDetected int64
	TotalMatchedPeaks  int64
	TotalDuration      time.Duration
	AverageThroughput  float32
	BatchResults       []BatchResult
	ShapeOKCount       int
	ShapeMismatchCount int
}

// BatchResult contains per-batch detection result.
type BatchResult struct {
	BatchID       string
	PeaksDetected int
	MatchedPeaks  int
}

// StageProgress represents a generic stage update.
type StageProgress struct {
	Stage   string
	Percent float32
	Message string
	ETA     *time.Duration
}
