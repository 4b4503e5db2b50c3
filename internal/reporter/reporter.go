package reporter

// Reporter defines the interface for progress reporting.
type Reporter interface {
	Hardware(summary HardwareSummary)
	RunStarted(summary RunSummary)
	StageProgress(update StageProgress)
	ShapeCheck(summary ShapeCheckSummary)
	DetectorConfig(summary DetectorConfigSummary)
	PipelineStarted(totalBatches int64)
	PipelineProgress(progress ProgressSnapshot)
	MatchSummary(summary MatchSummaryInfo)
	RunComplete(summary RunOutcome)
	Warning(message string)
	Error(err ReporterError)
	OperationComplete(message string)
	ScanStarted(info ScanStartInfo)
	BatchProgress(context BatchProgressContext)
	BatchComplete(summary BatchCompleteSummary)
	Verbose(message string)
}

// NullReporter is a no-op reporter that discards all updates.
type NullReporter struct{}

func (NullReporter) Hardware(HardwareSummary)             {}
func (NullReporter) RunStarted(RunSummary)                {}
func (NullReporter) StageProgress(StageProgress)          {}
func (NullReporter) ShapeCheck(ShapeCheckSummary)         {}
func (NullReporter) DetectorConfig(DetectorConfigSummary) {}
func (NullReporter) PipelineStarted(int64)                {}
func (NullReporter) PipelineProgress(ProgressSnapshot)    {}
func (NullReporter) MatchSummary(MatchSummaryInfo)        {}
func (NullReporter) RunComplete(RunOutcome)               {}
func (NullReporter) Warning(string)                       {}
func (NullReporter) Error(ReporterError)                  {}
func (NullReporter) OperationComplete(string)             {}
func (NullReporter) ScanStarted(ScanStartInfo)            {}
func (NullReporter) BatchProgress(BatchProgressContext)   {}
func (NullReporter) BatchComplete(BatchCompleteSummary)   {}
func (NullReporter) Verbose(string)                       {}
