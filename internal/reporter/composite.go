package reporter

// CompositeReporter fans out events to multiple reporters.
type CompositeReporter struct {
	reporters []Reporter
}

// NewCompositeReporter creates a composite reporter.
func NewCompositeReporter(reporters ...Reporter) *CompositeReporter {
	return &CompositeReporter{reporters: reporters}
}

func (c *CompositeReporter) Hardware(summary HardwareSummary) {
	for _, r := range c.reporters {
		r.Hardware(summary)
	}
}

func (c *CompositeReporter) RunStarted(summary RunSummary) {
	for _, r := range c.reporters {
		r.RunStarted(summary)
	}
}

func (c *CompositeReporter) StageProgress(update StageProgress) {
	for _, r := range c.reporters {
		r.StageProgress(update)
	}
}

func (c *CompositeReporter) ShapeCheck(summary ShapeCheckSummary) {
	for _, r := range c.reporters {
		r.ShapeCheck(summary)
	}
}

func (c *CompositeReporter) DetectorConfig(summary DetectorConfigSummary) {
	for _, r := range c.reporters {
		r.DetectorConfig(summary)
	}
}

func (c *CompositeReporter) PipelineStarted(totalBatches int64) {
	for _, r := range c.reporters {
		r.PipelineStarted(totalBatches)
	}
}

func (c *CompositeReporter) PipelineProgress(progress ProgressSnapshot) {
	for _, r := range c.reporters {
		r.PipelineProgress(progress)
	}
}

func (c *CompositeReporter) MatchSummary(summary MatchSummaryInfo) {
	for _, r := range c.reporters {
		r.MatchSummary(summary)
	}
}

func (c *CompositeReporter) RunComplete(summary RunOutcome) {
	for _, r := range c.reporters {
		r.RunComplete(summary)
	}
}

func (c *CompositeReporter) Warning(message string) {
	for _, r := range c.reporters {
		r.Warning(message)
	}
}

func (c *CompositeReporter) Error(err ReporterError) {
	for _, r := range c.reporters {
		r.Error(err)
	}
}

func (c *CompositeReporter) OperationComplete(message string) {
	for _, r := range c.reporters {
		r.OperationComplete(message)
	}
}

func (c *CompositeReporter) ScanStarted(info ScanStartInfo) {
	for _, r := range c.reporters {
		r.ScanStarted(info)
	}
}

func (c *CompositeReporter) BatchProgress(context BatchProgressContext) {
	for _, r := range c.reporters {
		r.BatchProgress(context)
	}
}

func (c *CompositeReporter) BatchComplete(summary BatchCompleteSummary) {
	for _, r := range c.reporters {
		r.BatchComplete(summary)
	}
}

func (c *CompositeReporter) Verbose(message string) {
	for _, r := range c.reporters {
		r.Verbose(message)
	}
}
