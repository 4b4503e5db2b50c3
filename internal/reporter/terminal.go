package reporter

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/schreiberlab/gixi/internal/util"
)

// TerminalReporter outputs human-friendly text to the terminal.
type TerminalReporter struct {
	mu         sync.Mutex
	progress   *progressbar.ProgressBar
	maxPercent float32
	lastStage  string
	cyan       *color.Color
	green      *color.Color
	yellow     *color.Color
	red        *color.Color
	magenta    *color.Color
	bold       *color.Color
}

// NewTerminalReporter creates a new terminal reporter.
func NewTerminalReporter() *TerminalReporter {
	return &TerminalReporter{
		cyan:    color.New(color.FgCyan, color.Bold),
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow, color.Bold),
		red:     color.New(color.FgRed, color.Bold),
		magenta: color.New(color.FgMagenta),
		bold:    color.New(color.Bold),
	}
}

func (r *TerminalReporter) finishProgress() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress != nil {
		_ = r.progress.Finish()
		r.progress = nil
	}
	r.maxPercent = 0
}

func (r *TerminalReporter) Hardware(summary HardwareSummary) {
	fmt.Println()
	_, _ = r.cyan.Println("HARDWARE")
	r.printLabel(10, "Hostname:", summary.Hostname)
	r.printLabel(10, "Cores:", fmt.Sprintf("%d physical / %d logical", summary.PhysicalCores, summary.LogicalCores))
}

// printLabel prints a bold label with fixed width padding followed by a value.
// Width is applied to the plain text before styling to ensure proper alignment.
func (r *TerminalReporter) printLabel(width int, label, value string) {
	paddedLabel := fmt.Sprintf("%-*s", width, label)
	fmt.Printf("  %s %s\n", r.bold.Sprint(paddedLabel), value)
}

func (r *TerminalReporter) RunStarted(summary RunSummary) {
	fmt.Println()
	_, _ = r.cyan.Println("RUN")
	r.printLabel(10, "Scan dir:", summary.ScanDir)
	r.printLabel(10, "Container:", summary.ContainerPath)
	r.printLabel(10, "Model:", summary.DetectorModel)
	r.printLabel(10, "Batch size:", fmt.Sprintf("%d", summary.BatchSize))
	r.printLabel(10, "Workers:", fmt.Sprintf("%d", summary.Workers))
}

func (r *TerminalReporter) StageProgress(update StageProgress) {
	r.mu.Lock()
	if r.lastStage != update.Stage {
		r.mu.Unlock()
		fmt.Println()
		_, _ = r.cyan.Println(strings.ToUpper(update.Stage))
		r.mu.Lock()
		r.lastStage = update.Stage
	}
	r.mu.Unlock()
	fmt.Printf("  %s %s\n", r.magenta.Sprint("›"), update.Message)
}

func (r *TerminalReporter) ShapeCheck(summary ShapeCheckSummary) {
	var status string
	if summary.Disabled {
		status = color.New(color.Faint).Sprint("shape check disabled")
	} else if summary.Matched {
		status = r.green.Sprint(summary.Shape)
	} else {
		status = r.red.Sprint(summary.Shape)
	}
	fmt.Printf("  %s %s (%s)\n", r.bold.Sprint("Shape check:"), summary.Message, status)
}

func (r *TerminalReporter) DetectorConfig(summary DetectorConfigSummary) {
	fmt.Println()
	_, _ = r.cyan.Println("DETECTOR")
	const w = 16
	r.printLabel(w, "Backend:", summary.Backend)
	r.printLabel(w, "Model:", summary.ModelPath)
	r.printLabel(w, "Score threshold:", fmt.Sprintf("%.3f", summary.ScoreThreshold))
	r.printLabel(w, "IoU threshold:", fmt.Sprintf("%.3f", summary.IoUThreshold))
	if summary.ExecCommand != "" {
		r.printLabel(w, "Exec command:", summary.ExecCommand)
	}
	if len(summary.PostprocessParams) > 0 {
		r.printLabel(w, "Postprocess:", strings.Join(summary.PostprocessParams, ", "))
	}
}

func (r *TerminalReporter) PipelineStarted(totalBatches int64) {
	r.finishProgress()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.progress = progressbar.NewOptions64(
		100,
		progressbar.OptionSetDescription(""),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "Detecting [",
			BarEnd:        "]",
		}),
	)
	_ = totalBatches
}

func (r *TerminalReporter) PipelineProgress(progress ProgressSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.progress == nil {
		return
	}

	clamped := progress.Percent
	if clamped > 100 {
		clamped = 100
	}
	if clamped < 0 {
		clamped = 0
	}

	if clamped >= r.maxPercent {
		r.maxPercent = clamped
		_ = r.progress.Set64(int64(clamped))
	}

	desc := fmt.Sprintf("throughput %.1f batches/s, eta %s",
		progress.Throughput, util.FormatDurationFromSecs(int64(progress.ETA.Seconds())))
	r.progress.Describe(desc)
}

func (r *TerminalReporter) MatchSummary(summary MatchSummaryInfo) {
	r.finishProgress()

	fmt.Println()
	_, _ = r.cyan.Println("MATCHING")

	if summary.Matched {
		fmt.Printf("  %s\n", r.green.Add(color.Bold).Sprint("All peaks reconciled"))
	} else {
		fmt.Printf("  %s\n", r.red.Sprint("Unreconciled peaks remain"))
	}

	maxLen := 0
	for _, step := range summary.Steps {
		if len(step.Name) > maxLen {
			maxLen = len(step.Name)
		}
	}

	for _, step := range summary.Steps {
		var status string
		if step.Passed {
			status = r.green.Sprint("✓")
		} else {
			status = r.red.Sprint("✗")
		}
		paddedName := fmt.Sprintf("%-*s", maxLen, step.Name)
		fmt.Printf("  - %s: %s (%s)\n", paddedName, status, step.Details)
	}
}

func (r *TerminalReporter) RunComplete(summary RunOutcome) {
	fmt.Println()
	_, _ = r.cyan.Println("RESULTS")
	fmt.Printf("  %s %s\n", r.bold.Sprint("Container:"), r.bold.Sprint(summary.ContainerPath))
	fmt.Printf("  %s %d batches, %d frames summed\n",
		r.bold.Sprint("Processed:"), summary.TotalBatches, summary.TotalFramesSummed)
	fmt.Printf("  %s %d detected, %d matched\n",
		r.bold.Sprint("Peaks:"), summary.TotalPeaksDetected, summary.TotalMatchedPeaks)
	fmt.Printf("  %s %s\n", r.bold.Sprint("Size:"), util.FormatBytesReadable(summary.ContainerSizeBytes))
	fmt.Printf("  %s %s (avg %.1f batches/s)\n",
		r.bold.Sprint("Time:"),
		util.FormatDurationFromSecs(int64(summary.TotalTime.Seconds())),
		summary.AverageThroughput)
}

func (r *TerminalReporter) Warning(message string) {
	fmt.Println()
	_, _ = r.yellow.Printf("WARN: %s\n", message)
}

func (r *TerminalReporter) Error(err ReporterError) {
	_, _ = fmt.Fprintln(os.Stderr)
	_, _ = r.red.Fprintf(os.Stderr, "ERROR %s\n", err.Title)
	_, _ = fmt.Fprintf(os.Stderr, "  %s\n", err.Message)
	if err.Context != "" {
		_, _ = fmt.Fprintf(os.Stderr, "  Context: %s\n", err.Context)
	}
	if err.Suggestion != "" {
		_, _ = fmt.Fprintf(os.Stderr, "  Suggestion: %s\n", err.Suggestion)
	}
}

func (r *TerminalReporter) OperationComplete(message string) {
	fmt.Println()
	fmt.Printf("%s %s\n", r.green.Add(color.Bold).Sprint("✓"), r.bold.Sprint(message))
}

func (r *TerminalReporter) ScanStarted(info ScanStartInfo) {
	fmt.Println()
	_, _ = r.cyan.Println("SCAN")
	fmt.Printf("  Found %d batches -> %s\n", info.TotalBatches, r.bold.Sprint(info.ContainerPath))
}

func (r *TerminalReporter) BatchProgress(context BatchProgressContext) {
	fmt.Printf("\nBatch %s of %d\n",
		r.bold.Sprint(context.CurrentBatch),
		context.TotalBatches)
}

func (r *TerminalReporter) BatchComplete(summary BatchCompleteSummary) {
	fmt.Println()
	_, _ = r.cyan.Println("RUN SUMMARY")
	fmt.Printf("  %s\n", r.bold.Sprintf("%d of %d batches succeeded", summary.SuccessfulCount, summary.TotalBatches))
	fmt.Printf("  Shape check: %s ok, %s mismatched\n",
		r.green.Sprint(summary.ShapeOKCount),
		r.red.Sprint(summary.ShapeMismatchCount))
	fmt.Printf("  Peaks: %d detected, %d matched\n", summary.TotalPeaksDetected, summary.TotalMatchedPeaks)
	fmt.Printf("  Time: %s (avg %.1f batches/s)\n",
		util.FormatDurationFromSecs(int64(summary.TotalDuration.Seconds())),
		summary.AverageThroughput)

	for _, result := range summary.BatchResults {
		fmt.Printf("  - %s: %d peaks (%d matched)\n", result.BatchID, result.PeaksDetected, result.MatchedPeaks)
	}
}

func (r *TerminalReporter) Verbose(message string) {
	fmt.Printf("  %s %s\n", color.New(color.Faint).Sprint("·"), message)
}
