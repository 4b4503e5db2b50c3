// Package pipeline wires the scanner, preprocessor pool, detector, and
// writer into one running job over the coordinator's channels. Each stage
// owns the channel it writes to and closes it when its own work (and
// everything upstream of it) has finished, so the writer's final drain loop
// is the single point that tells Run when the whole job is done.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/schreiberlab/gixi/internal/config"
	"github.com/schreiberlab/gixi/internal/container"
	"github.com/schreiberlab/gixi/internal/coordinator"
	"github.com/schreiberlab/gixi/internal/detect"
	gixierrors "github.com/schreiberlab/gixi/internal/errors"
	"github.com/schreiberlab/gixi/internal/logging"
	"github.com/schreiberlab/gixi/internal/match"
	"github.com/schreiberlab/gixi/internal/preprocess"
	"github.com/schreiberlab/gixi/internal/reporter"
	"github.com/schreiberlab/gixi/internal/scanner"
	"github.com/schreiberlab/gixi/internal/timerecorder"
	"github.com/schreiberlab/gixi/internal/util"
	"github.com/schreiberlab/gixi/internal/worker"
)

// Options bundles the dependencies Run needs beyond cfg, letting tests
// inject a stub detector and a null reporter without touching config.
type Options struct {
	// Detector runs inference; nil builds an ExecDetector from cfg.
	Detector detect.Detector
	// Reporter receives progress events; nil uses reporter.NullReporter.
	Reporter reporter.Reporter
	// Logger receives structured log output; nil builds a default one.
	Logger *logging.Logger
	// ContainerPath overrides the resolved output container path.
	ContainerPath string
	// TimeRecordsPath, if set, writes the merged timing report on exit.
	TimeRecordsPath string
	// Workers overrides the preprocessor pool size; <=0 resolves from
	// cfg.Cluster.MaxCores and the host's physical core count.
	Workers int
}

// Result summarizes one completed run.
type Result struct {
	FoundBatches   int64
	SavedBatches   int64
	DroppedBatches int64
	Errored        bool
	ContainerPath  string
	RunBucket      string
}

// Run executes one full pipeline job against cfg until the scanner
// exhausts its input (or times out in real-time mode), every in-flight
// batch has drained through the detector and writer, or a fatal error
// aborts the run. Class-1 fatal-at-init failures (missing source
// directory, bad model command, unwritable container) are returned
// directly before any goroutine starts; every later failure is logged and
// the offending batch dropped.
func Run(ctx context.Context, cfg *config.Config, opts Options) (Result, error) {
	rep := opts.Reporter
	if rep == nil {
		rep = reporter.NullReporter{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	logging.SetGlobal(logger)

	srcDir := cfg.InputDir()
	if !util.DirectoryExists(srcDir) {
		return Result{}, gixierrors.NewPathError(fmt.Sprintf("source directory does not exist: %s", srcDir))
	}

	detector := opts.Detector
	if detector == nil {
		d, err := detect.NewExecDetector(cfg)
		if err != nil {
			return Result{}, err
		}
		detector = d
	}
	if exec, ok := detector.(*detect.ExecDetector); ok {
		backend := "cpu"
		if cfg.Cluster.UseCUDA {
			backend = "cuda"
		}
		rep.DetectorConfig(reporter.DetectorConfigSummary{
			Backend:        backend,
			ModelPath:      cfg.Model.Path,
			ScoreThreshold: exec.ScoreThreshold,
			IoUThreshold:   exec.IoUThreshold,
			ExecCommand:    exec.Command,
		})
	}

	containerPath := opts.ContainerPath
	if containerPath == "" {
		if err := util.EnsureDirectory(cfg.OutputDir()); err != nil {
			return Result{}, gixierrors.NewWriteError(fmt.Sprintf("creating output directory %s", cfg.OutputDir()), err)
		}
		if err := util.EnsureDirectoryWritable(cfg.OutputDir()); err != nil {
			return Result{}, gixierrors.NewWriteError(fmt.Sprintf("output directory %s", cfg.OutputDir()), err)
		}
		if n, err := util.CleanupStaleTempFiles(cfg.OutputDir(), ".writetest", time.Hour); err == nil && n > 0 {
			logger.Debug("removed stale write probes", "count", n)
		}
		util.CheckDiskSpace(cfg.OutputDir(), func(format string, args ...any) {
			logger.Warn(fmt.Sprintf(format, args...))
		})
		containerPath = util.ResolveContainerPath(srcDir, cfg.OutputDir(), "")
	}

	writer, err := container.Open(containerPath, srcDir, cfg.Save)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = writer.Close() }()

	var matcher *match.Matcher
	if cfg.Match.PerformMatching {
		qMax := math.Hypot(cfg.QSpace.QxyMax, cfg.QSpace.QzMax)
		m, err := match.NewMatcher(cfg.Match.CIFDir, qMax, cfg.QSpace.Wavelength, cfg.Match.MaxDistance)
		if err != nil {
			logger.Warn("matching disabled: failed to load CIF directory", "error", err)
		} else {
			matcher = m
		}
	}

	recorder := timerecorder.New()
	coord := coordinator.New(cfg.Parallel.MaxBatch, recorder)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Only an error or a whole-job timeout forces an abort of in-flight
	// work; the scanner's own natural end just stops new input via
	// coord.SetStop() and lets the pool/detector/writer drain what's
	// already queued.
	go func() {
		<-coord.Done
		if coord.Errored() {
			cancel()
		}
	}()

	if budgetSecs, ok := util.ParseClockTime(cfg.Cluster.Time); ok && budgetSecs > 0 {
		budget := time.Duration(budgetSecs*0.9) * time.Second
		timer := time.AfterFunc(budget, func() {
			logger.Warn("whole-job time budget reached, stopping", "budget", budget)
			coord.SetStop()
			cancel()
		})
		defer timer.Stop()
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = resolveWorkerCount(cfg)
	}
	rep.Verbose(fmt.Sprintf("resolved %d preprocessor workers (physical cores minus 2, clamped by cluster_config.max_cores)", workers))

	grids := preprocess.BuildGrids(cfg)
	rep.Verbose(fmt.Sprintf("built q-space (%dx%d) and polar (%dx%d) remap grids", grids.QSpace.Rows, grids.QSpace.Cols, grids.Polar.Rows, grids.Polar.Cols))
	pool := preprocess.NewPool(cfg, grids, logger)
	pool.Recorder = recorder
	pool.TotalHint = func() int { return int(coord.FoundBatches()) }
	pool.OnProgress = func(p worker.Progress) {
		rep.StageProgress(reporter.StageProgress{
			Stage:   "preprocess",
			Percent: float32(p.Percent()),
			Message: fmt.Sprintf("%d/%d batches (%d dropped)", p.BatchesComplete, p.BatchesTotal, p.BatchesDropped),
		})
	}
	pool.OnPanic = func(r any) {
		rep.Error(reporter.ReporterError{Title: "preprocessor worker panicked", Message: fmt.Sprint(r)})
		coord.SetError()
	}

	sc := scanner.New(cfg, logger)
	sc.Recorder = recorder
	sc.OnEmit = func(int) { coord.IncFound() }
	sc.OnPanic = func(r any) {
		rep.Error(reporter.ReporterError{Title: "scanner panicked", Message: fmt.Sprint(r)})
		coord.SetError()
	}

	rep.ScanStarted(reporter.ScanStartInfo{ContainerPath: containerPath})
	rep.PipelineStarted(0)

	go func() {
		sc.Run(runCtx, coord.Qp)
		coord.SetStop()
	}()

	poolResults := make(chan worker.PreprocessResult, cfg.Parallel.MaxBatch)
	go pool.Run(runCtx, workers, coord.Qp, coord.Qi, poolResults)

	poolResultsDone := make(chan struct{})
	go func() {
		defer close(poolResultsDone)
		for r := range poolResults {
			if r.Dropped {
				// A dropped batch no longer counts as found, so the
				// found/saved pair still converges on a clean run; the
				// dropped counter keeps the loss visible in the summary.
				coord.DecFound()
				coord.IncDropped()
				logger.Warn("preprocessor dropped a batch", "error", r.Error)
				msg := ""
				if r.Error != nil {
					msg = r.Error.Error()
				}
				rep.ShapeCheck(reporter.ShapeCheckSummary{Message: msg, Matched: false})
				rep.Warning(fmt.Sprintf("dropped a batch: %s", msg))
			}
		}
	}()

	go runDetector(runCtx, coord, detector, coord.Qi, cfg)

	var totalPeaks, totalMatched int64
	var batchResults []reporter.BatchResult
	for res := range coord.Qr {
		rep.BatchProgress(reporter.BatchProgressContext{
			CurrentBatch: int(coord.SavedBatches()) + 1,
			TotalBatches: int(coord.FoundBatches()),
		})

		var mr map[string]match.Result
		if matcher != nil {
			boxes := make([][4]float64, len(res.Detections))
			for i, d := range res.Detections {
				boxes[i] = d.Box
			}
			mr = matcher.Match(boxes)

			var steps []reporter.MatchStep
			matchedAny := false
			for name, r := range mr {
				matched := len(r.SimIdx) > 0
				matchedAny = matchedAny || matched
				steps = append(steps, reporter.MatchStep{Name: name, Passed: matched, Details: fmt.Sprintf("metric=%.4f", r.Metric)})
				totalMatched += int64(len(r.SimIdx))
			}
			rep.MatchSummary(reporter.MatchSummaryInfo{Matched: matchedAny, Steps: steps})
		}

		totalPeaks += int64(len(res.Detections))
		batchID := ""
		if len(res.Record.Paths.Paths) > 0 {
			batchID = res.Record.Paths.Paths[0]
		}

		writeStart := time.Now()
		err := writer.WriteRecord(srcDir, res.Record, res.Detections, mr)
		recorder.Record("write", coord.SavedBatches(), writeStart, time.Since(writeStart))
		if err != nil {
			logger.Error("writer failed", "error", err, "paths", res.Record.Paths.Paths)
			rep.Warning(fmt.Sprintf("writer failed for %s: %v", batchID, err))
			coord.IncDropped()
			continue
		}
		coord.IncSaved()
		batchResults = append(batchResults, reporter.BatchResult{BatchID: batchID, PeaksDetected: len(res.Detections)})
		percent := float32(0)
		if total := coord.FoundBatches(); total > 0 {
			percent = float32(coord.SavedBatches()) / float32(total) * 100
		}
		rep.PipelineProgress(reporter.ProgressSnapshot{
			CurrentBatch: coord.SavedBatches(),
			TotalBatches: coord.FoundBatches(),
			Percent:      percent,
			Throughput:   float32(util.CalculateThroughput(coord.SavedBatches(), coord.Elapsed().Seconds())),
		})
	}
	<-poolResultsDone

	if opts.TimeRecordsPath != "" {
		if err := recorder.WriteCSV(opts.TimeRecordsPath); err != nil {
			logger.Warn("failed to write time-records file", "error", err)
		}
	}

	rep.BatchComplete(reporter.BatchCompleteSummary{
		SuccessfulCount:    int(coord.SavedBatches()),
		TotalBatches:       int(coord.FoundBatches()),
		TotalPeaksDetected: totalPeaks,
		TotalMatchedPeaks:  totalMatched,
		TotalDuration:      coord.Elapsed(),
		AverageThroughput:  float32(util.CalculateThroughput(coord.SavedBatches(), coord.Elapsed().Seconds())),
		BatchResults:       batchResults,
		ShapeOKCount:       int(coord.SavedBatches()),
		ShapeMismatchCount: int(coord.DroppedBatches()),
	})

	rep.RunComplete(reporter.RunOutcome{
		ScanDir:            srcDir,
		ContainerPath:      containerPath,
		TotalBatches:       coord.SavedBatches(),
		TotalPeaksDetected: totalPeaks,
		TotalMatchedPeaks:  totalMatched,
		TotalTime:          coord.Elapsed(),
		AverageThroughput:  float32(util.CalculateThroughput(coord.SavedBatches(), coord.Elapsed().Seconds())),
	})

	result := Result{
		FoundBatches:   coord.FoundBatches(),
		SavedBatches:   coord.SavedBatches(),
		DroppedBatches: coord.DroppedBatches(),
		Errored:        coord.Errored(),
		ContainerPath:  containerPath,
		RunBucket:      writer.RunBucketName(),
	}
	if coord.Errored() {
		return result, gixierrors.NewDetectionError("pipeline aborted after a worker error", nil)
	}
	return result, nil
}

// runDetector batches incoming ProcessedRecords up to cfg.Parallel.MaxBatch,
// runs one Detector.RunBatch call per batch, computes per-box intensities
// against each record's polar image when configured, and forwards a
// coordinator.QrResult per record onto coord.Qr. It closes coord.Qr once in
// is drained, the sole signal Run's writer loop waits on to finish. A
// detector panic (Class-3: a crashed worker, not a per-batch inference
// failure) is recovered and escalated to coord.SetError() instead of
// propagating, so one bad batch cannot take down the whole process.
func runDetector(ctx context.Context, coord *coordinator.Coordinator, detector detect.Detector, in <-chan preprocess.ProcessedRecord, cfg *config.Config) {
	defer close(coord.Qr)
	defer func() {
		if r := recover(); r != nil {
			logging.Global().Error("detector stage panicked", "recover", r)
			coord.SetError()
		}
	}()

	maxBatch := cfg.Parallel.MaxBatch
	if maxBatch < 1 {
		maxBatch = 1
	}

	var batchIdx int64
	for {
		batch, ok := collectBatch(ctx, in, maxBatch)
		if len(batch) == 0 {
			if !ok {
				return
			}
			continue
		}

		start := time.Now()
		dets, err := detector.RunBatch(ctx, batch)
		if coord.Recorder != nil {
			coord.Recorder.Record("detect", batchIdx, start, time.Since(start))
		}
		batchIdx++
		if err != nil {
			logging.Global().Error("detector batch failed, dropping", "error", err, "size", len(batch))
			for range batch {
				coord.IncDropped()
			}
			if !ok {
				return
			}
			continue
		}

		for i, rec := range batch {
			recDets := dets[i]
			if cfg.Save.SaveIntensities && rec.PolarImg != nil {
				for j := range recDets {
					recDets[j].Intensity = detect.IntensityForBox(*rec.PolarImg, recDets[j].Box)
				}
			}
			select {
			case coord.Qr <- coordinator.QrResult{Record: rec, Detections: recDets}:
			case <-ctx.Done():
				return
			}
		}

		if !ok {
			return
		}
	}
}

// collectBatch drains up to maxBatch records from in without blocking past
// the first available record, or until in closes or ctx is cancelled.
// ok reports whether in is still open (false once it has been drained and
// closed, meaning the caller should return after handling this batch).
func collectBatch(ctx context.Context, in <-chan preprocess.ProcessedRecord, maxBatch int) (batch []preprocess.ProcessedRecord, ok bool) {
	select {
	case rec, open := <-in:
		if !open {
			return nil, false
		}
		batch = append(batch, rec)
	case <-ctx.Done():
		return nil, false
	}

	for len(batch) < maxBatch {
		select {
		case rec, open := <-in:
			if !open {
				return batch, false
			}
			batch = append(batch, rec)
		case <-ctx.Done():
			return batch, false
		default:
			return batch, true
		}
	}
	return batch, true
}

// resolveWorkerCount sizes the preprocessor pool at physical-cores-minus-2
// (one core each for the scanner and writer), honoring
// cluster_config.max_cores as a ceiling when positive, and clamps the
// result so the pool's in-flight records fit in available memory.
func resolveWorkerCount(cfg *config.Config) int {
	cores := util.PhysicalCores()
	if cfg.Cluster.MaxCores > 0 && cfg.Cluster.MaxCores < cores {
		cores = cfg.Cluster.MaxCores
	}
	n := cores - 2
	if n < 1 {
		n = 1
	}
	if util.AvailableMemoryBytes() > 0 {
		if permits := util.MaxPermitsForMemory(batchMemBytes(cfg), 0.7); permits < n {
			n = permits
		}
	}
	return n
}

// batchMemBytes estimates the resident size of one in-flight batch: the raw
// frames being summed plus the summed, q-space, polar, and processed images
// a ProcessedRecord can carry.
func batchMemBytes(cfg *config.Config) uint64 {
	det := uint64(cfg.QSpace.SizeY) * uint64(cfg.QSpace.SizeX)
	q := uint64(cfg.QSpace.QzNum) * uint64(cfg.QSpace.QxyNum)
	pol := uint64(cfg.Polar.AngularSize) * uint64(cfg.Polar.QSize)
	frames := uint64(cfg.General.SumImages) * det
	return 4 * (frames + det + q + 2*pol)
}
