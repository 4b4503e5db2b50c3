// Command gixi-server watches a detector frame directory, preprocesses and
// runs peak detection over incoming batches, and persists the results to a
// container file, per one INI config file passed on the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schreiberlab/gixi/internal/config"
	"github.com/schreiberlab/gixi/internal/logging"
	"github.com/schreiberlab/gixi/internal/pipeline"
	"github.com/schreiberlab/gixi/internal/reporter"
	"github.com/schreiberlab/gixi/internal/util"
)

const appVersion = "0.1.0"

var (
	jsonOutput      bool
	logDirFlag      string
	timeRecordsFlag string
	outputFlag      string
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "gixi-server",
		Short: "Watches a detector frame directory and persists peak detections",
	}

	root.AddCommand(newRunCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "gixi-server version %s\n", appVersion)
			return nil
		},
	}
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <config-file>",
		Short: "Run one pipeline job against an INI config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(args[0])
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "emit NDJSON progress events instead of terminal output")
	cmd.Flags().StringVar(&logDirFlag, "log-dir", "", "directory for the run's log file (defaults to <data_dir>/logs)")
	cmd.Flags().StringVar(&timeRecordsFlag, "time-records", "", "path to write the per-stage CSV timing report")
	cmd.Flags().StringVar(&outputFlag, "output", "", "container file or directory overriding <data_dir>/processed")
	return cmd
}

func runPipeline(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logDir := logDirFlag
	if logDir == "" {
		logDir = cfg.Job.DataDir + "/logs"
	}
	logger, closeLog, err := logging.Setup(logDir, cfg.Log.Debug, cfg.Log.LogToFile)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer func() { _ = closeLog() }()
	logging.SetGlobal(logger)

	var rep reporter.Reporter
	if jsonOutput {
		rep = reporter.NewJSONReporter()
	} else {
		rep = reporter.NewTerminalReporter()
	}
	sys := util.GetSystemInfo()
	rep.Hardware(reporter.HardwareSummary{
		Hostname:      sys.Hostname,
		PhysicalCores: util.PhysicalCores(),
		LogicalCores:  util.LogicalCores(),
	})
	rep.RunStarted(reporter.RunSummary{
		ScanDir:   cfg.InputDir(),
		BatchSize: cfg.General.SumImages,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("received shutdown signal, stopping gracefully")
		cancel()
	}()

	timeRecordsPath := timeRecordsFlag
	if timeRecordsPath == "" && cfg.Log.RecordTime {
		timeRecordsPath = cfg.OutputDir() + "/" + cfg.Job.FolderName + ".timerecords.csv"
	}

	containerPath := ""
	if outputFlag != "" {
		info, err := util.ResolveOutputArg(outputFlag)
		if err != nil {
			return fmt.Errorf("resolving --output %q: %w", outputFlag, err)
		}
		if err := util.EnsureDirectory(info.OutputDir); err != nil {
			return fmt.Errorf("creating output directory %s: %w", info.OutputDir, err)
		}
		containerPath = util.ResolveContainerPath(cfg.InputDir(), info.OutputDir, info.FilenameOverride)
	}

	result, err := pipeline.Run(ctx, cfg, pipeline.Options{
		Reporter:        rep,
		Logger:          logger,
		ContainerPath:   containerPath,
		TimeRecordsPath: timeRecordsPath,
	})
	if err != nil {
		rep.Error(reporter.ReporterError{
			Title:   "pipeline failed",
			Message: err.Error(),
		})
		return err
	}

	rep.OperationComplete(fmt.Sprintf(
		"found %d, saved %d, dropped %d batches into %s",
		result.FoundBatches, result.SavedBatches, result.DroppedBatches, result.ContainerPath,
	))
	return nil
}
