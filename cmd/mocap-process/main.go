package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mvlab/go-mocap/capture"
	"github.com/mvlab/go-mocap/estimate"
	"github.com/mvlab/go-mocap/framecache"
	"github.com/mvlab/go-mocap/pipeline"
)

// CLI flags
var (
	captureFlag         string
	outputDirFlag       string
	estimatorConfigFlag string
	frameFileFlag       string
	visualizeFlag       bool
	visualizeStrideFlag int
	fontFileFlag        string
	workersFlag         int
	logLevelFlag        string
	disableLogFileFlag  bool
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "mocap-process",
	Short: "Multi-view 3D human pose reconstruction",
	Long: `mocap-process reads a multi-camera capture bundle, estimates 2D
keypoints per view, triangulates them into a 3D skeleton and optionally
fits a parametric body model. Results are written as npz array bundles
to the output directory.

Examples:
  mocap-process --capture ./captures/session07 --estimator-config pose.yaml
  mocap-process --capture ./captures/session07 --frame-file keep --workers 4
  mocap-process --capture ./captures/session07 --visualize --font-file lato.ttf`,
	Run: runProcess,
}

func init() {
	rootCmd.Flags().StringVar(&captureFlag, "capture", "", "Path to the input capture bundle directory")
	rootCmd.Flags().StringVar(&outputDirFlag, "output-dir", "./default_output", "Directory receiving all output files")
	rootCmd.Flags().StringVar(&estimatorConfigFlag, "estimator-config", "", "YAML config file for the pose estimator")
	rootCmd.Flags().StringVar(&frameFileFlag, "frame-file", "none", "Whether to extract frames to the file system: none, temp or keep")
	rootCmd.Flags().BoolVar(&visualizeFlag, "visualize", false, "Write projection overlay videos")
	rootCmd.Flags().IntVar(&visualizeStrideFlag, "visualize-stride", 3, "Render every Nth view when visualizing")
	rootCmd.Flags().StringVar(&fontFileFlag, "font-file", "", "TTF font for overlay labels, built in font when empty")
	rootCmd.Flags().IntVar(&workersFlag, "workers", 1, "Number of views processed in parallel")
	rootCmd.Flags().StringVar(&logLevelFlag, "log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.Flags().BoolVar(&disableLogFileFlag, "disable-log-file", false, "Do not write the per run log file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runProcess is the main execution logic called by Cobra.
func runProcess(cmd *cobra.Command, args []string) {

	boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger()

	if captureFlag == "" {
		boot.Fatal().Msg("no capture bundle given, see --capture")
	}

	if err := ensureOutputDir(outputDirFlag); err != nil {
		boot.Fatal().Err(err).Str("dir", outputDirFlag).
			Msg("output directory is not usable")
	}

	captureID := filepath.Base(filepath.Clean(captureFlag))

	logger, logFile, err := buildLogger(captureID)

	if err != nil {
		boot.Fatal().Err(err).Msg("failed to set up logging")
	}

	if logFile != nil {
		defer logFile.Close()
	}

	strategy, err := framecache.ParseStrategy(frameFileFlag)

	if err != nil {
		logger.Fatal().Err(err).Msg("invalid --frame-file value")
	}

	cfg, err := loadEstimatorConfig(estimatorConfigFlag)

	if err != nil {
		logger.Fatal().Err(err).Str("file", estimatorConfigFlag).
			Msg("failed to load estimator config")
	}

	src, err := capture.OpenBundle(captureFlag)

	if err != nil {
		logger.Fatal().Err(err).Str("capture", captureFlag).
			Msg("failed to open capture bundle")
	}

	defer src.Close()

	p, err := pipeline.New(src, pipeline.DefaultFactory(cfg, workersFlag, logger),
		pipeline.Options{
			OutputDir:       outputDirFlag,
			Strategy:        strategy,
			Workers:         workersFlag,
			Visualize:       visualizeFlag,
			VisualizeStride: visualizeStrideFlag,
			FontFile:        fontFileFlag,
			ShowProgress:    true,
			Logger:          logger,
		})

	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build pipeline")
	}

	report, err := p.Run(context.Background())

	if err != nil {
		logger.Fatal().Err(err).Msg("processing failed")
	}

	fmt.Printf("processed %s: %d frames, %d artifacts in %s\n",
		report.CaptureID, report.Frames, len(report.Files),
		report.Elapsed.Round(time.Millisecond))

	for _, f := range report.Files {
		fmt.Printf("  %s\n", f)
	}
}

// ensureOutputDir creates the output directory when missing, but only if
// its parent already exists
func ensureOutputDir(dir string) error {

	if _, err := os.Stat(dir); err == nil {
		return nil
	}

	parent := filepath.Dir(filepath.Clean(dir))

	if _, err := os.Stat(parent); err != nil {
		return fmt.Errorf("parent directory %s does not exist", parent)
	}

	return os.Mkdir(dir, 0o755)
}

// buildLogger returns a console logger, teeing into a per run log file in
// the output directory unless disabled. The caller closes the returned
// file when done.
func buildLogger(captureID string) (zerolog.Logger, *os.File, error) {

	console := zerolog.ConsoleWriter{Out: os.Stderr}

	var (
		out  zerolog.LevelWriter
		file *os.File
	)

	if disableLogFileFlag {
		out = zerolog.MultiLevelWriter(console)
	} else {
		stamp := time.Now().Format("2006.01.02_15:04:05")
		path := filepath.Join(outputDirFlag,
			fmt.Sprintf("%s_%s.txt", captureID, stamp))

		var err error
		file, err = os.Create(path)

		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("error creating log file: %w", err)
		}

		out = zerolog.MultiLevelWriter(console, file)
	}

	logger := zerolog.New(out).Level(parseLevel(logLevelFlag)).
		With().Timestamp().Logger()

	return logger, file, nil
}

// parseLevel maps the --log-level flag onto a zerolog level, defaulting
// to info
func parseLevel(level string) zerolog.Level {

	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// loadEstimatorConfig reads the YAML estimator config, falling back to
// built in defaults when no file is given
func loadEstimatorConfig(file string) (*estimate.Config, error) {

	if file == "" {
		cfg := estimate.DefaultConfig()

		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("no --estimator-config given and defaults "+
				"are incomplete: %w", err)
		}

		return cfg, nil
	}

	return estimate.LoadConfig(file)
}
