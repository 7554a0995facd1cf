// Package pipeline orchestrates a full capture processing run, from
// calibration normalization and frame acquisition through pose estimation
// to artifact output.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	mocap "github.com/mvlab/go-mocap"
	"github.com/mvlab/go-mocap/capture"
	"github.com/mvlab/go-mocap/estimate"
	"github.com/mvlab/go-mocap/framecache"
	"github.com/mvlab/go-mocap/render"
	"github.com/mvlab/go-mocap/triangulate"
)

// EstimatorFactory builds a pose estimator once the capture's cameras have
// been normalized
type EstimatorFactory func(cameras []mocap.CameraParameter) (estimate.PoseEstimator, error)

// DefaultFactory returns a factory building a MultiViewEstimator from the
// given configuration
func DefaultFactory(cfg *estimate.Config, workers int, log zerolog.Logger) EstimatorFactory {

	return func(cameras []mocap.CameraParameter) (estimate.PoseEstimator, error) {
		return estimate.New(estimate.Params{
			Config:  cfg,
			Cameras: cameras,
			Workers: workers,
			Logger:  log,
		})
	}
}

// Options configure a processing run
type Options struct {
	// OutputDir receives all artifacts, created if missing
	OutputDir string
	// Strategy controls frame materialization
	Strategy framecache.Strategy
	// Workers is the number of views processed in parallel, defaults to 1
	Workers int
	// Visualize writes projection overlay videos for a subset of views
	Visualize bool
	// VisualizeStride selects every Nth view for visualization, defaults
	// to 3
	VisualizeStride int
	// FontFile optionally renders overlay labels with a TTF font
	FontFile string
	// ShowProgress renders progress bars while materializing frames
	ShowProgress bool
	// Logger receives run diagnostics, optional
	Logger zerolog.Logger
}

// Report summarizes a completed run
type Report struct {
	// RunID uniquely identifies this run and is stamped into every artifact
	RunID string
	// CaptureID of the processed capture
	CaptureID string
	// Files lists the artifacts written
	Files []string
	// Frames is the length of the reconstructed sequence
	Frames int
	// Elapsed is the total processing time
	Elapsed time.Duration
}

// Pipeline processes one capture into pose artifacts
type Pipeline struct {
	src     capture.Source
	factory EstimatorFactory
	opts    Options
	runID   string
	log     zerolog.Logger
}

// New creates a Pipeline for the given capture source
func New(src capture.Source, factory EstimatorFactory, opts Options) (*Pipeline, error) {

	if src == nil {
		return nil, fmt.Errorf("no capture source provided")
	}

	if factory == nil {
		return nil, fmt.Errorf("no estimator factory provided")
	}

	if opts.OutputDir == "" {
		return nil, fmt.Errorf("no output directory set")
	}

	switch opts.Strategy {
	case framecache.InMemory, framecache.Temp, framecache.Keep:
	default:
		return nil, fmt.Errorf("unknown frame strategy %q", opts.Strategy)
	}

	if opts.Workers < 1 {
		opts.Workers = 1
	}

	if opts.VisualizeStride < 1 {
		opts.VisualizeStride = 3
	}

	return &Pipeline{
		src:     src,
		factory: factory,
		opts:    opts,
		runID:   uuid.NewString(),
		log:     opts.Logger,
	}, nil
}

// RunID returns the unique identifier stamped into this run's artifacts
func (p *Pipeline) RunID() string {
	return p.runID
}

// Run processes the capture end to end and returns a report of the
// artifacts written
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {

	start := time.Now()

	captureID := p.src.CaptureID()

	p.log.Info().Str("capture", captureID).Str("run_id", p.runID).
		Str("strategy", string(p.opts.Strategy)).Msg("processing capture")

	if err := os.MkdirAll(p.opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating output directory: %w", err)
	}

	// a temp cache is only released once every artifact has been written,
	// failing part way leaves the frames on disk for diagnosis
	var cache *framecache.Cache

	success := false

	if p.opts.Strategy != framecache.InMemory {
		var err error
		cache, err = framecache.New(framecache.Params{
			OutputDir:    p.opts.OutputDir,
			CaptureID:    captureID,
			Strategy:     p.opts.Strategy,
			ShowProgress: p.opts.ShowProgress,
			Logger:       p.log,
		})

		if err != nil {
			return nil, err
		}

		defer func() {
			if err := cache.Release(success); err != nil {
				p.log.Warn().Err(err).Msg("error releasing frame cache")
			}
		}()
	}

	cameras, err := p.normalizeCameras()

	if err != nil {
		return nil, err
	}

	est, err := p.factory(cameras)

	if err != nil {
		return nil, err
	}

	defer est.Close()

	res, err := p.estimate(ctx, est, cache)

	if err != nil {
		return nil, err
	}

	writer := NewWriter(p.opts.OutputDir, captureID, p.runID, p.log)

	files, err := writer.WriteAll(res)

	if err != nil {
		return nil, err
	}

	success = true

	// overlay videos are diagnostics, failures do not fail the run
	if p.opts.Visualize {
		p.visualize(cameras, res)
	}

	frames := 0

	if res.Keypoints != nil {
		frames = res.Keypoints.NumFrames()
	}

	report := &Report{
		RunID:     p.runID,
		CaptureID: captureID,
		Files:     files,
		Frames:    frames,
		Elapsed:   time.Since(start),
	}

	p.log.Info().Int("artifacts", len(files)).Int("frames", frames).
		Dur("elapsed", report.Elapsed).Msg("capture processed")

	return report, nil
}

// normalizeCameras converts the source's raw calibration to normalized
// camera parameters
func (p *Pipeline) normalizeCameras() ([]mocap.CameraParameter, error) {

	raw := make([]mocap.RawCamera, p.src.NumCameras())

	for v := range raw {
		cam, err := p.src.Camera(v)

		if err != nil {
			return nil, err
		}

		raw[v] = cam
	}

	cameras, err := mocap.NormalizeCameras(raw, p.src.Ground())

	if err != nil {
		return nil, fmt.Errorf("error normalizing cameras: %w", err)
	}

	return cameras, nil
}

// estimate runs pose estimation using the configured frame strategy, with
// a nil cache marking the in memory strategy
func (p *Pipeline) estimate(ctx context.Context, est estimate.PoseEstimator,
	cache *framecache.Cache) (*estimate.Result, error) {

	if cache == nil {
		return p.estimateInMemory(ctx, est)
	}

	viewFrames, err := p.materialize(cache)

	if err != nil {
		return nil, err
	}

	return est.Run(ctx, viewFrames)
}

// materialize writes every view's frames to the cache, reusing frames kept
// by an earlier run where possible
func (p *Pipeline) materialize(cache *framecache.Cache) ([][]string, error) {

	viewFrames := make([][]string, p.src.NumCameras())

	for v := range viewFrames {
		if cached := cache.CachedView(v); cached != nil {
			viewFrames[v] = cached
			continue
		}

		stream, err := p.src.ColorFrames(v)

		if err != nil {
			return nil, err
		}

		if stream == nil {
			// absent view
			p.log.Warn().Int("view", v).Msg("view has no recording")
			continue
		}

		paths, err := cache.MaterializeView(v, stream, stream.Frames())
		stream.Close()

		if err != nil {
			return nil, err
		}

		viewFrames[v] = paths
	}

	return viewFrames, nil
}

// estimateInMemory decodes each view's frames straight into memory and
// estimates keypoints without touching disk
func (p *Pipeline) estimateInMemory(ctx context.Context,
	est estimate.PoseEstimator) (*estimate.Result, error) {

	numViews := p.src.NumCameras()

	views := make([]*mocap.Keypoints2D, numViews)
	errs := make([]error, numViews)

	// bound the number of views buffered at once
	sem := make(chan struct{}, p.opts.Workers)

	var wg sync.WaitGroup

	for v := 0; v < numViews; v++ {
		wg.Add(1)

		go func(v int) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				errs[v] = err
				return
			}

			stream, err := p.src.ColorFrames(v)

			if err != nil {
				errs[v] = err
				return
			}

			if stream == nil {
				// absent view
				p.log.Warn().Int("view", v).Msg("view has no recording")
				return
			}

			frames := capture.BufferFrames(stream)
			stream.Close()

			defer capture.CloseFrames(frames)

			if len(frames) == 0 {
				p.log.Warn().Int("view", v).Msg("view has no frames")
				return
			}

			kps, err := est.EstimateKeypoints2D(ctx, v, frames)

			if err != nil {
				errs[v] = err
				return
			}

			views[v] = kps
		}(v)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	kps3d, err := est.EstimateKeypoints3D(ctx, views)

	if err != nil {
		return nil, err
	}

	res := &estimate.Result{
		Views:     views,
		Keypoints: kps3d,
	}

	body, err := est.EstimateBodyModel(ctx, kps3d)

	switch {
	case errors.Is(err, estimate.ErrNoFitter):
		// body model fitting is optional
	case err != nil:
		return nil, err
	default:
		res.Body = body
	}

	return res, nil
}

// visualize writes projection overlay videos for every Nth view
func (p *Pipeline) visualize(cameras []mocap.CameraParameter, res *estimate.Result) {

	if res.Keypoints == nil {
		return
	}

	projector, err := triangulate.NewProjector(cameras)

	if err != nil {
		p.log.Warn().Err(err).Msg("error creating projector for visualization")
		return
	}

	captureID := p.src.CaptureID()

	for v := 0; v < p.src.NumCameras(); v += p.opts.VisualizeStride {
		if v >= len(res.Views) || res.Views[v] == nil {
			continue
		}

		projected, err := projector.ProjectView(v, res.Keypoints)

		if err != nil {
			p.log.Warn().Err(err).Int("view", v).Msg("error projecting view")
			continue
		}

		stream, err := p.src.ColorFrames(v)

		if err != nil || stream == nil {
			p.log.Warn().Err(err).Int("view", v).Msg("error reopening view frames")
			continue
		}

		file := filepath.Join(p.opts.OutputDir,
			fmt.Sprintf("%s_projected_%02d.mp4", captureID, v))

		hudFont := render.DefaultFont()
		hudFont.Color = render.ViewColor(v)

		err = render.WriteOverlayVideo(file, stream, projected, render.OverlayParams{
			FPS:        p.src.FPS(),
			Label:      fmt.Sprintf("%s view %02d", captureID, v),
			LabelColor: &hudFont,
			FontFile:   p.opts.FontFile,
		})

		stream.Close()

		if err != nil {
			p.log.Warn().Err(err).Int("view", v).Msg("error writing overlay video")
			continue
		}

		p.log.Info().Str("file", file).Msg("wrote overlay video")
	}
}
