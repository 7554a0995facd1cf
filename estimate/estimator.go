// Package estimate drives 2D pose detection across camera views and lifts
// the results to 3D keypoints and body model parameters.
package estimate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	mocap "github.com/mvlab/go-mocap"
	"github.com/mvlab/go-mocap/fit"
	"github.com/mvlab/go-mocap/triangulate"
)

// ErrNoFitter is returned by EstimateBodyModel when no optimizer is
// configured, callers treat body model fitting as optional.
var ErrNoFitter = errors.New("no body model fitter configured")

// PoseEstimator produces 2D keypoints, 3D keypoints and body model
// parameters for a multi camera capture.  Run processes materialized frame
// files for every view in one call and is equivalent to calling the three
// estimation methods in sequence.
type PoseEstimator interface {
	// EstimateKeypoints2D detects per frame keypoints in a single view.
	EstimateKeypoints2D(ctx context.Context, view int, frames []gocv.Mat) (*mocap.Keypoints2D, error)
	// EstimateKeypoints3D triangulates per view keypoints, views must be
	// in camera order with nil marking a view without usable frames.
	EstimateKeypoints3D(ctx context.Context, views []*mocap.Keypoints2D) (*mocap.Keypoints3D, error)
	// EstimateBodyModel fits body model parameters to 3D keypoints.
	EstimateBodyModel(ctx context.Context, kps *mocap.Keypoints3D) (*mocap.BodyModel, error)
	// Run processes frame files for all views, viewFrames[v] lists the
	// image files of view v in temporal order, empty marks an absent view.
	Run(ctx context.Context, viewFrames [][]string) (*Result, error)
	// Close frees the estimator's resources.
	Close()
}

// Result holds the artifacts of a full estimation run
type Result struct {
	// Views holds per view 2D keypoints in camera order, nil for views
	// that were absent
	Views []*mocap.Keypoints2D
	// Keypoints are the triangulated 3D joints
	Keypoints *mocap.Keypoints3D
	// Body holds fitted body model parameters, nil when no fitter is
	// configured
	Body *mocap.BodyModel
}

// Params defines the settings for creating a MultiViewEstimator
type Params struct {
	// Config is the estimator configuration
	Config *Config
	// Cameras are the normalized camera parameters in view order
	Cameras []mocap.CameraParameter
	// Fitter overrides the optimizer built from Config.Fitter, optional
	Fitter fit.Fitter
	// Workers is the number of detectors run in parallel, defaults to 1
	Workers int
	// Logger receives estimation diagnostics, optional
	Logger zerolog.Logger
}

// MultiViewEstimator implements PoseEstimator using a pool of pose
// detectors, a DLT triangulator and an external body model optimizer
type MultiViewEstimator struct {
	cfg      *Config
	conv     mocap.Convention
	pool     *Pool
	tri      *triangulate.Triangulator
	smoother *triangulate.Smoother
	fitter   fit.Fitter
	workers  int
	log      zerolog.Logger
}

// New creates a MultiViewEstimator from the given parameters
func New(p Params) (*MultiViewEstimator, error) {

	if p.Config == nil {
		return nil, fmt.Errorf("no estimator config provided")
	}

	if err := p.Config.Validate(); err != nil {
		return nil, err
	}

	conv, err := p.Config.Convention()

	if err != nil {
		return nil, err
	}

	workers := p.Workers

	if workers < 1 {
		workers = 1
	}

	pool, err := NewPool(workers, p.Config.Detector, conv, p.Logger)

	if err != nil {
		return nil, fmt.Errorf("error creating detector pool: %w", err)
	}

	tri, err := triangulate.New(triangulate.Params{
		Cameras:  p.Cameras,
		MinViews: p.Config.MinViews,
		Logger:   p.Logger,
	})

	if err != nil {
		pool.Close()
		return nil, err
	}

	var smoother *triangulate.Smoother

	if p.Config.Smoothing.Enabled {
		smoother = triangulate.NewSmoother(p.Config.Smoothing.ProcessNoise,
			p.Config.Smoothing.MeasureNoise)
	}

	fitter := p.Fitter

	if fitter == nil && p.Config.Fitter.Command != "" {
		variant, err := mocap.ParseVariant(p.Config.Fitter.Variant)

		if err != nil {
			pool.Close()
			return nil, err
		}

		fitter, err = fit.NewCommandFitter(fit.Params{
			Command: p.Config.Fitter.Command,
			Args:    p.Config.Fitter.Args,
			Variant: variant,
			Timeout: time.Duration(p.Config.Fitter.TimeoutSec) * time.Second,
			Logger:  p.Logger,
		})

		if err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &MultiViewEstimator{
		cfg:      p.Config,
		conv:     conv,
		pool:     pool,
		tri:      tri,
		smoother: smoother,
		fitter:   fitter,
		workers:  workers,
		log:      p.Logger,
	}, nil
}

// Close frees the detector pool
func (e *MultiViewEstimator) Close() {
	e.pool.Close()
}

// Convention returns the keypoint convention the estimator produces
func (e *MultiViewEstimator) Convention() mocap.Convention {
	return e.conv
}

// EstimateKeypoints2D detects per frame keypoints in the frames of a
// single camera view
func (e *MultiViewEstimator) EstimateKeypoints2D(ctx context.Context,
	view int, frames []gocv.Mat) (*mocap.Keypoints2D, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	det := e.pool.Get()
	defer e.pool.Return(det)

	kps, err := det.DetectSequence(frames)

	if err != nil {
		return nil, fmt.Errorf("view %d: %w", view, err)
	}

	return kps, nil
}

// EstimateKeypoints3D triangulates per view 2D keypoints into 3D joints,
// smoothing the trajectories when smoothing is enabled
func (e *MultiViewEstimator) EstimateKeypoints3D(ctx context.Context,
	views []*mocap.Keypoints2D) (*mocap.Keypoints3D, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	kps, err := e.tri.Triangulate(views)

	if err != nil {
		return nil, err
	}

	if e.smoother != nil {
		kps = e.smoother.Smooth(kps)
	}

	return kps, nil
}

// EstimateBodyModel fits body model parameters to triangulated keypoints
// using the configured optimizer
func (e *MultiViewEstimator) EstimateBodyModel(ctx context.Context,
	kps *mocap.Keypoints3D) (*mocap.BodyModel, error) {

	if e.fitter == nil {
		return nil, ErrNoFitter
	}

	return e.fitter.Fit(ctx, kps, nil)
}

// Projector returns a projector for the estimator's cameras
func (e *MultiViewEstimator) Projector() *triangulate.Projector {
	return e.tri.Projector()
}

// Run detects keypoints in every view in parallel, triangulates them and
// fits body model parameters when a fitter is configured
func (e *MultiViewEstimator) Run(ctx context.Context,
	viewFrames [][]string) (*Result, error) {

	start := time.Now()

	views := make([]*mocap.Keypoints2D, len(viewFrames))
	errs := make([]error, len(viewFrames))

	var wg sync.WaitGroup

	for v, paths := range viewFrames {
		if len(paths) == 0 {
			// absent view
			continue
		}

		wg.Add(1)

		go func(v int, paths []string) {
			defer wg.Done()

			if err := ctx.Err(); err != nil {
				errs[v] = err
				return
			}

			// Get() blocks if no detectors are available in the pool
			det := e.pool.Get()
			defer e.pool.Return(det)

			kps, err := det.DetectPaths(paths)

			if err != nil {
				errs[v] = fmt.Errorf("view %d: %w", v, err)
				return
			}

			views[v] = kps
		}(v, paths)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	kps3d, err := e.EstimateKeypoints3D(ctx, views)

	if err != nil {
		return nil, err
	}

	res := &Result{
		Views:     views,
		Keypoints: kps3d,
	}

	if e.fitter != nil {
		body, err := e.fitter.Fit(ctx, kps3d, nil)

		if err != nil {
			return nil, err
		}

		res.Body = body
	}

	e.log.Info().Int("views", len(viewFrames)).
		Dur("elapsed", time.Since(start)).
		Msg("estimation complete")

	return res, nil
}
