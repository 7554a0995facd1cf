package estimate

import (
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	mocap "github.com/mvlab/go-mocap"
)

// PoseDetector runs a pose estimation network over video frames using the
// OpenCV DNN module and decodes per joint pixel coordinates.
//
// A PoseDetector is not safe for concurrent use, wrap it in a Pool to
// process views in parallel.
type PoseDetector struct {
	net  gocv.Net
	cfg  DetectorConfig
	conv mocap.Convention
	// resizers caches a letterbox resizer per source frame size
	resizers map[image.Point]*Resizer
	log      zerolog.Logger
}

// NewPoseDetector loads the ONNX pose model ready for inference
func NewPoseDetector(cfg DetectorConfig, conv mocap.Convention,
	log zerolog.Logger) (*PoseDetector, error) {

	if err := conv.Validate(); err != nil {
		return nil, err
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)

	if net.Empty() {
		return nil, fmt.Errorf("error loading model from %s", cfg.ModelPath)
	}

	if cfg.Backend != "" {
		backend := gocv.ParseNetBackend(cfg.Backend)

		if err := net.SetPreferableBackend(backend); err != nil {
			net.Close()
			return nil, fmt.Errorf("error setting net backend %q: %w",
				cfg.Backend, err)
		}
	}

	if cfg.Target != "" {
		target := gocv.ParseNetTarget(cfg.Target)

		if err := net.SetPreferableTarget(target); err != nil {
			net.Close()
			return nil, fmt.Errorf("error setting net target %q: %w",
				cfg.Target, err)
		}
	}

	return &PoseDetector{
		net:      net,
		cfg:      cfg,
		conv:     conv,
		resizers: make(map[image.Point]*Resizer),
		log:      log,
	}, nil
}

// Close frees the network and cached resizers
func (d *PoseDetector) Close() error {

	for _, rz := range d.resizers {
		_ = rz.Close()
	}

	return d.net.Close()
}

// Convention returns the keypoint convention the detector produces
func (d *PoseDetector) Convention() mocap.Convention {
	return d.conv
}

// DetectSequence runs pose detection over the given frames and returns the
// 2D keypoints for each one.  Frames must be in temporal order.
func (d *PoseDetector) DetectSequence(frames []gocv.Mat) (*mocap.Keypoints2D, error) {

	return d.detect(len(frames), func(i int) (gocv.Mat, bool, error) {

		if frames[i].Empty() {
			return gocv.Mat{}, false, fmt.Errorf("frame %d is empty", i)
		}

		return frames[i], false, nil
	})
}

// DetectPaths runs pose detection over the image files at the given paths,
// loading one frame at a time.  Paths must be in temporal order.
func (d *PoseDetector) DetectPaths(paths []string) (*mocap.Keypoints2D, error) {

	return d.detect(len(paths), func(i int) (gocv.Mat, bool, error) {

		img := gocv.IMRead(paths[i], gocv.IMReadColor)

		if img.Empty() {
			return gocv.Mat{}, false, fmt.Errorf("error reading image from: %s",
				paths[i])
		}

		return img, true, nil
	})
}

// detect is the shared detection loop.  fetch returns frame i and whether
// the returned Mat is owned by the loop and should be closed after use.
func (d *PoseDetector) detect(numFrames int,
	fetch func(i int) (gocv.Mat, bool, error)) (*mocap.Keypoints2D, error) {

	start := time.Now()

	kps := mocap.NewKeypoints2D(d.conv, numFrames)

	batch := NewBatch(d.cfg.BatchSize, d.cfg.InputHeight, d.cfg.InputWidth)

	// letterboxed scratch mats reused across batches
	boxed := make([]gocv.Mat, d.cfg.BatchSize)

	for i := range boxed {
		boxed[i] = gocv.NewMat()
	}

	defer func() {
		for i := range boxed {
			boxed[i].Close()
		}
	}()

	// the resizer used for each batch slot, needed to map keypoints back
	// to source coordinates
	resizers := make([]*Resizer, d.cfg.BatchSize)

	done := 0

	for f := 0; f < numFrames; f++ {
		img, owned, err := fetch(f)

		if err != nil {
			return nil, err
		}

		slot := batch.Count()
		rz := d.resizerFor(img.Cols(), img.Rows())

		rz.LetterBoxResize(img, &boxed[slot], padColor)
		resizers[slot] = rz

		if owned {
			img.Close()
		}

		if err := batch.Add(boxed[slot]); err != nil {
			return nil, err
		}

		if batch.Count() == d.cfg.BatchSize {
			if err := d.forward(batch, resizers, kps, done); err != nil {
				return nil, err
			}

			done += batch.Count()
			batch.Clear()
		}
	}

	// flush the remaining partial batch
	if batch.Count() > 0 {
		if err := d.forward(batch, resizers, kps, done); err != nil {
			return nil, err
		}
	}

	d.log.Debug().Int("frames", numFrames).
		Dur("elapsed", time.Since(start)).
		Msg("pose detection complete")

	return kps, nil
}

// forward runs the batched frames through the network and decodes each
// result into the destination sequence starting at frame index start
func (d *PoseDetector) forward(batch *Batch, resizers []*Resizer,
	kps *mocap.Keypoints2D, start int) error {

	blob := gocv.NewMat()
	defer blob.Close()

	batch.Blob(&blob, 1.0/255.0)

	d.net.SetInput(blob, "")

	out := d.net.Forward("")
	defer out.Close()

	dims := out.Size()

	if len(dims) != 3 {
		return fmt.Errorf("unexpected output tensor rank %d", len(dims))
	}

	joints := len(d.conv.Joints)
	channels := 5 + 3*joints

	if dims[0] != batch.Count() {
		return fmt.Errorf("model returned %d results for %d images, "+
			"check the model was exported with batch size %d",
			dims[0], batch.Count(), d.cfg.BatchSize)
	}

	if dims[1] != channels {
		return fmt.Errorf("model has %d output channels, convention %s needs %d",
			dims[1], d.conv.Name, channels)
	}

	anchors := dims[2]

	flat, err := tensorFloats(out)

	if err != nil {
		return err
	}

	for i := 0; i < batch.Count(); i++ {
		sub, err := batch.OutputF32(i, flat, channels*anchors)

		if err != nil {
			return err
		}

		joints2d, valid := decodePose(sub, anchors, joints,
			d.cfg.BoxThreshold, d.cfg.KeypointThreshold, resizers[i])

		frame := start + i
		kps.Frames[frame] = joints2d

		for j, ok := range valid {
			kps.Mask.Set(frame, j, ok)
		}
	}

	return nil
}

// resizerFor returns the letterbox resizer for the given source frame size,
// creating and caching it on first use
func (d *PoseDetector) resizerFor(width, height int) *Resizer {

	key := image.Pt(width, height)

	if rz, ok := d.resizers[key]; ok {
		return rz
	}

	rz := NewResizer(width, height, d.cfg.InputWidth, d.cfg.InputHeight)
	d.resizers[key] = rz

	return rz
}
