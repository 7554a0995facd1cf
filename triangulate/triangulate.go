/*
Package triangulate fuses per view 2D keypoints into world space 3D
keypoints with the direct linear transform, projects world points back
into camera images and optionally smooths joint trajectories.
*/
package triangulate

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	mocap "github.com/mvlab/go-mocap"
)

var (
	// ErrConventionMismatch is returned when views carry keypoints in
	// different conventions.
	ErrConventionMismatch = errors.New("views use different keypoint conventions")
	// ErrNoViews is returned when every view of a capture is absent.
	ErrNoViews = errors.New("no view produced keypoints")
)

// Params configures a Triangulator.
type Params struct {
	// Cameras are normalized camera parameters, one per view, in view
	// order.
	Cameras []mocap.CameraParameter
	// MinViews is the minimum number of observing views a joint needs
	// to be reconstructed. Values below 2 are raised to 2.
	MinViews int
	// Logger receives per view diagnostics. Optional.
	Logger zerolog.Logger
}

// Triangulator solves for 3D joints from multiple calibrated views.
type Triangulator struct {
	cams     []mocap.CameraParameter
	projs    []*mat.Dense
	minViews int
	log      zerolog.Logger
}

// New returns a Triangulator over the given cameras with their
// projection matrices precomputed.
func New(p Params) (*Triangulator, error) {

	if len(p.Cameras) == 0 {
		return nil, mocap.ErrNoCameras
	}

	if p.MinViews < 2 {
		p.MinViews = 2
	}

	projs := make([]*mat.Dense, len(p.Cameras))
	for i, cam := range p.Cameras {
		projs[i] = cam.ProjectionMatrix()
	}

	return &Triangulator{
		cams:     p.Cameras,
		projs:    projs,
		minViews: p.MinViews,
		log:      p.Logger,
	}, nil
}

// Projector returns a projector over the triangulator's cameras.
func (t *Triangulator) Projector() *Projector {
	return &Projector{cams: t.cams, projs: t.projs}
}

// Triangulate fuses per view keypoints into a world space sequence.
// views is indexed by camera and may hold nil entries for absent views.
// Joints observed by fewer than MinViews views in a frame come back
// with an invalid mask entry and zero coordinates rather than an error,
// and every valid observation contributes to the least squares system.
func (t *Triangulator) Triangulate(views []*mocap.Keypoints2D) (*mocap.Keypoints3D, error) {

	if len(views) != len(t.cams) {
		return nil, fmt.Errorf("got %d views for %d cameras", len(views), len(t.cams))
	}

	conv, frames, err := t.sequenceShape(views)
	if err != nil {
		return nil, err
	}

	out := mocap.NewKeypoints3D(conv, frames)
	joints := len(conv.Joints)

	// scratch rows for the DLT system, two per contributing view
	rows := make([]float64, 0, 8*len(views))

	for f := 0; f < frames; f++ {
		for j := 0; j < joints; j++ {

			rows = rows[:0]
			seen := 0

			for v, kp := range views {
				if kp == nil || !kp.Mask.Valid(f, j) {
					continue
				}
				pt := kp.Frames[f][j]
				rows = appendDLTRows(rows, t.projs[v], pt.X, pt.Y)
				seen++
			}

			if seen < t.minViews {
				continue
			}

			pt, ok := solveDLT(rows)
			if !ok {
				continue
			}

			out.Frames[f][j] = pt
			out.Mask.Set(f, j, true)
		}
	}

	return out, nil
}

// sequenceShape checks that present views agree on convention and frame
// count and returns the shared shape.
func (t *Triangulator) sequenceShape(views []*mocap.Keypoints2D) (mocap.Convention, int, error) {

	first := -1

	for v, kp := range views {
		if kp == nil {
			t.log.Warn().Int("view", v).Msg("view has no keypoints, skipping")
			continue
		}
		if first < 0 {
			first = v
			continue
		}
		if !kp.Convention.Equal(views[first].Convention) {
			return mocap.Convention{}, 0, fmt.Errorf("view %d uses %s, view %d uses %s: %w",
				v, kp.Convention.Name, first, views[first].Convention.Name, ErrConventionMismatch)
		}
		if kp.NumFrames() != views[first].NumFrames() {
			return mocap.Convention{}, 0, fmt.Errorf("view %d has %d frames, view %d has %d",
				v, kp.NumFrames(), first, views[first].NumFrames())
		}
	}

	if first < 0 {
		return mocap.Convention{}, 0, ErrNoViews
	}

	return views[first].Convention, views[first].NumFrames(), nil
}

// appendDLTRows adds the two homogeneous constraint rows a pixel
// observation (x, y) contributes under projection p:
// x·p₂-p₀ and y·p₂-p₁.
func appendDLTRows(rows []float64, p *mat.Dense, x, y float64) []float64 {

	for c := 0; c < 4; c++ {
		rows = append(rows, x*p.At(2, c)-p.At(0, c))
	}
	for c := 0; c < 4; c++ {
		rows = append(rows, y*p.At(2, c)-p.At(1, c))
	}
	return rows
}

// solveDLT returns the dehomogenized least squares solution of A·X = 0,
// the right singular vector of the smallest singular value.
func solveDLT(rows []float64) (mocap.Joint3D, bool) {

	a := mat.NewDense(len(rows)/4, 4, rows)

	svd := mat.SVD{}
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return mocap.Joint3D{}, false
	}

	var v mat.Dense
	svd.VTo(&v)

	w := v.At(3, 3)
	if math.Abs(w) < 1e-12 {
		return mocap.Joint3D{}, false
	}

	return mocap.Joint3D{
		X: v.At(0, 3) / w,
		Y: v.At(1, 3) / w,
		Z: v.At(2, 3) / w,
	}, true
}
