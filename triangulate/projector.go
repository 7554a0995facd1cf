package triangulate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	mocap "github.com/mvlab/go-mocap"
)

// Projector maps world space keypoints back into camera images, the
// inverse direction of triangulation. It reads the sequence it is given
// and never modifies it.
type Projector struct {
	cams  []mocap.CameraParameter
	projs []*mat.Dense
}

// NewProjector returns a projector over the given normalized cameras.
func NewProjector(cams []mocap.CameraParameter) (*Projector, error) {

	if len(cams) == 0 {
		return nil, mocap.ErrNoCameras
	}

	projs := make([]*mat.Dense, len(cams))
	for i, cam := range cams {
		projs[i] = cam.ProjectionMatrix()
	}

	return &Projector{cams: cams, projs: projs}, nil
}

// NumCameras returns the number of cameras the projector covers.
func (p *Projector) NumCameras() int {
	return len(p.cams)
}

// ProjectView projects the sequence into one camera. Joints flagged
// invalid stay invalid with zero coordinates, as do points on the
// camera plane that have no finite image.
func (p *Projector) ProjectView(view int, kp *mocap.Keypoints3D) (*mocap.Keypoints2D, error) {

	if view < 0 || view >= len(p.cams) {
		return nil, fmt.Errorf("view %d out of range, have %d cameras", view, len(p.cams))
	}

	out := mocap.NewKeypoints2D(kp.Convention, kp.NumFrames())
	proj := p.projs[view]

	x := mat.NewVecDense(4, nil)
	u := mat.NewVecDense(3, nil)

	for f := range kp.Frames {
		for j := range kp.Frames[f] {

			if !kp.Mask.Valid(f, j) {
				continue
			}

			pt := kp.Frames[f][j]
			x.SetVec(0, pt.X)
			x.SetVec(1, pt.Y)
			x.SetVec(2, pt.Z)
			x.SetVec(3, 1)

			u.MulVec(proj, x)

			w := u.AtVec(2)
			if math.Abs(w) < 1e-12 {
				continue
			}

			out.Frames[f][j] = mocap.Joint2D{
				X:     u.AtVec(0) / w,
				Y:     u.AtVec(1) / w,
				Score: 1,
			}
			out.Mask.Set(f, j, true)
		}
	}

	return out, nil
}

// Project projects the sequence into every camera, returning one
// keypoint set per view in camera order.
func (p *Projector) Project(kp *mocap.Keypoints3D) ([]*mocap.Keypoints2D, error) {

	out := make([]*mocap.Keypoints2D, len(p.cams))

	for v := range p.cams {
		kp2d, err := p.ProjectView(v, kp)
		if err != nil {
			return nil, err
		}
		out[v] = kp2d
	}

	return out, nil
}
