package mocap

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrNoCameras is returned when a capture carries no camera calibration.
var ErrNoCameras = errors.New("capture contains no cameras")

// RawCamera is a camera calibration record as stored in a capture
// container. Matrices are row major nested arrays. The World2Cam flag
// tells how the extrinsic is oriented on disk; containers are free to
// store either orientation.
type RawCamera struct {
	Name        string      `json:"name"`
	Intrinsic   [][]float64 `json:"intrinsic"`
	Rotation    [][]float64 `json:"rotation"`
	Translation []float64   `json:"translation"`
	World2Cam   bool        `json:"world2cam"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
}

// GroundPlane describes the capture stage floor in the raw world frame.
type GroundPlane struct {
	Normal [3]float64 `json:"normal"`
	Point  [3]float64 `json:"point"`
}

// CameraParameter is a normalized pinhole camera: a 3x3 intrinsic K and
// an extrinsic rotation R and translation T whose orientation is given
// by World2Cam. NormalizeCameras produces parameters oriented camera to
// world, so R maps camera axes into world axes and T is the camera
// center.
type CameraParameter struct {
	Name      string
	K         *mat.Dense
	R         *mat.Dense
	T         *mat.VecDense
	World2Cam bool
	Width     int
	Height    int
}

// Clone returns a deep copy of the camera parameter.
func (c CameraParameter) Clone() CameraParameter {

	out := c
	out.K = mat.DenseCopyOf(c.K)
	out.R = mat.DenseCopyOf(c.R)
	out.T = mat.VecDenseCopyOf(c.T)
	return out
}

// InverseExtrinsic returns a copy of the camera with the extrinsic
// orientation flipped: R' = Rᵀ, T' = -Rᵀ·T and the World2Cam flag
// inverted. The receiver is not modified.
func (c CameraParameter) InverseExtrinsic() CameraParameter {

	out := c.Clone()

	out.R = mat.DenseCopyOf(c.R.T())

	t := mat.NewVecDense(3, nil)
	t.MulVec(out.R, c.T)
	t.ScaleVec(-1, t)
	out.T = t

	out.World2Cam = !c.World2Cam
	return out
}

// ProjectionMatrix returns the 3x4 world to image projection K·[R|T],
// derived from the world to camera orientation regardless of how the
// extrinsic is stored.
func (c CameraParameter) ProjectionMatrix() *mat.Dense {

	w2c := c
	if !c.World2Cam {
		w2c = c.InverseExtrinsic()
	}

	rt := mat.NewDense(3, 4, nil)
	rt.Slice(0, 3, 0, 3).(*mat.Dense).Copy(w2c.R)
	rt.SetCol(3, []float64{w2c.T.AtVec(0), w2c.T.AtVec(1), w2c.T.AtVec(2)})

	p := mat.NewDense(3, 4, nil)
	p.Mul(c.K, rt)
	return p
}

// parameter converts the raw record into gonum form, validating the
// matrix dimensions.
func (rc RawCamera) parameter() (CameraParameter, error) {

	k, err := denseFromRows(rc.Intrinsic)
	if err != nil {
		return CameraParameter{}, fmt.Errorf("intrinsic: %w", err)
	}

	r, err := denseFromRows(rc.Rotation)
	if err != nil {
		return CameraParameter{}, fmt.Errorf("rotation: %w", err)
	}

	if len(rc.Translation) != 3 {
		return CameraParameter{}, fmt.Errorf("translation has %d elements, want 3",
			len(rc.Translation))
	}

	t := mat.NewVecDense(3, nil)
	for i, v := range rc.Translation {
		t.SetVec(i, v)
	}

	return CameraParameter{
		Name:      rc.Name,
		K:         k,
		R:         r,
		T:         t,
		World2Cam: rc.World2Cam,
		Width:     rc.Width,
		Height:    rc.Height,
	}, nil
}

func denseFromRows(rows [][]float64) (*mat.Dense, error) {

	if len(rows) != 3 {
		return nil, fmt.Errorf("matrix has %d rows, want 3", len(rows))
	}

	d := mat.NewDense(3, 3, nil)

	for i, row := range rows {
		if len(row) != 3 {
			return nil, fmt.Errorf("matrix row %d has %d columns, want 3", i, len(row))
		}
		d.SetRow(i, row)
	}
	return d, nil
}

// NormalizeCameras converts raw calibration records into normalized
// camera parameters: every extrinsic is oriented camera to world,
// inverting records stored world to camera, and when a ground plane is
// present the world frame is rotated so the plane normal becomes +Z with
// the plane itself at z=0. The input records are never modified and the
// returned parameters share no storage with them.
func NormalizeCameras(raw []RawCamera, ground *GroundPlane) ([]CameraParameter, error) {

	if len(raw) == 0 {
		return nil, ErrNoCameras
	}

	var align *mat.Dense

	if ground != nil {
		var err error
		align, err = groundAlign(*ground)
		if err != nil {
			return nil, err
		}
	}

	cams := make([]CameraParameter, 0, len(raw))

	for i, rc := range raw {

		cam, err := rc.parameter()
		if err != nil {
			return nil, fmt.Errorf("camera %d (%s): %w", i, rc.Name, err)
		}

		if cam.World2Cam {
			cam = cam.InverseExtrinsic()
		}

		if align != nil {
			cam = applyWorldTransform(cam, align)
		}

		cams = append(cams, cam)
	}

	return cams, nil
}

// groundAlign builds the 4x4 rigid world transform that takes the plane
// normal onto +Z and moves the plane to z=0.
func groundAlign(g GroundPlane) (*mat.Dense, error) {

	nx, ny, nz := g.Normal[0], g.Normal[1], g.Normal[2]

	norm := math.Sqrt(nx*nx + ny*ny + nz*nz)
	if norm == 0 {
		return nil, fmt.Errorf("ground plane normal is zero")
	}
	nx, ny, nz = nx/norm, ny/norm, nz/norm

	// rotation taking n onto ez, built from v = n x ez
	vx, vy := ny, -nx
	s2 := vx*vx + vy*vy
	c := nz

	r := mat.NewDense(3, 3, nil)

	switch {
	case s2 < 1e-18 && c > 0:
		// already aligned
		r.Set(0, 0, 1)
		r.Set(1, 1, 1)
		r.Set(2, 2, 1)
	case s2 < 1e-18:
		// opposite direction, rotate half a turn about x
		r.Set(0, 0, 1)
		r.Set(1, 1, -1)
		r.Set(2, 2, -1)
	default:
		// R = I + [v]x + [v]x^2 (1-c)/s^2 with vz = 0
		f := (1 - c) / s2
		r.Set(0, 0, 1-f*vy*vy)
		r.Set(0, 1, f*vx*vy)
		r.Set(0, 2, vy)
		r.Set(1, 0, f*vx*vy)
		r.Set(1, 1, 1-f*vx*vx)
		r.Set(1, 2, -vx)
		r.Set(2, 0, -vy)
		r.Set(2, 1, vx)
		r.Set(2, 2, c)
	}

	// after rotating, shift the plane point down to z=0
	p := mat.NewVecDense(3, []float64{g.Point[0], g.Point[1], g.Point[2]})
	rp := mat.NewVecDense(3, nil)
	rp.MulVec(r, p)

	align := mat.NewDense(4, 4, nil)
	align.Slice(0, 3, 0, 3).(*mat.Dense).Copy(r)
	align.Set(2, 3, -rp.AtVec(2))
	align.Set(3, 3, 1)

	return align, nil
}

// applyWorldTransform rewrites a camera to world pose under the world
// transform g, so pose' = g · pose.
func applyWorldTransform(cam CameraParameter, g *mat.Dense) CameraParameter {

	pose := mat.NewDense(4, 4, nil)
	pose.Slice(0, 3, 0, 3).(*mat.Dense).Copy(cam.R)
	pose.Set(0, 3, cam.T.AtVec(0))
	pose.Set(1, 3, cam.T.AtVec(1))
	pose.Set(2, 3, cam.T.AtVec(2))
	pose.Set(3, 3, 1)

	moved := mat.NewDense(4, 4, nil)
	moved.Mul(g, pose)

	out := cam.Clone()
	out.R.Copy(moved.Slice(0, 3, 0, 3))
	out.T = mat.NewVecDense(3, []float64{
		moved.At(0, 3), moved.At(1, 3), moved.At(2, 3),
	})
	return out
}
