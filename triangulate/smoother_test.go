package triangulate

import (
	"math"
	"testing"

	mocap "github.com/mvlab/go-mocap"
)

func TestSmoothConstantTrajectory(t *testing.T) {

	kp := mocap.NewKeypoints3D(testConv, 5)

	want := mocap.Joint3D{X: 0.2, Y: -0.1, Z: 1.4}
	for f := 0; f < 5; f++ {
		for j := 0; j < 3; j++ {
			kp.Frames[f][j] = want
			kp.Mask.Set(f, j, true)
		}
	}

	got := NewSmoother(0, 0).Smooth(kp)

	for f := 0; f < 5; f++ {
		pt := got.Frames[f][0]
		if math.Abs(pt.X-want.X) > 1e-9 ||
			math.Abs(pt.Y-want.Y) > 1e-9 ||
			math.Abs(pt.Z-want.Z) > 1e-9 {
			t.Errorf("frame %d = %+v, want %+v", f, pt, want)
		}
	}
}

func TestSmoothPreservesMask(t *testing.T) {

	kp := mocap.NewKeypoints3D(testConv, 4)

	for f := 0; f < 4; f++ {
		for j := 0; j < 3; j++ {
			kp.Frames[f][j] = mocap.Joint3D{X: float64(f), Y: 0, Z: 1}
			kp.Mask.Set(f, j, true)
		}
	}

	// a triangulation gap in the middle of the sequence
	kp.Mask.Set(2, 1, false)
	kp.Frames[2][1] = mocap.Joint3D{}

	got := NewSmoother(0, 0).Smooth(kp)

	if got.Mask.Valid(2, 1) {
		t.Errorf("smoothing marked an invalid joint valid")
	}
	if pt := got.Frames[2][1]; pt.X != 0 || pt.Y != 0 || pt.Z != 0 {
		t.Errorf("invalid joint moved to %+v, want zeros", pt)
	}

	// input must stay untouched
	if kp.Frames[3][0].X != 3 {
		t.Errorf("Smooth() modified its input")
	}
}

func TestSmoothReducesJitter(t *testing.T) {

	const frames = 20

	kp := mocap.NewKeypoints3D(testConv, frames)

	// constant position with alternating measurement noise
	for f := 0; f < frames; f++ {
		d := 0.1
		if f%2 == 1 {
			d = -0.1
		}
		for j := 0; j < 3; j++ {
			kp.Frames[f][j] = mocap.Joint3D{X: 1 + d, Y: 0, Z: 1}
			kp.Mask.Set(f, j, true)
		}
	}

	got := NewSmoother(0.01, 0.1).Smooth(kp)

	variation := func(k *mocap.Keypoints3D) float64 {
		total := 0.0
		for f := 1; f < frames; f++ {
			total += math.Abs(k.Frames[f][0].X - k.Frames[f-1][0].X)
		}
		return total
	}

	raw := variation(kp)
	smoothed := variation(got)

	if smoothed >= raw {
		t.Errorf("total variation after smoothing = %v, want below %v", smoothed, raw)
	}
}
