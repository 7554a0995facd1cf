package render

import (
	"bytes"
	"testing"

	"gocv.io/x/gocv"

	mocap "github.com/mvlab/go-mocap"
)

var testConv = mocap.Convention{
	Name:   "test_3",
	Joints: []string{"a", "b", "c"},
	Limbs:  [][2]int{{0, 1}, {1, 2}},
}

func testFrame(t *testing.T) (*gocv.Mat, []byte) {

	t.Helper()

	img := gocv.NewMatWithSize(64, 64, gocv.MatTypeCV8UC3)
	raw := img.ToBytes()

	before := make([]byte, len(raw))
	copy(before, raw)

	return &img, before
}

func TestDrawPoseAllInvalid(t *testing.T) {

	img, before := testFrame(t)
	defer img.Close()

	kps := mocap.NewKeypoints2D(testConv, 1)
	kps.Frames[0][0] = mocap.Joint2D{X: 10, Y: 10}
	kps.Frames[0][1] = mocap.Joint2D{X: 30, Y: 30}

	DrawPose(img, kps, 0, 2)

	if !bytes.Equal(before, img.ToBytes()) {
		t.Errorf("DrawPose() modified pixels for a frame with no valid joints")
	}
}

func TestDrawPoseDrawsValidJoints(t *testing.T) {

	img, before := testFrame(t)
	defer img.Close()

	kps := mocap.NewKeypoints2D(testConv, 1)
	kps.Frames[0][0] = mocap.Joint2D{X: 10, Y: 10, Score: 0.9}
	kps.Frames[0][1] = mocap.Joint2D{X: 40, Y: 40, Score: 0.9}
	kps.Mask.Set(0, 0, true)
	kps.Mask.Set(0, 1, true)

	DrawPose(img, kps, 0, 2)

	if bytes.Equal(before, img.ToBytes()) {
		t.Errorf("DrawPose() left pixels unchanged for a frame with valid joints")
	}
}

func TestDrawPoseSkipsLimbWithInvalidEndpoint(t *testing.T) {

	img, _ := testFrame(t)
	defer img.Close()

	kps := mocap.NewKeypoints2D(testConv, 1)
	kps.Frames[0][1] = mocap.Joint2D{X: 20, Y: 20, Score: 0.9}
	kps.Frames[0][2] = mocap.Joint2D{X: 50, Y: 50, Score: 0.9}
	kps.Mask.Set(0, 1, true)

	// joint 2 is invalid so the limb (1,2) must not be drawn, leaving
	// pixels on the line's midpoint untouched
	DrawPose(img, kps, 0, 2)

	mid := img.GetVecbAt(35, 35)

	if mid[0] != 0 || mid[1] != 0 || mid[2] != 0 {
		t.Errorf("limb drawn to an invalid joint, midpoint pixel = %v", mid)
	}
}

func TestDrawPoseNil(t *testing.T) {

	img, before := testFrame(t)
	defer img.Close()

	DrawPose(img, nil, 0, 2)

	kps := mocap.NewKeypoints2D(testConv, 1)
	DrawPose(img, kps, 5, 2)

	if !bytes.Equal(before, img.ToBytes()) {
		t.Errorf("DrawPose() modified pixels for nil or out of range input")
	}
}

func TestDrawLabel(t *testing.T) {

	img, before := testFrame(t)
	defer img.Close()

	if err := DrawLabel(img, "view 0", 4, 20, nil, DefaultFont()); err != nil {
		t.Fatalf("DrawLabel() error = %v", err)
	}

	if bytes.Equal(before, img.ToBytes()) {
		t.Errorf("DrawLabel() left pixels unchanged")
	}
}

func TestViewColorCycles(t *testing.T) {

	if ViewColor(0) != ViewColor(len(viewColors)) {
		t.Errorf("ViewColor does not wrap around the palette")
	}
}
