package estimate

import (
	"math"
	"testing"

	"gocv.io/x/gocv"
)

// buildPoseTensor creates a channel major output tensor for the given
// anchors with anchor best holding a detection of the given confidence
// and keypoints
func buildPoseTensor(anchors, joints, best int, conf float32,
	kps [][3]float32) []float32 {

	channels := 5 + 3*joints
	data := make([]float32, channels*anchors)

	data[4*anchors+best] = conf

	for j := 0; j < joints; j++ {
		data[(5+j*3+0)*anchors+best] = kps[j][0]
		data[(5+j*3+1)*anchors+best] = kps[j][1]
		data[(5+j*3+2)*anchors+best] = kps[j][2]
	}

	return data
}

func TestDecodePose(t *testing.T) {

	// 1280x720 source letterboxed to 640x640 gives scale 0.5, xPad 0,
	// yPad 140
	rz := NewResizer(1280, 720, 640, 640)
	defer rz.Close()

	kps := [][3]float32{
		{320, 300, 0.9},
		{100, 140, 0.1},
	}

	data := buildPoseTensor(8, 2, 3, 0.8, kps)

	joints, valid := decodePose(data, 8, 2, 0.5, 0.3, rz)

	if len(joints) != 2 || len(valid) != 2 {
		t.Fatalf("got %d joints and %d mask entries, want 2", len(joints), len(valid))
	}

	// joint 0 maps back through the letterbox, (320-0)/0.5 and
	// (300-140)/0.5
	if math.Abs(joints[0].X-640) > 1e-6 || math.Abs(joints[0].Y-320) > 1e-6 {
		t.Errorf("joint 0 = (%v, %v), want (640, 320)", joints[0].X, joints[0].Y)
	}

	if !valid[0] {
		t.Errorf("joint 0 with score 0.9 marked invalid")
	}

	if valid[1] {
		t.Errorf("joint 1 with score 0.1 marked valid")
	}

	if math.Abs(joints[1].Score-0.1) > 1e-6 {
		t.Errorf("joint 1 score = %v, want 0.1", joints[1].Score)
	}
}

func TestDecodePoseNoDetection(t *testing.T) {

	rz := NewResizer(640, 640, 640, 640)
	defer rz.Close()

	kps := [][3]float32{{320, 320, 0.9}}

	// confidence below the box threshold
	data := buildPoseTensor(8, 1, 2, 0.3, kps)

	joints, valid := decodePose(data, 8, 1, 0.5, 0.3, rz)

	if valid[0] {
		t.Errorf("joint marked valid in a frame with no detection")
	}

	if joints[0].X != 0 || joints[0].Y != 0 || joints[0].Score != 0 {
		t.Errorf("joint = %+v, want zero value", joints[0])
	}
}

func TestDecodePosePicksHighestConfidence(t *testing.T) {

	rz := NewResizer(640, 640, 640, 640)
	defer rz.Close()

	anchors := 4
	joints := 1
	data := make([]float32, (5+3*joints)*anchors)

	// two anchors above threshold, anchor 2 is strongest
	data[4*anchors+1] = 0.6
	data[4*anchors+2] = 0.9

	// keypoint x values distinguish the anchors
	data[5*anchors+1] = 111
	data[5*anchors+2] = 222
	data[7*anchors+1] = 0.9
	data[7*anchors+2] = 0.9

	got, valid := decodePose(data, anchors, joints, 0.5, 0.3, rz)

	if !valid[0] {
		t.Fatalf("joint marked invalid")
	}

	if got[0].X != 222 {
		t.Errorf("decoded anchor with x = %v, want 222 from the strongest anchor", got[0].X)
	}
}

func TestDecodePoseClampsToSource(t *testing.T) {

	// 640x640 source, no letterboxing
	rz := NewResizer(640, 640, 640, 640)
	defer rz.Close()

	kps := [][3]float32{{-50, 700, 0.9}}
	data := buildPoseTensor(4, 1, 0, 0.8, kps)

	joints, _ := decodePose(data, 4, 1, 0.5, 0.3, rz)

	if joints[0].X != 0 {
		t.Errorf("x = %v, want clamp to 0", joints[0].X)
	}

	if joints[0].Y != 639 {
		t.Errorf("y = %v, want clamp to 639", joints[0].Y)
	}
}

func TestTensorFloats(t *testing.T) {

	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV32F)
	defer m.Close()

	want := []float32{0.5, -1, 2, 3.25, 0, 7}

	i := 0
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			m.SetFloatAt(r, c, want[i])
			i++
		}
	}

	got, err := tensorFloats(m)

	if err != nil {
		t.Fatalf("tensorFloats() error = %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("got %d values, want %d", len(got), len(want))
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d = %v, want %v", i, got[i], want[i])
		}
	}
}
