package estimate

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
	"gocv.io/x/gocv"

	mocap "github.com/mvlab/go-mocap"
)

// decodePose extracts the highest confidence person from a pose model output
// tensor and maps its keypoints back to source image coordinates.
//
// The tensor is channel major with 5+3*joints channels per anchor, being the
// box xywh, the box confidence, and x/y/score triples for each keypoint.
func decodePose(data []float32, anchors, joints int, boxThreshold float32,
	kpThreshold float64, resizer *Resizer) ([]mocap.Joint2D, []bool) {

	kps := make([]mocap.Joint2D, joints)
	valid := make([]bool, joints)

	// find the anchor with the highest box confidence
	best := -1
	bestScore := boxThreshold

	for i := 0; i < anchors; i++ {
		score := data[4*anchors+i]

		if score >= bestScore {
			best = i
			bestScore = score
		}
	}

	if best == -1 {
		// no person detected in this frame
		return kps, valid
	}

	for j := 0; j < joints; j++ {
		kpX := data[(5+j*3+0)*anchors+best]
		kpY := data[(5+j*3+1)*anchors+best]
		kpScore := data[(5+j*3+2)*anchors+best]

		kps[j] = mocap.Joint2D{
			X:     resizer.SourceX(float64(kpX)),
			Y:     resizer.SourceY(float64(kpY)),
			Score: float64(kpScore),
		}

		valid[j] = float64(kpScore) >= kpThreshold
	}

	return kps, valid
}

// tensorFloats returns the forward pass output as float32 values.  Networks
// exported with half precision produce fp16 tensors which are widened here
// as Go has no support for FP16.
func tensorFloats(m gocv.Mat) ([]float32, error) {

	total := m.Total()
	raw := m.ToBytes()

	if total == 0 {
		return nil, fmt.Errorf("empty output tensor")
	}

	switch len(raw) {
	case total * 4:
		buf := make([]float32, total)

		for i := range buf {
			bits := binary.LittleEndian.Uint32(raw[i*4:])
			buf[i] = math.Float32frombits(bits)
		}

		return buf, nil

	case total * 2:
		buf := make([]float32, total)

		for i := range buf {
			f16 := float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:]))
			buf[i] = f16.Float32()
		}

		return buf, nil
	}

	return nil, fmt.Errorf("unsupported tensor element size %d bytes",
		len(raw)/total)
}
