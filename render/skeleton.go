// Package render draws pose skeletons over video frames and writes
// projection overlay videos.
package render

import (
	"image"

	"gocv.io/x/gocv"

	mocap "github.com/mvlab/go-mocap"
)

// circleRadius is the radius joints are drawn with
const circleRadius = 3

// DrawPose renders the skeleton of one frame of a keypoint sequence.
// Joints with invalid mask entries are skipped, as are limbs with an
// invalid endpoint.
func DrawPose(img *gocv.Mat, kps *mocap.Keypoints2D, frame, lineThickness int) {

	if kps == nil || frame < 0 || frame >= kps.NumFrames() {
		return
	}

	joints := kps.Frames[frame]

	// draw skeleton lines between joints observed at both ends
	for l, limb := range kps.Convention.Limbs {
		a, b := limb[0], limb[1]

		if !kps.Mask.Valid(frame, a) || !kps.Mask.Valid(frame, b) {
			continue
		}

		gocv.Line(img,
			image.Pt(int(joints[a].X), int(joints[a].Y)),
			image.Pt(int(joints[b].X), int(joints[b].Y)),
			limbColor(l), lineThickness)
	}

	// draw circles at observed joints
	for j := range joints {
		if !kps.Mask.Valid(frame, j) {
			continue
		}

		gocv.Circle(img, image.Pt(int(joints[j].X), int(joints[j].Y)),
			circleRadius, jointColor(j), -1)
	}
}
