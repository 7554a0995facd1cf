package mocap

import "fmt"

// Joint2D is a single keypoint in image pixel coordinates along with the
// detector confidence score it was observed with.
type Joint2D struct {
	X     float64
	Y     float64
	Score float64
}

// Joint3D is a single reconstructed keypoint in world coordinates.
type Joint3D struct {
	X float64
	Y float64
	Z float64
}

// Mask records which joints carry valid data in each frame. An invalid
// entry means the joint was not observed in that frame (2D) or was seen
// by fewer views than triangulation requires (3D). Coordinates behind
// invalid entries are zero and must not be interpreted.
type Mask struct {
	frames int
	joints int
	bits   []bool
}

// NewMask returns a mask of the given dimensions with every entry
// invalid.
func NewMask(frames, joints int) *Mask {

	return &Mask{
		frames: frames,
		joints: joints,
		bits:   make([]bool, frames*joints),
	}
}

// Set marks the validity of one joint in one frame.
func (m *Mask) Set(frame, joint int, valid bool) {
	m.bits[frame*m.joints+joint] = valid
}

// Valid reports whether the joint carries valid data in the frame.
func (m *Mask) Valid(frame, joint int) bool {
	return m.bits[frame*m.joints+joint]
}

// Frames returns the number of frames the mask covers.
func (m *Mask) Frames() int {
	return m.frames
}

// Joints returns the number of joints the mask covers.
func (m *Mask) Joints() int {
	return m.joints
}

// ValidJoints returns how many joints are valid in the given frame.
func (m *Mask) ValidJoints(frame int) int {

	n := 0
	for j := 0; j < m.joints; j++ {
		if m.bits[frame*m.joints+j] {
			n++
		}
	}
	return n
}

// Bools returns the mask contents as a flat row major slice, one row per
// frame. The slice is a copy.
func (m *Mask) Bools() []bool {

	out := make([]bool, len(m.bits))
	copy(out, m.bits)
	return out
}

// Clone returns a deep copy of the mask.
func (m *Mask) Clone() *Mask {

	c := NewMask(m.frames, m.joints)
	copy(c.bits, m.bits)
	return c
}

// Keypoints2D holds one view's detected keypoints across a frame
// sequence in the layout Frames[frame][joint]. A nil *Keypoints2D is the
// absent state for a view where no person was detected.
type Keypoints2D struct {
	Convention Convention
	Frames     [][]Joint2D
	Mask       *Mask
}

// NewKeypoints2D allocates keypoints for frames using the convention's
// joint count, with an all invalid mask.
func NewKeypoints2D(conv Convention, frames int) *Keypoints2D {

	k := &Keypoints2D{
		Convention: conv,
		Frames:     make([][]Joint2D, frames),
		Mask:       NewMask(frames, len(conv.Joints)),
	}

	for f := range k.Frames {
		k.Frames[f] = make([]Joint2D, len(conv.Joints))
	}
	return k
}

// NumFrames returns the number of frames.
func (k *Keypoints2D) NumFrames() int {
	return len(k.Frames)
}

// NumJoints returns the number of joints per frame.
func (k *Keypoints2D) NumJoints() int {
	return len(k.Convention.Joints)
}

// Keypoints3D holds a fused world space keypoint sequence in the layout
// Frames[frame][joint]. It is produced once by triangulation and treated
// as read only afterwards.
type Keypoints3D struct {
	Convention Convention
	Frames     [][]Joint3D
	Mask       *Mask
}

// NewKeypoints3D allocates keypoints for frames using the convention's
// joint count, with an all invalid mask.
func NewKeypoints3D(conv Convention, frames int) *Keypoints3D {

	k := &Keypoints3D{
		Convention: conv,
		Frames:     make([][]Joint3D, frames),
		Mask:       NewMask(frames, len(conv.Joints)),
	}

	for f := range k.Frames {
		k.Frames[f] = make([]Joint3D, len(conv.Joints))
	}
	return k
}

// NumFrames returns the number of frames.
func (k *Keypoints3D) NumFrames() int {
	return len(k.Frames)
}

// NumJoints returns the number of joints per frame.
func (k *Keypoints3D) NumJoints() int {
	return len(k.Convention.Joints)
}

// Clone returns a deep copy, used by smoothing so the triangulated
// sequence itself stays unmodified.
func (k *Keypoints3D) Clone() *Keypoints3D {

	c := NewKeypoints3D(k.Convention, len(k.Frames))
	for f := range k.Frames {
		copy(c.Frames[f], k.Frames[f])
	}
	c.Mask = k.Mask.Clone()
	return c
}

// Validate checks the mask dimensions agree with the frame layout.
func (k *Keypoints3D) Validate() error {

	if k.Mask == nil {
		return fmt.Errorf("keypoints have no mask")
	}
	if k.Mask.Frames() != len(k.Frames) || k.Mask.Joints() != k.NumJoints() {
		return fmt.Errorf("mask is %dx%d for %d frames of %d joints",
			k.Mask.Frames(), k.Mask.Joints(), len(k.Frames), k.NumJoints())
	}
	return nil
}
