package mocap

import "testing"

func TestMaskSetValid(t *testing.T) {

	m := NewMask(3, 17)

	if m.Valid(1, 5) {
		t.Errorf("new mask entry (1,5) = valid, want invalid")
	}

	m.Set(1, 5, true)

	if !m.Valid(1, 5) {
		t.Errorf("mask entry (1,5) = invalid after Set")
	}
	if m.Valid(1, 4) || m.Valid(0, 5) || m.Valid(2, 5) {
		t.Errorf("Set(1,5) leaked into neighbouring entries")
	}

	if got := m.ValidJoints(1); got != 1 {
		t.Errorf("ValidJoints(1) = %d, want 1", got)
	}
	if got := m.ValidJoints(0); got != 0 {
		t.Errorf("ValidJoints(0) = %d, want 0", got)
	}
}

func TestMaskCloneIndependent(t *testing.T) {

	m := NewMask(2, 2)
	m.Set(0, 0, true)

	c := m.Clone()
	c.Set(1, 1, true)

	if m.Valid(1, 1) {
		t.Errorf("Clone() shares storage with the original")
	}
	if !c.Valid(0, 0) {
		t.Errorf("Clone() lost entry (0,0)")
	}
}

func TestNewKeypoints2DLayout(t *testing.T) {

	k := NewKeypoints2D(COCO17, 4)

	if k.NumFrames() != 4 {
		t.Errorf("NumFrames() = %d, want 4", k.NumFrames())
	}
	if k.NumJoints() != 17 {
		t.Errorf("NumJoints() = %d, want 17", k.NumJoints())
	}
	if len(k.Frames[3]) != 17 {
		t.Errorf("frame 3 has %d joints, want 17", len(k.Frames[3]))
	}
	if k.Mask.Frames() != 4 || k.Mask.Joints() != 17 {
		t.Errorf("mask is %dx%d, want 4x17", k.Mask.Frames(), k.Mask.Joints())
	}
}

func TestKeypoints3DClone(t *testing.T) {

	k := NewKeypoints3D(COCO17, 2)
	k.Frames[0][0] = Joint3D{X: 1, Y: 2, Z: 3}
	k.Mask.Set(0, 0, true)

	c := k.Clone()
	c.Frames[0][0].X = 9
	c.Mask.Set(1, 1, true)

	if k.Frames[0][0].X != 1 {
		t.Errorf("Clone() shares frame storage with the original")
	}
	if k.Mask.Valid(1, 1) {
		t.Errorf("Clone() shares mask storage with the original")
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() on clone error = %v", err)
	}
}
