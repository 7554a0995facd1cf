package mocap

import "fmt"

// Variant discriminates which parametric body model a BodyModel holds.
// Exactly one variant applies to a model instance.
type Variant string

const (
	// SMPL is the 24 joint body model, 72 pose values per frame.
	SMPL Variant = "smpl"
	// SMPLX extends SMPL with face and hands, 55 joints and 165 pose
	// values per frame.
	SMPLX Variant = "smplx"
)

// ParseVariant maps a configuration string onto a Variant.
func ParseVariant(s string) (Variant, error) {

	switch Variant(s) {
	case SMPL:
		return SMPL, nil
	case SMPLX:
		return SMPLX, nil
	}
	return "", fmt.Errorf("unknown body model variant %q", s)
}

// PoseDims returns the flattened axis angle pose length per frame for
// the variant, or 0 for an unknown variant.
func (v Variant) PoseDims() int {

	switch v {
	case SMPL:
		return 72
	case SMPLX:
		return 165
	}
	return 0
}

// BodyModel holds fitted parametric body model values for a frame
// sequence. The Variant selects which layout the arrays follow.
type BodyModel struct {
	Variant Variant
	// FullPose is the per frame axis angle pose, Variant.PoseDims wide.
	FullPose [][]float64
	// Betas are the shape coefficients shared across the sequence.
	Betas []float64
	// Transl is the per frame root translation in world coordinates.
	Transl [][]float64
}

// NumFrames returns the number of frames the model covers.
func (b *BodyModel) NumFrames() int {
	return len(b.FullPose)
}

// Validate checks the arrays agree with the variant's layout.
func (b *BodyModel) Validate() error {

	dims := b.Variant.PoseDims()
	if dims == 0 {
		return fmt.Errorf("unknown body model variant %q", b.Variant)
	}

	if len(b.Transl) != len(b.FullPose) {
		return fmt.Errorf("%d translation frames for %d pose frames",
			len(b.Transl), len(b.FullPose))
	}

	for f, pose := range b.FullPose {
		if len(pose) != dims {
			return fmt.Errorf("frame %d pose has %d values, %s wants %d",
				f, len(pose), b.Variant, dims)
		}
	}

	for f, t := range b.Transl {
		if len(t) != 3 {
			return fmt.Errorf("frame %d translation has %d values, want 3", f, len(t))
		}
	}

	return nil
}
