package mocap

import (
	"fmt"

	"github.com/mvlab/go-mocap/npz"
)

// Arrays returns the npz entries representing one view's keypoints:
// a [frames, joints, 3] array of x, y and score, the validity mask and
// the convention name.
func (k *Keypoints2D) Arrays() map[string]npz.Array {

	flat := make([]float64, 0, len(k.Frames)*k.NumJoints()*3)

	for _, frame := range k.Frames {
		for _, j := range frame {
			flat = append(flat, j.X, j.Y, j.Score)
		}
	}

	return map[string]npz.Array{
		"keypoints":  npz.Float64s([]int{len(k.Frames), k.NumJoints(), 3}, flat),
		"mask":       npz.Bools1([]int{len(k.Frames), k.NumJoints()}, k.Mask.Bools()),
		"convention": npz.String(k.Convention.Name),
	}
}

// Arrays returns the npz entries representing the fused keypoints: a
// [frames, joints, 3] array of world x, y and z, the validity mask and
// the convention name.
func (k *Keypoints3D) Arrays() map[string]npz.Array {

	flat := make([]float64, 0, len(k.Frames)*k.NumJoints()*3)

	for _, frame := range k.Frames {
		for _, j := range frame {
			flat = append(flat, j.X, j.Y, j.Z)
		}
	}

	return map[string]npz.Array{
		"keypoints":  npz.Float64s([]int{len(k.Frames), k.NumJoints(), 3}, flat),
		"mask":       npz.Bools1([]int{len(k.Frames), k.NumJoints()}, k.Mask.Bools()),
		"convention": npz.String(k.Convention.Name),
	}
}

// Arrays returns the npz entries representing the fitted body model.
func (b *BodyModel) Arrays() map[string]npz.Array {

	dims := b.Variant.PoseDims()

	pose := make([]float64, 0, len(b.FullPose)*dims)
	for _, p := range b.FullPose {
		pose = append(pose, p...)
	}

	transl := make([]float64, 0, len(b.Transl)*3)
	for _, t := range b.Transl {
		transl = append(transl, t...)
	}

	return map[string]npz.Array{
		"variant":  npz.String(string(b.Variant)),
		"fullpose": npz.Float64s([]int{len(b.FullPose), dims}, pose),
		"betas":    npz.Float64s([]int{len(b.Betas)}, b.Betas),
		"transl":   npz.Float64s([]int{len(b.Transl), 3}, transl),
	}
}

// BodyModelFromArrays decodes a body model from the npz entries an
// external optimizer produced, discriminating the variant tag.
func BodyModelFromArrays(arrays map[string]npz.Array) (*BodyModel, error) {

	va, ok := arrays["variant"]
	if !ok {
		return nil, fmt.Errorf("bundle has no variant entry")
	}

	variant, err := ParseVariant(va.Str)
	if err != nil {
		return nil, err
	}

	pose, err := rows(arrays, "fullpose")
	if err != nil {
		return nil, err
	}

	transl, err := rows(arrays, "transl")
	if err != nil {
		return nil, err
	}

	ba, ok := arrays["betas"]
	if !ok {
		return nil, fmt.Errorf("bundle has no betas entry")
	}

	b := &BodyModel{
		Variant:  variant,
		FullPose: pose,
		Betas:    append([]float64(nil), ba.Floats...),
		Transl:   transl,
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}

	return b, nil
}

// rows pulls a two dimensional float array out of the bundle as row
// slices.
func rows(arrays map[string]npz.Array, name string) ([][]float64, error) {

	a, ok := arrays[name]
	if !ok {
		return nil, fmt.Errorf("bundle has no %s entry", name)
	}

	if len(a.Shape) != 2 {
		return nil, fmt.Errorf("%s has shape %v, want 2 dimensions", name, a.Shape)
	}

	out := make([][]float64, a.Shape[0])

	for i := range out {
		out[i] = append([]float64(nil), a.Floats[i*a.Shape[1]:(i+1)*a.Shape[1]]...)
	}
	return out, nil
}
