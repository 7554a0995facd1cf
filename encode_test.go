package mocap

import "testing"

func TestKeypoints2DArrays(t *testing.T) {

	k := NewKeypoints2D(COCO17, 2)
	k.Frames[1][3] = Joint2D{X: 100, Y: 200, Score: 0.9}
	k.Mask.Set(1, 3, true)

	arrays := k.Arrays()

	kp := arrays["keypoints"]
	if len(kp.Shape) != 3 || kp.Shape[0] != 2 || kp.Shape[1] != 17 || kp.Shape[2] != 3 {
		t.Fatalf("keypoints shape = %v, want [2 17 3]", kp.Shape)
	}

	base := (1*17 + 3) * 3
	if kp.Floats[base] != 100 || kp.Floats[base+1] != 200 || kp.Floats[base+2] != 0.9 {
		t.Errorf("joint (1,3) = %v, want [100 200 0.9]",
			kp.Floats[base:base+3])
	}

	mask := arrays["mask"]
	if !mask.Bools[1*17+3] || mask.Bools[0] {
		t.Errorf("mask entries did not flatten row major")
	}

	if arrays["convention"].Str != "coco_17" {
		t.Errorf("convention = %q, want coco_17", arrays["convention"].Str)
	}
}

func TestBodyModelArraysRoundTrip(t *testing.T) {

	in := makeBodyModel(SMPLX, 2)
	in.FullPose[1][164] = 0.5
	in.Betas[9] = -1.25
	in.Transl[0][2] = 3.5

	out, err := BodyModelFromArrays(in.Arrays())
	if err != nil {
		t.Fatalf("BodyModelFromArrays() error = %v", err)
	}

	if out.Variant != SMPLX {
		t.Errorf("variant = %q, want smplx", out.Variant)
	}
	if out.FullPose[1][164] != 0.5 {
		t.Errorf("fullpose[1][164] = %v, want 0.5", out.FullPose[1][164])
	}
	if out.Betas[9] != -1.25 {
		t.Errorf("betas[9] = %v, want -1.25", out.Betas[9])
	}
	if out.Transl[0][2] != 3.5 {
		t.Errorf("transl[0][2] = %v, want 3.5", out.Transl[0][2])
	}
}

func TestBodyModelFromArraysRejectsBadVariant(t *testing.T) {

	arrays := makeBodyModel(SMPL, 1).Arrays()
	arrays["variant"] = arrays["betas"]

	if _, err := BodyModelFromArrays(arrays); err == nil {
		t.Errorf("BodyModelFromArrays() with non string variant returned no error")
	}
}
