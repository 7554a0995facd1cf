package mocap

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCOCO17WellFormed(t *testing.T) {

	if err := COCO17.Validate(); err != nil {
		t.Fatalf("COCO17.Validate() error = %v", err)
	}

	if got := len(COCO17.Joints); got != 17 {
		t.Errorf("COCO17 has %d joints, want 17", got)
	}
	if got := len(COCO17.Limbs); got != 19 {
		t.Errorf("COCO17 has %d limbs, want 19", got)
	}
}

func TestConventionEqual(t *testing.T) {

	other := COCO17
	if !COCO17.Equal(other) {
		t.Errorf("COCO17 not Equal to itself")
	}

	renamed := COCO17
	renamed.Name = "coco"
	if COCO17.Equal(renamed) {
		t.Errorf("conventions with different names compare Equal")
	}

	// limbs are rendering hints only
	bare := COCO17
	bare.Limbs = nil
	if !COCO17.Equal(bare) {
		t.Errorf("limb pairs took part in Equal")
	}
}

func TestLoadConvention(t *testing.T) {

	file := filepath.Join(t.TempDir(), "joints.txt")

	content := "nose\nleft_shoulder\n\nright_shoulder\n"
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	conv, err := LoadConvention("upper_body", file)
	if err != nil {
		t.Fatalf("LoadConvention() error = %v", err)
	}

	want := []string{"nose", "left_shoulder", "right_shoulder"}
	if len(conv.Joints) != len(want) {
		t.Fatalf("loaded %d joints, want %d", len(conv.Joints), len(want))
	}
	for i, name := range want {
		if conv.Joints[i] != name {
			t.Errorf("joint %d = %q, want %q", i, conv.Joints[i], name)
		}
	}
}

func TestLoadConventionMissingFile(t *testing.T) {

	_, err := LoadConvention("x", filepath.Join(t.TempDir(), "absent.txt"))

	if err == nil {
		t.Errorf("LoadConvention() on a missing file returned no error")
	}
}

func TestValidateBadLimb(t *testing.T) {

	conv := Convention{
		Name:   "tiny",
		Joints: []string{"a", "b"},
		Limbs:  [][2]int{{0, 2}},
	}

	if err := conv.Validate(); err == nil {
		t.Errorf("Validate() with out of range limb returned no error")
	}
}
