package fit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mocap "github.com/mvlab/go-mocap"
	"github.com/mvlab/go-mocap/npz"
)

var fitConv = mocap.Convention{Name: "test_2", Joints: []string{"a", "b"}}

func testKeypoints3D(frames int) *mocap.Keypoints3D {

	kps := mocap.NewKeypoints3D(fitConv, frames)
	for f := 0; f < frames; f++ {
		for j := 0; j < 2; j++ {
			kps.Frames[f][j] = mocap.Joint3D{X: float64(f), Y: float64(j), Z: 1}
			kps.Mask.Set(f, j, true)
		}
	}
	return kps
}

func testModel(variant mocap.Variant, frames int) *mocap.BodyModel {

	dims := variant.PoseDims()

	b := &mocap.BodyModel{
		Variant:  variant,
		FullPose: make([][]float64, frames),
		Betas:    make([]float64, 10),
		Transl:   make([][]float64, frames),
	}
	for f := 0; f < frames; f++ {
		b.FullPose[f] = make([]float64, dims)
		b.FullPose[f][0] = 0.25
		b.Transl[f] = []float64{0, 0, float64(f)}
	}
	return b
}

// stubOptimizer writes a shell script that copies a canned result to
// the path given by the --output argument.
func stubOptimizer(t *testing.T, dir string, result *mocap.BodyModel) string {

	t.Helper()

	fixture := filepath.Join(dir, "result.npz")
	if err := npz.Write(fixture, result.Arrays()); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	script := filepath.Join(dir, "optimizer.sh")
	body := "#!/bin/sh\ncp \"" + fixture + "\" \"$4\"\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("writing stub: %v", err)
	}
	return script
}

func TestCommandFitterRoundTrip(t *testing.T) {

	dir := t.TempDir()
	script := stubOptimizer(t, dir, testModel(mocap.SMPL, 2))

	fitter, err := NewCommandFitter(Params{
		Command: script,
		Variant: mocap.SMPL,
		WorkDir: dir,
	})
	if err != nil {
		t.Fatalf("NewCommandFitter() error = %v", err)
	}

	model, err := fitter.Fit(context.Background(), testKeypoints3D(2), nil)
	if err != nil {
		t.Fatalf("Fit() error = %v", err)
	}

	if model.Variant != mocap.SMPL {
		t.Errorf("variant = %q, want smpl", model.Variant)
	}
	if model.NumFrames() != 2 {
		t.Errorf("frames = %d, want 2", model.NumFrames())
	}
	if model.FullPose[0][0] != 0.25 {
		t.Errorf("fullpose[0][0] = %v, want 0.25", model.FullPose[0][0])
	}
}

func TestCommandFitterVariantMismatch(t *testing.T) {

	dir := t.TempDir()
	script := stubOptimizer(t, dir, testModel(mocap.SMPL, 2))

	fitter, _ := NewCommandFitter(Params{
		Command: script,
		Variant: mocap.SMPLX,
		WorkDir: dir,
	})

	_, err := fitter.Fit(context.Background(), testKeypoints3D(2), nil)
	if err == nil || !strings.Contains(err.Error(), "variant") {
		t.Errorf("Fit() error = %v, want variant mismatch", err)
	}
}

func TestCommandFitterFrameMismatch(t *testing.T) {

	dir := t.TempDir()
	script := stubOptimizer(t, dir, testModel(mocap.SMPL, 5))

	fitter, _ := NewCommandFitter(Params{
		Command: script,
		Variant: mocap.SMPL,
		WorkDir: dir,
	})

	_, err := fitter.Fit(context.Background(), testKeypoints3D(2), nil)
	if err == nil {
		t.Errorf("Fit() with 5 result frames for 2 keypoint frames returned no error")
	}
}

func TestCommandFitterFailure(t *testing.T) {

	dir := t.TempDir()

	script := filepath.Join(dir, "broken.sh")
	body := "#!/bin/sh\necho 'optimizer blew up' >&2\nexit 3\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	fitter, _ := NewCommandFitter(Params{
		Command: script,
		Variant: mocap.SMPL,
		WorkDir: dir,
	})

	_, err := fitter.Fit(context.Background(), testKeypoints3D(1), nil)
	if err == nil || !strings.Contains(err.Error(), "optimizer blew up") {
		t.Errorf("Fit() error = %v, want stderr to be included", err)
	}
}

func TestCommandFitterMissingOutput(t *testing.T) {

	dir := t.TempDir()

	script := filepath.Join(dir, "noop.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	fitter, _ := NewCommandFitter(Params{
		Command: script,
		Variant: mocap.SMPL,
		WorkDir: dir,
	})

	_, err := fitter.Fit(context.Background(), testKeypoints3D(1), nil)
	if err == nil {
		t.Errorf("Fit() with no output file returned no error")
	}
}

func TestCommandFitterTimeout(t *testing.T) {

	dir := t.TempDir()

	script := filepath.Join(dir, "slow.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\nsleep 5\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	fitter, _ := NewCommandFitter(Params{
		Command: script,
		Variant: mocap.SMPL,
		WorkDir: dir,
		Timeout: 50 * time.Millisecond,
	})

	start := time.Now()
	_, err := fitter.Fit(context.Background(), testKeypoints3D(1), nil)

	if err == nil {
		t.Fatalf("Fit() with a 5s optimizer under a 50ms timeout returned no error")
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("Fit() did not honour the timeout")
	}
}

func TestNewCommandFitterValidation(t *testing.T) {

	if _, err := NewCommandFitter(Params{Variant: mocap.SMPL}); err == nil {
		t.Errorf("NewCommandFitter() with no command returned no error")
	}

	if _, err := NewCommandFitter(Params{Command: "opt", Variant: "star"}); err == nil {
		t.Errorf("NewCommandFitter() with unknown variant returned no error")
	}
}

func TestCommandFitterPassesInit(t *testing.T) {

	dir := t.TempDir()
	fixture := filepath.Join(dir, "result.npz")
	if err := npz.Write(fixture, testModel(mocap.SMPL, 1).Arrays()); err != nil {
		t.Fatal(err)
	}

	// the stub fails unless an --init argument with an existing file
	// follows the standard arguments
	script := filepath.Join(dir, "wantinit.sh")
	body := "#!/bin/sh\n" +
		"[ \"$7\" = \"--init\" ] || exit 9\n" +
		"[ -f \"$8\" ] || exit 9\n" +
		"cp \"" + fixture + "\" \"$4\"\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	fitter, _ := NewCommandFitter(Params{
		Command: script,
		Variant: mocap.SMPL,
		WorkDir: dir,
	})

	_, err := fitter.Fit(context.Background(), testKeypoints3D(1), testModel(mocap.SMPL, 1))
	if err != nil {
		t.Errorf("Fit() with init model error = %v", err)
	}
}
