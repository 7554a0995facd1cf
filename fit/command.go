package fit

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	mocap "github.com/mvlab/go-mocap"
	"github.com/mvlab/go-mocap/npz"
)

// Params configures a CommandFitter.
type Params struct {
	// Command is the optimizer executable to run.
	Command string
	// Args are placed before the generated input/output arguments.
	Args []string
	// Variant the optimizer is asked to fit and must return.
	Variant mocap.Variant
	// WorkDir holds the exchange files for one invocation. Defaults to
	// the system temp directory.
	WorkDir string
	// Timeout bounds one invocation. Zero means no limit.
	Timeout time.Duration
	// Logger receives invocation diagnostics. Optional.
	Logger zerolog.Logger
}

// CommandFitter runs an external body model optimizer process. The
// keypoints are written to a temporary npz bundle, the command is
// invoked as
//
//	command [args...] --input IN --output OUT --variant V [--init INIT]
//
// and the fitted parameters are read back from OUT. Optimizer failure
// is fatal to the caller's run.
type CommandFitter struct {
	p Params
}

// NewCommandFitter validates the configuration and returns the fitter.
func NewCommandFitter(p Params) (*CommandFitter, error) {

	if p.Command == "" {
		return nil, fmt.Errorf("no optimizer command configured")
	}

	if _, err := mocap.ParseVariant(string(p.Variant)); err != nil {
		return nil, err
	}

	return &CommandFitter{p: p}, nil
}

// Fit implements Fitter.
func (c *CommandFitter) Fit(ctx context.Context, kps *mocap.Keypoints3D,
	init *mocap.BodyModel) (*mocap.BodyModel, error) {

	if err := kps.Validate(); err != nil {
		return nil, fmt.Errorf("keypoints: %w", err)
	}

	dir, err := os.MkdirTemp(c.p.WorkDir, "bodyfit-*")
	if err != nil {
		return nil, fmt.Errorf("error creating work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "keypoints3d.npz")
	outPath := filepath.Join(dir, "body_model.npz")

	if err := npz.Write(inPath, kps.Arrays()); err != nil {
		return nil, fmt.Errorf("error writing keypoints: %w", err)
	}

	args := append([]string{}, c.p.Args...)
	args = append(args, "--input", inPath, "--output", outPath,
		"--variant", string(c.p.Variant))

	if init != nil {
		if err := init.Validate(); err != nil {
			return nil, fmt.Errorf("init model: %w", err)
		}
		initPath := filepath.Join(dir, "init.npz")
		if err := npz.Write(initPath, init.Arrays()); err != nil {
			return nil, fmt.Errorf("error writing init model: %w", err)
		}
		args = append(args, "--init", initPath)
	}

	if c.p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.p.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.p.Command, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	c.p.Logger.Info().
		Str("command", c.p.Command).
		Int("frames", kps.NumFrames()).
		Str("variant", string(c.p.Variant)).
		Msg("fitting body model")

	start := time.Now()

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("optimizer failed: %w: %s", err, msg)
		}
		return nil, fmt.Errorf("optimizer failed: %w", err)
	}

	arrays, err := npz.Read(outPath)
	if err != nil {
		return nil, fmt.Errorf("error reading optimizer output: %w", err)
	}

	model, err := mocap.BodyModelFromArrays(arrays)
	if err != nil {
		return nil, fmt.Errorf("optimizer output: %w", err)
	}

	if model.Variant != c.p.Variant {
		return nil, fmt.Errorf("optimizer returned variant %q, want %q",
			model.Variant, c.p.Variant)
	}

	if model.NumFrames() != kps.NumFrames() {
		return nil, fmt.Errorf("optimizer returned %d frames for %d keypoint frames",
			model.NumFrames(), kps.NumFrames())
	}

	c.p.Logger.Info().
		Dur("took", time.Since(start)).
		Msg("body model fitted")

	return model, nil
}
