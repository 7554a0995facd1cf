package estimate

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	mocap "github.com/mvlab/go-mocap"
)

// Config holds the estimator settings loaded from a YAML file
type Config struct {
	// Detector configures the 2D keypoint network
	Detector DetectorConfig `yaml:"detector"`
	// Smoothing configures the temporal filter applied to triangulated
	// joint trajectories
	Smoothing SmoothingConfig `yaml:"smoothing"`
	// Fitter configures the external body model optimizer
	Fitter FitterConfig `yaml:"fitter"`
	// MinViews is the minimum number of camera views a joint must be
	// detected in before it is triangulated
	MinViews int `yaml:"min_views"`
	// ConventionName names the keypoint convention the detector produces
	ConventionName string `yaml:"convention"`
	// ConventionFile optionally points at a file listing one joint name
	// per line for a custom convention
	ConventionFile string `yaml:"convention_file"`
}

// DetectorConfig holds the pose detection network settings
type DetectorConfig struct {
	// ModelPath is the ONNX pose model file
	ModelPath string `yaml:"model"`
	// InputWidth is the width of the network input tensor
	InputWidth int `yaml:"input_width"`
	// InputHeight is the height of the network input tensor
	InputHeight int `yaml:"input_height"`
	// BoxThreshold is the minimum probability score required for a person
	// detection to be considered for processing
	BoxThreshold float32 `yaml:"box_threshold"`
	// KeypointThreshold is the minimum score a keypoint needs for its
	// mask entry to be marked valid
	KeypointThreshold float64 `yaml:"keypoint_threshold"`
	// BatchSize is the number of frames run through the network per
	// forward pass
	BatchSize int `yaml:"batch_size"`
	// Backend selects the DNN compute backend, eg: opencv, cuda
	Backend string `yaml:"backend"`
	// Target selects the DNN compute target, eg: cpu, fp16, cuda
	Target string `yaml:"target"`
}

// SmoothingConfig holds the kalman filter settings used to smooth
// triangulated joints over time
type SmoothingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ProcessNoise float64 `yaml:"process_noise"`
	MeasureNoise float64 `yaml:"measure_noise"`
}

// FitterConfig holds the settings for the external body model optimizer
// command
type FitterConfig struct {
	// Variant is the body model family to fit, smpl or smplx
	Variant string `yaml:"variant"`
	// Command is the optimizer executable, fitting is skipped when empty
	Command string `yaml:"command"`
	// Args are extra arguments passed before the standard input/output
	// arguments
	Args []string `yaml:"args"`
	// TimeoutSec aborts the optimizer after this many seconds, zero
	// means no limit
	TimeoutSec int `yaml:"timeout_sec"`
}

// DefaultConfig returns a Config populated with default values for a
// COCO trained pose model
func DefaultConfig() *Config {

	return &Config{
		Detector: DetectorConfig{
			InputWidth:        640,
			InputHeight:       640,
			BoxThreshold:      0.5,
			KeypointThreshold: 0.3,
			BatchSize:         1,
		},
		Smoothing: SmoothingConfig{
			Enabled:      true,
			ProcessNoise: 0.01,
			MeasureNoise: 0.05,
		},
		Fitter: FitterConfig{
			Variant: string(mocap.SMPL),
		},
		MinViews:       2,
		ConventionName: mocap.COCO17.Name,
	}
}

// LoadConfig reads a YAML estimator configuration file, applying defaults
// for any settings not present
func LoadConfig(file string) (*Config, error) {

	data, err := os.ReadFile(file)

	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration values are usable
func (c *Config) Validate() error {

	if c.Detector.ModelPath == "" {
		return fmt.Errorf("no detector model file set")
	}

	if c.Detector.InputWidth <= 0 || c.Detector.InputHeight <= 0 {
		return fmt.Errorf("invalid detector input size %dx%d",
			c.Detector.InputWidth, c.Detector.InputHeight)
	}

	if c.Detector.BatchSize < 1 {
		return fmt.Errorf("detector batch size must be at least 1")
	}

	if c.Detector.BoxThreshold <= 0 || c.Detector.BoxThreshold > 1 {
		return fmt.Errorf("box threshold %f outside range (0, 1]",
			c.Detector.BoxThreshold)
	}

	if c.Detector.KeypointThreshold < 0 || c.Detector.KeypointThreshold > 1 {
		return fmt.Errorf("keypoint threshold %f outside range [0, 1]",
			c.Detector.KeypointThreshold)
	}

	if c.MinViews < 2 {
		return fmt.Errorf("min views must be at least 2, got %d", c.MinViews)
	}

	if c.Fitter.Command != "" {
		if _, err := mocap.ParseVariant(c.Fitter.Variant); err != nil {
			return err
		}
	}

	return nil
}

// Convention resolves the keypoint convention the estimator produces
func (c *Config) Convention() (mocap.Convention, error) {

	if c.ConventionFile != "" {
		return mocap.LoadConvention(c.ConventionName, c.ConventionFile)
	}

	if c.ConventionName == "" || c.ConventionName == mocap.COCO17.Name {
		return mocap.COCO17, nil
	}

	return mocap.Convention{}, fmt.Errorf("unknown convention %q and no convention file set",
		c.ConventionName)
}
