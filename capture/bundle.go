package capture

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	mocap "github.com/mvlab/go-mocap"
)

// calibration mirrors the calibration.json file of a capture bundle
type calibration struct {
	CaptureID string             `json:"capture_id"`
	FPS       float64            `json:"fps"`
	Ground    *mocap.GroundPlane `json:"ground,omitempty"`
	Cameras   []mocap.RawCamera  `json:"cameras"`
}

// Bundle is a capture recorded as a directory holding a calibration.json
// file and one video per view under views/, named view_00.mp4 onwards in
// camera order
type Bundle struct {
	dir   string
	calib calibration
}

// OpenBundle reads the calibration of a capture directory
func OpenBundle(dir string) (*Bundle, error) {

	data, err := os.ReadFile(filepath.Join(dir, "calibration.json"))

	if err != nil {
		return nil, fmt.Errorf("error reading calibration: %w", err)
	}

	var calib calibration

	if err := json.Unmarshal(data, &calib); err != nil {
		return nil, fmt.Errorf("error parsing calibration: %w", err)
	}

	if len(calib.Cameras) == 0 {
		return nil, mocap.ErrNoCameras
	}

	if calib.CaptureID == "" {
		// fall back to the directory name
		calib.CaptureID = filepath.Base(filepath.Clean(dir))
	}

	return &Bundle{
		dir:   dir,
		calib: calib,
	}, nil
}

// CaptureID returns the unique name of the capture
func (b *Bundle) CaptureID() string {
	return b.calib.CaptureID
}

// FPS returns the recording frame rate, defaulting to 30 when the
// calibration does not record one
func (b *Bundle) FPS() float64 {

	if b.calib.FPS <= 0 {
		return 30
	}

	return b.calib.FPS
}

// NumCameras returns the number of camera views
func (b *Bundle) NumCameras() int {
	return len(b.calib.Cameras)
}

// Camera returns the raw calibration of the given view
func (b *Bundle) Camera(view int) (mocap.RawCamera, error) {

	if view < 0 || view >= len(b.calib.Cameras) {
		return mocap.RawCamera{}, fmt.Errorf("view %d outside %d cameras",
			view, len(b.calib.Cameras))
	}

	return b.calib.Cameras[view], nil
}

// Ground returns the recorded ground plane estimate
func (b *Bundle) Ground() *mocap.GroundPlane {
	return b.calib.Ground
}

// VideoFile returns the path of the view's recording
func (b *Bundle) VideoFile(view int) string {
	return filepath.Join(b.dir, "views", fmt.Sprintf("view_%02d.mp4", view))
}

// ColorFrames opens the frame stream of a view.  Views listed in the
// calibration but recorded without video return a nil stream.
func (b *Bundle) ColorFrames(view int) (FrameStream, error) {

	if view < 0 || view >= len(b.calib.Cameras) {
		return nil, fmt.Errorf("view %d outside %d cameras",
			view, len(b.calib.Cameras))
	}

	file := b.VideoFile(view)

	if _, err := os.Stat(file); os.IsNotExist(err) {
		// view has no recording
		return nil, nil
	}

	// open handle to read frames of video file
	video, err := gocv.VideoCaptureFile(file)

	if err != nil {
		return nil, fmt.Errorf("error opening video %s: %w", file, err)
	}

	return &videoStream{video: video}, nil
}

// Close releases the bundle
func (b *Bundle) Close() error {
	return nil
}

// videoStream adapts gocv.VideoCapture to FrameStream
type videoStream struct {
	video *gocv.VideoCapture
}

func (s *videoStream) Read(dst *gocv.Mat) bool {
	return s.video.Read(dst)
}

func (s *videoStream) Frames() int {
	return int(s.video.Get(gocv.VideoCaptureFrameCount))
}

func (s *videoStream) Close() error {
	return s.video.Close()
}
