// Package capture loads multi camera recordings and their calibration.
package capture

import (
	"gocv.io/x/gocv"

	mocap "github.com/mvlab/go-mocap"
)

// Source provides the calibration and video frames of one capture
type Source interface {
	// CaptureID returns the unique name of the capture
	CaptureID() string
	// FPS returns the recording frame rate
	FPS() float64
	// NumCameras returns the number of camera views
	NumCameras() int
	// Camera returns the raw calibration of the given view
	Camera(view int) (mocap.RawCamera, error)
	// Ground returns the recorded ground plane estimate, nil when the
	// capture has none
	Ground() *mocap.GroundPlane
	// ColorFrames opens the frame stream of a view.  A nil stream with a
	// nil error marks a view that has no recording.
	ColorFrames(view int) (FrameStream, error)
	// Close releases any resources held by the source
	Close() error
}

// FrameStream yields the successive frames of one view
type FrameStream interface {
	// Read the next frame into dst, returns false when no frames remain
	Read(dst *gocv.Mat) bool
	// Frames returns the total frame count when known, zero otherwise
	Frames() int
	// Close releases the stream
	Close() error
}

// BufferFrames reads all remaining frames of a stream into memory.  The
// caller owns the returned Mats and must close them.
func BufferFrames(stream FrameStream) []gocv.Mat {

	buffer := make([]gocv.Mat, 0)

	for {
		img := gocv.NewMat()

		// read the next frame from the video
		if ok := stream.Read(&img); !ok {
			// reached last video frame
			img.Close()
			break
		}

		// check if the frame is empty
		if img.Empty() {
			img.Close()
			continue
		}

		// push frame onto buffer
		buffer = append(buffer, img)
	}

	return buffer
}

// CloseFrames closes all Mats in a frame buffer
func CloseFrames(frames []gocv.Mat) {

	for i := range frames {
		frames[i].Close()
	}
}
