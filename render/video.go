package render

import (
	"fmt"

	"golang.org/x/image/font"

	"gocv.io/x/gocv"

	mocap "github.com/mvlab/go-mocap"
)

// hudFontSize is the TTF label size used in overlay videos
const hudFontSize = 18

// FrameReader yields successive video frames, Read returns false when no
// frames remain
type FrameReader interface {
	Read(dst *gocv.Mat) bool
}

// OverlayParams configures a projection overlay video
type OverlayParams struct {
	// FPS of the output video, defaults to 30
	FPS float64
	// Label drawn in the top left corner of every frame
	Label string
	// LabelColor is the label accent color, defaults to white
	LabelColor *Font
	// FontFile optionally renders the label with a TTF font instead of
	// the built in Hershey face
	FontFile string
	// LineThickness of skeleton limbs, defaults to 2
	LineThickness int
}

// WriteOverlayVideo draws per frame keypoints over a view's frames and
// writes the result to an mp4 file.  Frames beyond the keypoint sequence
// are dropped.
func WriteOverlayVideo(file string, frames FrameReader,
	kps *mocap.Keypoints2D, p OverlayParams) error {

	if kps == nil {
		return fmt.Errorf("no keypoints to draw")
	}

	thickness := p.LineThickness

	if thickness < 1 {
		thickness = 2
	}

	fps := p.FPS

	if fps <= 0 {
		fps = 30
	}

	hudFont := DefaultFont()

	if p.LabelColor != nil {
		hudFont = *p.LabelColor
	}

	var face font.Face

	if p.FontFile != "" {
		var err error
		face, err = LoadFontFace(p.FontFile, hudFontSize)

		if err != nil {
			return err
		}
	}

	img := gocv.NewMat()
	defer img.Close()

	var writer *gocv.VideoWriter

	defer func() {
		if writer != nil {
			writer.Close()
		}
	}()

	for f := 0; frames.Read(&img); f++ {
		if f >= kps.NumFrames() {
			break
		}

		if img.Empty() {
			continue
		}

		// the writer needs the frame dimensions so is created on the
		// first frame
		if writer == nil {
			var err error
			writer, err = gocv.VideoWriterFile(file, "mp4v", fps,
				img.Cols(), img.Rows(), true)

			if err != nil {
				return fmt.Errorf("error creating video %s: %w", file, err)
			}
		}

		DrawPose(&img, kps, f, thickness)

		label := fmt.Sprintf("frame %d", f)

		if p.Label != "" {
			label = fmt.Sprintf("%s  frame %d", p.Label, f)
		}

		if err := DrawLabel(&img, label, 8, 24, face, hudFont); err != nil {
			return err
		}

		if err := writer.Write(img); err != nil {
			return fmt.Errorf("error writing frame %d to %s: %w", f, file, err)
		}
	}

	if writer == nil {
		return fmt.Errorf("no frames to render")
	}

	return nil
}
