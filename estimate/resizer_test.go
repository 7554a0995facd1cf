package estimate

import (
	"testing"

	"gocv.io/x/gocv"
)

func TestLetterBoxResize(t *testing.T) {

	tests := []struct {
		srcWidth      int
		srcHeight     int
		resizeWidth   int
		resizeHeight  int
		expectedXPad  int
		expectedYPad  int
		expectedScale float32
	}{
		{1280, 720, 640, 640, 0, 140, 0.50},
		{800, 1000, 640, 640, 64, 0, 0.64},
		{800, 800, 640, 640, 0, 0, 0.8},
	}

	for _, tc := range tests {
		img := gocv.NewMatWithSize(tc.srcHeight, tc.srcWidth, gocv.MatTypeCV8UC1)

		resizedImg := gocv.NewMat()

		resizer := NewResizer(tc.srcWidth, tc.srcHeight, tc.resizeWidth, tc.resizeHeight)

		resizer.LetterBoxResize(img, &resizedImg, padColor)

		if resizer.XPad() != tc.expectedXPad || resizer.YPad() != tc.expectedYPad {
			t.Errorf("Test failed for src (%d, %d): Padding values wrong, expected XPad=%d, YPad=%d, got xPad=%d, yPad=%d",
				tc.srcWidth, tc.srcHeight, tc.expectedXPad, tc.expectedYPad, resizer.XPad(), resizer.YPad())
		}

		if resizer.ScaleFactor() != tc.expectedScale {
			t.Errorf("Test failed for src (%d, %d): Scalefactor incorrect, expected %f, got %f",
				tc.srcWidth, tc.srcHeight, tc.expectedScale, resizer.ScaleFactor())
		}

		if resizedImg.Rows() != tc.resizeHeight || resizedImg.Cols() != tc.resizeWidth {
			t.Errorf("Test failed for src (%d, %d): resized to (%d, %d), want (%d, %d)",
				tc.srcWidth, tc.srcHeight, resizedImg.Cols(), resizedImg.Rows(),
				tc.resizeWidth, tc.resizeHeight)
		}

		img.Close()
		resizedImg.Close()
		resizer.Close()
	}
}

func TestSourceMapping(t *testing.T) {

	// 1280x720 to 640x640 gives scale 0.5, xPad 0, yPad 140
	resizer := NewResizer(1280, 720, 640, 640)
	defer resizer.Close()

	if got := resizer.SourceX(100); got != 200 {
		t.Errorf("SourceX(100) = %v, want 200", got)
	}

	if got := resizer.SourceY(140); got != 0 {
		t.Errorf("SourceY(140) = %v, want 0", got)
	}

	if got := resizer.SourceY(240); got != 200 {
		t.Errorf("SourceY(240) = %v, want 200", got)
	}

	// coordinates in the padding clamp to the source bounds
	if got := resizer.SourceY(0); got != 0 {
		t.Errorf("SourceY(0) = %v, want clamp to 0", got)
	}

	if got := resizer.SourceX(10000); got != 1279 {
		t.Errorf("SourceX(10000) = %v, want clamp to 1279", got)
	}
}
