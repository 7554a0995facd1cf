package estimate

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Batch defines a struct used for collecting a batch of gocv.Mat's together
// so they can be run through the detector network in a single forward pass
type Batch struct {
	// mats holds the frames added to the batch
	mats []gocv.Mat
	// size of the batch
	size int
	// width is the input tensor size width
	width int
	// height is the input tensor size height
	height int
	// matCnt is a counter for how many Mats have been added with Add()
	matCnt int
}

// NewBatch creates a batch for the given input tensor dimensions and
// batch size
func NewBatch(batchSize, height, width int) *Batch {

	return &Batch{
		size:   batchSize,
		height: height,
		width:  width,
		mats:   make([]gocv.Mat, batchSize),
		matCnt: 0,
	}
}

// Add a Mat to the batch.  The Mat must stay alive until the batch is
// cleared as no pixel data is copied.
func (b *Batch) Add(img gocv.Mat) error {

	// check if batch is full
	if b.matCnt >= b.size {
		return fmt.Errorf("batch full")
	}

	// validate mat dimensions
	if img.Rows() != b.height || img.Cols() != b.width {
		return fmt.Errorf("image does not match batch shape")
	}

	b.mats[b.matCnt] = img
	b.matCnt++

	return nil
}

// Count returns the number of Mats added since the last Clear
func (b *Batch) Count() int {
	return b.matCnt
}

// Blob builds the network input blob from the batched Mats
func (b *Batch) Blob(blob *gocv.Mat, scale float64) {

	gocv.BlobFromImages(b.mats[:b.matCnt], blob, scale,
		image.Pt(b.width, b.height), gocv.NewScalar(0, 0, 0, 0),
		true, false, gocv.MatTypeCV32F)
}

// OutputF32 returns the tensor output for the specified image number.
// idx starts counting from 0 to (batchsize-1)
func (b *Batch) OutputF32(idx int, flat []float32, size int) ([]float32, error) {

	if idx < 0 || idx >= b.matCnt {
		return nil, fmt.Errorf("index %d out of range [0-%d)", idx, b.matCnt)
	}

	offset := idx * size

	if offset+size > len(flat) {
		return nil, fmt.Errorf("offset %d out of range [%d,%d)", offset, len(flat), offset+size)
	}

	return flat[offset : offset+size], nil
}

// Clear the batch so it can be reused again
func (b *Batch) Clear() {
	// just reset the counter, the mats belong to the caller and are
	// replaced when Add() is called with new images
	b.matCnt = 0
}
