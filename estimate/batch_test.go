package estimate

import (
	"testing"

	"gocv.io/x/gocv"
)

func TestBatchAdd(t *testing.T) {

	batch := NewBatch(2, 640, 640)

	img := gocv.NewMatWithSize(640, 640, gocv.MatTypeCV8UC3)
	defer img.Close()

	if err := batch.Add(img); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if err := batch.Add(img); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	if batch.Count() != 2 {
		t.Errorf("Count() = %d, want 2", batch.Count())
	}

	if err := batch.Add(img); err == nil {
		t.Errorf("Add() to a full batch returned no error")
	}

	batch.Clear()

	if batch.Count() != 0 {
		t.Errorf("Count() after Clear() = %d, want 0", batch.Count())
	}

	if err := batch.Add(img); err != nil {
		t.Errorf("Add() after Clear() error = %v", err)
	}
}

func TestBatchAddWrongShape(t *testing.T) {

	batch := NewBatch(2, 640, 640)

	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer img.Close()

	if err := batch.Add(img); err == nil {
		t.Errorf("Add() with mismatched dimensions returned no error")
	}
}

func TestBatchOutputF32(t *testing.T) {

	batch := NewBatch(2, 4, 4)

	img := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer img.Close()

	if err := batch.Add(img); err != nil {
		t.Fatal(err)
	}
	if err := batch.Add(img); err != nil {
		t.Fatal(err)
	}

	flat := []float32{0, 1, 2, 3, 4, 5}

	got, err := batch.OutputF32(1, flat, 3)

	if err != nil {
		t.Fatalf("OutputF32() error = %v", err)
	}

	if got[0] != 3 || got[1] != 4 || got[2] != 5 {
		t.Errorf("OutputF32(1) = %v, want [3 4 5]", got)
	}

	if _, err := batch.OutputF32(2, flat, 3); err == nil {
		t.Errorf("OutputF32() past the added count returned no error")
	}

	if _, err := batch.OutputF32(1, flat, 4); err == nil {
		t.Errorf("OutputF32() past the buffer length returned no error")
	}
}

func TestBatchBlobShape(t *testing.T) {

	batch := NewBatch(3, 64, 48)

	imgs := make([]gocv.Mat, 2)

	for i := range imgs {
		imgs[i] = gocv.NewMatWithSize(64, 48, gocv.MatTypeCV8UC3)
		defer imgs[i].Close()

		if err := batch.Add(imgs[i]); err != nil {
			t.Fatal(err)
		}
	}

	blob := gocv.NewMat()
	defer blob.Close()

	batch.Blob(&blob, 1.0/255.0)

	// NCHW blob for the two added images only
	dims := blob.Size()

	if len(dims) != 4 {
		t.Fatalf("blob rank = %d, want 4", len(dims))
	}

	if dims[0] != 2 || dims[1] != 3 || dims[2] != 64 || dims[3] != 48 {
		t.Errorf("blob shape = %v, want [2 3 64 48]", dims)
	}
}
