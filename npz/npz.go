/*
Package npz reads and writes numpy array bundles. A bundle is a zip
archive holding one .npy entry per array, the format numpy's savez
family produces, which keeps pipeline artifacts loadable by the python
tooling that consumes them.

Supported dtypes are little endian float64 (<f8), float32 (<f4), int64
(<i8), int32 (<i4) and bool (|b1) arrays of any shape, plus scalar
unicode strings (<U). Writes are deterministic: entries are emitted in
sorted name order with fixed zip metadata, so identical inputs produce
identical files.
*/
package npz

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/klauspost/compress/zip"
)

var npyMagic = []byte{0x93, 'N', 'U', 'M', 'P', 'Y'}

// Array is a single n dimensional array tagged with its numpy dtype.
// Exactly one of the value slices is populated according to Dtype;
// float32 and int32 data is carried widened in Floats and Ints.
type Array struct {
	Dtype string
	Shape []int

	Floats []float64
	Ints   []int64
	Bools  []bool
	Str    string
}

// Float64s returns a <f8 array over data with the given shape.
func Float64s(shape []int, data []float64) Array {
	return Array{Dtype: "<f8", Shape: shape, Floats: data}
}

// Ints64 returns a <i8 array over data with the given shape.
func Ints64(shape []int, data []int64) Array {
	return Array{Dtype: "<i8", Shape: shape, Ints: data}
}

// Bools1 returns a |b1 array over data with the given shape.
func Bools1(shape []int, data []bool) Array {
	return Array{Dtype: "|b1", Shape: shape, Bools: data}
}

// String returns a zero dimensional unicode scalar holding s.
func String(s string) Array {

	n := len([]rune(s))
	if n == 0 {
		n = 1
	}
	return Array{Dtype: fmt.Sprintf("<U%d", n), Shape: nil, Str: s}
}

// Elements returns the number of elements the shape describes. A zero
// dimensional array has one element.
func (a Array) Elements() int {

	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

func (a Array) check() error {

	want := a.Elements()

	switch a.Dtype {
	case "<f8", "<f4":
		if len(a.Floats) != want {
			return fmt.Errorf("%d float values for shape of %d elements", len(a.Floats), want)
		}
	case "<i8", "<i4":
		if len(a.Ints) != want {
			return fmt.Errorf("%d int values for shape of %d elements", len(a.Ints), want)
		}
	case "|b1":
		if len(a.Bools) != want {
			return fmt.Errorf("%d bool values for shape of %d elements", len(a.Bools), want)
		}
	default:
		if len(a.Dtype) > 2 && a.Dtype[:2] == "<U" {
			if len(a.Shape) != 0 {
				return fmt.Errorf("unicode arrays must be scalar, got shape %v", a.Shape)
			}
			return nil
		}
		return fmt.Errorf("unsupported dtype %q", a.Dtype)
	}
	return nil
}

// Write writes the arrays as an npz bundle at path, replacing any
// existing file.
func Write(path string, arrays map[string]Array) error {

	f, err := os.Create(path)

	if err != nil {
		return fmt.Errorf("error creating bundle: %w", err)
	}

	zw := zip.NewWriter(f)

	// sorted entry order keeps the output byte stable
	names := make([]string, 0, len(arrays))
	for name := range arrays {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {

		a := arrays[name]

		if err := a.check(); err != nil {
			f.Close()
			return fmt.Errorf("array %s: %w", name, err)
		}

		w, err := zw.Create(name + ".npy")
		if err != nil {
			f.Close()
			return fmt.Errorf("array %s: %w", name, err)
		}

		if err := writeNPY(w, a); err != nil {
			f.Close()
			return fmt.Errorf("array %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("error finishing bundle: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("error closing bundle: %w", err)
	}

	return nil
}

// writeNPY emits a single version 1.0 npy stream.
func writeNPY(w io.Writer, a Array) error {

	if _, err := w.Write(npyHeader(a.Dtype, a.Shape)); err != nil {
		return err
	}

	switch a.Dtype {
	case "<f8":
		buf := make([]byte, 8*len(a.Floats))
		for i, v := range a.Floats {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
		}
		_, err := w.Write(buf)
		return err

	case "<f4":
		buf := make([]byte, 4*len(a.Floats))
		for i, v := range a.Floats {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(v)))
		}
		_, err := w.Write(buf)
		return err

	case "<i8":
		buf := make([]byte, 8*len(a.Ints))
		for i, v := range a.Ints {
			binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
		}
		_, err := w.Write(buf)
		return err

	case "<i4":
		buf := make([]byte, 4*len(a.Ints))
		for i, v := range a.Ints {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(int32(v)))
		}
		_, err := w.Write(buf)
		return err

	case "|b1":
		buf := make([]byte, len(a.Bools))
		for i, v := range a.Bools {
			if v {
				buf[i] = 1
			}
		}
		_, err := w.Write(buf)
		return err
	}

	// scalar unicode, UTF-32 little endian code points
	runes := []rune(a.Str)
	width := 0
	fmt.Sscanf(a.Dtype, "<U%d", &width)
	if width < len(runes) {
		width = len(runes)
	}

	buf := make([]byte, 4*width)
	for i, r := range runes {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(r))
	}
	_, err := w.Write(buf)
	return err
}

// npyHeader builds the version 1.0 header: magic, version, little
// endian header length and the python dict, space padded so the data
// start is 64 byte aligned.
func npyHeader(dtype string, shape []int) []byte {

	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }",
		dtype, shapeTuple(shape))

	// 10 byte preamble plus dict plus trailing newline, padded to 64
	total := 10 + len(dict) + 1
	pad := 0
	if rem := total % 64; rem != 0 {
		pad = 64 - rem
	}

	buf := make([]byte, 0, total+pad)
	buf = append(buf, npyMagic...)
	buf = append(buf, 1, 0)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(dict)+pad+1))
	buf = append(buf, dict...)
	for i := 0; i < pad; i++ {
		buf = append(buf, ' ')
	}
	buf = append(buf, '\n')

	return buf
}

func shapeTuple(shape []int) string {

	switch len(shape) {
	case 0:
		return "()"
	case 1:
		return fmt.Sprintf("(%d,)", shape[0])
	}

	s := "("
	for i, d := range shape {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%d", d)
	}
	return s + ")"
}
