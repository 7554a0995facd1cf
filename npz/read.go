package npz

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Read loads every array from an npz bundle.
func Read(path string) (map[string]Array, error) {

	zr, err := zip.OpenReader(path)

	if err != nil {
		return nil, fmt.Errorf("error opening bundle: %w", err)
	}

	defer zr.Close()

	arrays := make(map[string]Array, len(zr.File))

	for _, zf := range zr.File {

		name := strings.TrimSuffix(zf.Name, ".npy")

		r, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("array %s: %w", name, err)
		}

		a, err := readNPY(r)
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("array %s: %w", name, err)
		}

		arrays[name] = a
	}

	return arrays, nil
}

// readNPY parses a single npy stream, accepting format versions 1.0
// and 2.0.
func readNPY(r io.Reader) (Array, error) {

	pre := make([]byte, 8)
	if _, err := io.ReadFull(r, pre); err != nil {
		return Array{}, fmt.Errorf("error reading preamble: %w", err)
	}

	for i, b := range npyMagic {
		if pre[i] != b {
			return Array{}, fmt.Errorf("not an npy stream")
		}
	}

	var headerLen int

	switch pre[6] {
	case 1:
		b := make([]byte, 2)
		if _, err := io.ReadFull(r, b); err != nil {
			return Array{}, fmt.Errorf("error reading header length: %w", err)
		}
		headerLen = int(binary.LittleEndian.Uint16(b))
	case 2:
		b := make([]byte, 4)
		if _, err := io.ReadFull(r, b); err != nil {
			return Array{}, fmt.Errorf("error reading header length: %w", err)
		}
		headerLen = int(binary.LittleEndian.Uint32(b))
	default:
		return Array{}, fmt.Errorf("unsupported npy version %d.%d", pre[6], pre[7])
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return Array{}, fmt.Errorf("error reading header: %w", err)
	}

	dtype, shape, err := parseHeader(string(header))
	if err != nil {
		return Array{}, err
	}

	a := Array{Dtype: dtype, Shape: shape}
	n := a.Elements()

	data, err := io.ReadAll(r)
	if err != nil {
		return Array{}, fmt.Errorf("error reading data: %w", err)
	}

	switch {
	case dtype == "<f8":
		if len(data) < 8*n {
			return Array{}, fmt.Errorf("short data: %d bytes for %d float64", len(data), n)
		}
		a.Floats = make([]float64, n)
		for i := range a.Floats {
			a.Floats[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}

	case dtype == "<f4":
		if len(data) < 4*n {
			return Array{}, fmt.Errorf("short data: %d bytes for %d float32", len(data), n)
		}
		a.Floats = make([]float64, n)
		for i := range a.Floats {
			a.Floats[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
		}

	case dtype == "<i8":
		if len(data) < 8*n {
			return Array{}, fmt.Errorf("short data: %d bytes for %d int64", len(data), n)
		}
		a.Ints = make([]int64, n)
		for i := range a.Ints {
			a.Ints[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
		}

	case dtype == "<i4":
		if len(data) < 4*n {
			return Array{}, fmt.Errorf("short data: %d bytes for %d int32", len(data), n)
		}
		a.Ints = make([]int64, n)
		for i := range a.Ints {
			a.Ints[i] = int64(int32(binary.LittleEndian.Uint32(data[i*4:])))
		}

	case dtype == "|b1":
		if len(data) < n {
			return Array{}, fmt.Errorf("short data: %d bytes for %d bool", len(data), n)
		}
		a.Bools = make([]bool, n)
		for i := range a.Bools {
			a.Bools[i] = data[i] != 0
		}

	case strings.HasPrefix(dtype, "<U"):
		if len(shape) > 1 || (len(shape) == 1 && shape[0] != 1) {
			return Array{}, fmt.Errorf("unicode arrays must be scalar, got shape %v", shape)
		}
		width, err := strconv.Atoi(dtype[2:])
		if err != nil {
			return Array{}, fmt.Errorf("bad unicode dtype %q", dtype)
		}
		if len(data) < 4*width {
			return Array{}, fmt.Errorf("short data: %d bytes for <U%d", len(data), width)
		}
		runes := make([]rune, 0, width)
		for i := 0; i < width; i++ {
			r := rune(binary.LittleEndian.Uint32(data[i*4:]))
			if r == 0 {
				break
			}
			runes = append(runes, r)
		}
		a.Str = string(runes)
		a.Shape = nil

	default:
		return Array{}, fmt.Errorf("unsupported dtype %q", dtype)
	}

	return a, nil
}

// parseHeader pulls descr and shape out of the header dict. Fortran
// ordered arrays are rejected.
func parseHeader(h string) (string, []int, error) {

	dtype, err := dictValue(h, "descr")
	if err != nil {
		return "", nil, err
	}

	order, err := dictValue(h, "fortran_order")
	if err != nil {
		return "", nil, err
	}
	if order != "False" {
		return "", nil, fmt.Errorf("fortran ordered arrays are not supported")
	}

	shapeStr, err := dictValue(h, "shape")
	if err != nil {
		return "", nil, err
	}

	shapeStr = strings.TrimPrefix(shapeStr, "(")
	shapeStr = strings.TrimSuffix(shapeStr, ")")

	var shape []int

	for _, part := range strings.Split(shapeStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil {
			return "", nil, fmt.Errorf("bad shape dimension %q", part)
		}
		shape = append(shape, d)
	}

	return dtype, shape, nil
}

// dictValue extracts the value for key from the python literal dict in
// the npy header. Quoted values lose their quotes, tuple values keep
// their parentheses.
func dictValue(h, key string) (string, error) {

	idx := strings.Index(h, "'"+key+"'")
	if idx < 0 {
		return "", fmt.Errorf("header has no %s field", key)
	}

	rest := h[idx+len(key)+2:]
	colon := strings.Index(rest, ":")
	if colon < 0 {
		return "", fmt.Errorf("malformed header near %s", key)
	}
	rest = strings.TrimSpace(rest[colon+1:])

	switch {
	case strings.HasPrefix(rest, "'"):
		end := strings.Index(rest[1:], "'")
		if end < 0 {
			return "", fmt.Errorf("unterminated string for %s", key)
		}
		return rest[1 : 1+end], nil

	case strings.HasPrefix(rest, "("):
		end := strings.Index(rest, ")")
		if end < 0 {
			return "", fmt.Errorf("unterminated tuple for %s", key)
		}
		return rest[:end+1], nil
	}

	end := strings.IndexAny(rest, ",}")
	if end < 0 {
		return "", fmt.Errorf("malformed header near %s", key)
	}
	return strings.TrimSpace(rest[:end]), nil
}
