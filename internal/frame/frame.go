// Package frame reads raw detector frames and sums them into a single image.
package frame

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	gixierrors "github.com/schreiberlab/gixi/internal/errors"
)

// RawFrame is a 2-D array of integer pixel intensities at a fixed detector
// shape. Read-only once loaded.
type RawFrame struct {
	Rows, Cols int
	Data       []int32 // row-major
}

// Image32 is a 2-D float32 image, the row-major analogue of a numpy array
// used throughout the remap and contrast stages.
type Image32 struct {
	Rows, Cols int
	Data       []float32
}

// NewImage32 allocates a zeroed Image32 of the given shape.
func NewImage32(rows, cols int) Image32 {
	return Image32{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// At returns the pixel at (row, col).
func (img Image32) At(row, col int) float32 {
	return img.Data[row*img.Cols+col]
}

// Set writes the pixel at (row, col).
func (img Image32) Set(row, col int, v float32) {
	img.Data[row*img.Cols+col] = v
}

// rawFrameMagic is the 4-byte header a gixi raw frame file starts with,
// followed by two little-endian uint32 dimensions and row-major int32 data.
// Detector frames arrive pre-converted to this container by the beamline
// export step; readers for vendor formats (TIFF/CBF/EDF) plug in behind
// the same RawFrame contract.
const rawFrameMagic = "GXF1"

// ReadRawFrame reads a single raw detector frame from path.
func ReadRawFrame(path string) (RawFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return RawFrame{}, gixierrors.NewIOError(fmt.Sprintf("opening frame %s", path), err)
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(f)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return RawFrame{}, gixierrors.NewIOError(fmt.Sprintf("reading frame header %s", path), err)
	}
	if string(magic) != rawFrameMagic {
		return RawFrame{}, gixierrors.NewIOError(fmt.Sprintf("frame %s: bad magic", path), nil)
	}

	var rows, cols uint32
	if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
		return RawFrame{}, gixierrors.NewIOError(fmt.Sprintf("reading frame rows %s", path), err)
	}
	if err := binary.Read(r, binary.LittleEndian, &cols); err != nil {
		return RawFrame{}, gixierrors.NewIOError(fmt.Sprintf("reading frame cols %s", path), err)
	}

	data := make([]int32, int(rows)*int(cols))
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return RawFrame{}, gixierrors.NewIOError(fmt.Sprintf("reading frame data %s", path), err)
	}

	return RawFrame{Rows: int(rows), Cols: int(cols), Data: data}, nil
}

// Sum element-wise sums a batch of raw frames into a single float32 image.
// Returns a shape-mismatch error if any frame's shape differs from the
// detector shape (wantRows, wantCols), or from the first frame in the batch.
func Sum(frames []RawFrame, wantRows, wantCols int) (Image32, error) {
	if len(frames) == 0 {
		return Image32{}, gixierrors.NewIOError("sum: empty batch", nil)
	}

	for _, f := range frames {
		if f.Rows != wantRows || f.Cols != wantCols {
			return Image32{}, gixierrors.NewShapeMismatchError(f.Rows, f.Cols, wantRows, wantCols)
		}
	}

	out := NewImage32(wantRows, wantCols)
	for _, f := range frames {
		for i, v := range f.Data {
			out.Data[i] += float32(v)
		}
	}
	return out, nil
}

// FlipHorizontal returns a new image with each row of img reversed; img is
// left unchanged.
func FlipHorizontal(img Image32) Image32 {
	out := NewImage32(img.Rows, img.Cols)
	for r := 0; r < img.Rows; r++ {
		for c := 0; c < img.Cols; c++ {
			out.Set(r, c, img.At(r, img.Cols-1-c))
		}
	}
	return out
}

// FlipVertical reverses the row order and returns a new image.
func FlipVertical(img Image32) Image32 {
	out := NewImage32(img.Rows, img.Cols)
	for r := 0; r < img.Rows; r++ {
		for c := 0; c < img.Cols; c++ {
			out.Set(r, c, img.At(img.Rows-1-r, c))
		}
	}
	return out
}
