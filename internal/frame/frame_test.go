package frame

import (
	"bufio"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	gixierrors "github.com/schreiberlab/gixi/internal/errors"
)

func writeTestFrame(t *testing.T, path string, rows, cols int, fill int32) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString(rawFrameMagic); err != nil {
		t.Fatal(err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(rows)); err != nil {
		t.Fatal(err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(cols)); err != nil {
		t.Fatal(err)
	}
	data := make([]int32, rows*cols)
	for i := range data {
		data[i] = fill
	}
	if err := binary.Write(w, binary.LittleEndian, data); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
}

func TestReadRawFrameRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.bin")
	writeTestFrame(t, path, 4, 3, 7)

	f, err := ReadRawFrame(path)
	if err != nil {
		t.Fatalf("ReadRawFrame failed: %v", err)
	}
	if f.Rows != 4 || f.Cols != 3 {
		t.Fatalf("shape = (%d,%d), want (4,3)", f.Rows, f.Cols)
	}
	for _, v := range f.Data {
		if v != 7 {
			t.Fatalf("pixel = %d, want 7", v)
		}
	}
}

func TestSum(t *testing.T) {
	a := RawFrame{Rows: 2, Cols: 2, Data: []int32{1, 2, 3, 4}}
	b := RawFrame{Rows: 2, Cols: 2, Data: []int32{10, 20, 30, 40}}

	out, err := Sum([]RawFrame{a, b}, 2, 2)
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}
	want := []float32{11, 22, 33, 44}
	for i, v := range want {
		if out.Data[i] != v {
			t.Errorf("Data[%d] = %v, want %v", i, out.Data[i], v)
		}
	}
}

func TestSumShapeMismatch(t *testing.T) {
	a := RawFrame{Rows: 2, Cols: 2, Data: []int32{1, 2, 3, 4}}
	b := RawFrame{Rows: 3, Cols: 2, Data: make([]int32, 6)}

	_, err := Sum([]RawFrame{a, b}, 2, 2)
	if !gixierrors.IsKind(err, gixierrors.KindShapeMismatch) {
		t.Errorf("expected KindShapeMismatch, got %v", err)
	}
}

func TestFlipHorizontal(t *testing.T) {
	img := Image32{Rows: 2, Cols: 2, Data: []float32{1, 2, 3, 4}}
	out := FlipHorizontal(img)
	want := []float32{2, 1, 4, 3}
	for i, v := range want {
		if out.Data[i] != v {
			t.Errorf("Data[%d] = %v, want %v", i, out.Data[i], v)
		}
	}
}

func TestFlipVertical(t *testing.T) {
	img := Image32{Rows: 2, Cols: 2, Data: []float32{1, 2, 3, 4}}
	out := FlipVertical(img)
	want := []float32{3, 4, 1, 2}
	for i, v := range want {
		if out.Data[i] != v {
			t.Errorf("Data[%d] = %v, want %v", i, out.Data[i], v)
		}
	}
}
