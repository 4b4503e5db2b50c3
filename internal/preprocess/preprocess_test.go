package preprocess

import (
	"bufio"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/schreiberlab/gixi/internal/config"
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
	_, _ = w.WriteString("GXF1")
	_ = binary.Write(w, binary.LittleEndian, uint32(rows))
	_ = binary.Write(w, binary.LittleEndian, uint32(cols))
	data := make([]int32, rows*cols)
	for i := range data {
		data[i] = fill
	}
	_ = binary.Write(w, binary.LittleEndian, data)
	_ = w.Flush()
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.QSpace.SizeX = 4
	cfg.QSpace.SizeY = 4
	cfg.QSpace.QxyNum = 4
	cfg.QSpace.QzNum = 4
	cfg.QSpace.Distance = 10
	cfg.QSpace.PixelSize = 1
	cfg.QSpace.Wavelength = 1
	cfg.QSpace.QxyMax = 1
	cfg.QSpace.QzMax = 1
	cfg.Polar.AngularSize = 4
	cfg.Polar.QSize = 4
	cfg.Save.SaveImg = true
	cfg.Save.SaveQImg = true
	cfg.Save.SavePolarImg = true
	return cfg
}

func TestProcessAssemblesRecord(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.bin")
	p2 := filepath.Join(dir, "b.bin")
	writeTestFrame(t, p1, 4, 4, 2)
	writeTestFrame(t, p2, 4, 4, 3)

	cfg := testConfig()
	grids := BuildGrids(cfg)

	rec, err := Process(PathBatch{Paths: []string{p1, p2}}, cfg, grids)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if rec.Img == nil {
		t.Fatal("expected Img to be populated")
	}
	for _, v := range rec.Img.Data {
		if v != 5 {
			t.Errorf("summed pixel = %v, want 5", v)
		}
	}
	if rec.QImg == nil || rec.PolarImg == nil {
		t.Fatal("expected QImg and PolarImg to be populated")
	}
	if rec.ProcessedImg.Rows != cfg.Polar.AngularSize || rec.ProcessedImg.Cols != cfg.Polar.QSize {
		t.Errorf("ProcessedImg shape = (%d,%d), want (%d,%d)",
			rec.ProcessedImg.Rows, rec.ProcessedImg.Cols, cfg.Polar.AngularSize, cfg.Polar.QSize)
	}
}

func TestProcessShapeMismatch(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.bin")
	writeTestFrame(t, p1, 2, 2, 1)

	cfg := testConfig()
	grids := BuildGrids(cfg)

	_, err := Process(PathBatch{Paths: []string{p1}}, cfg, grids)
	if !gixierrors.IsKind(err, gixierrors.KindShapeMismatch) {
		t.Errorf("expected KindShapeMismatch, got %v", err)
	}
}

func TestProcessDeterministic(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.bin")
	writeTestFrame(t, p1, 4, 4, 7)

	cfg := testConfig()
	grids := BuildGrids(cfg)

	r1, err := Process(PathBatch{Paths: []string{p1}}, cfg, grids)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := Process(PathBatch{Paths: []string{p1}}, cfg, grids)
	if err != nil {
		t.Fatal(err)
	}
	for i := range r1.ProcessedImg.Data {
		if r1.ProcessedImg.Data[i] != r2.ProcessedImg.Data[i] {
			t.Fatalf("non-deterministic output at %d: %v vs %v", i, r1.ProcessedImg.Data[i], r2.ProcessedImg.Data[i])
		}
	}
}
