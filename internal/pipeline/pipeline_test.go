package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/schreiberlab/gixi/internal/config"
	"github.com/schreiberlab/gixi/internal/detect"
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

func testConfig(t *testing.T, srcDir string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Job.DataDir = filepath.Dir(srcDir)
	cfg.Job.FolderName = filepath.Base(srcDir)
	cfg.Job.LocalEnv = true

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
	cfg.General.SumImages = 3
	cfg.General.RealTime = false
	cfg.Parallel.MaxBatch = 1
	return cfg
}

// TestRunEndToEndWritesOneRecord drives the full pipeline: three raw frames
// arrive as a single batch (sum_images=3), get summed and remapped, run
// through a stub detector, and land as one written record.
func TestRunEndToEndWritesOneRecord(t *testing.T) {
	dir := t.TempDir()
	srcDir := filepath.Join(dir, "scan")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 3; i++ {
		writeTestFrame(t, filepath.Join(srcDir, frameName(i)), 4, 4, int32(i))
	}

	cfg := testConfig(t, srcDir)

	stub := &detect.StubDetector{Fixed: []detect.Detection{{Box: [4]float64{0.1, 0.1, 0.5, 0.5}, Score: 0.9}}}
	containerPath := filepath.Join(dir, "out.gixi")

	result, err := Run(context.Background(), cfg, Options{
		Detector:      stub,
		ContainerPath: containerPath,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.FoundBatches != 1 {
		t.Errorf("FoundBatches = %d, want 1", result.FoundBatches)
	}
	if result.SavedBatches != 1 {
		t.Errorf("SavedBatches = %d, want 1", result.SavedBatches)
	}
	if result.DroppedBatches != 0 {
		t.Errorf("DroppedBatches = %d, want 0", result.DroppedBatches)
	}
	if result.Errored {
		t.Error("Errored = true, want false")
	}

	db, err := bolt.Open(containerPath, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("opening container: %v", err)
	}
	defer func() { _ = db.Close() }()

	err = db.View(func(tx *bolt.Tx) error {
		run := tx.Bucket([]byte("scan"))
		if run == nil {
			t.Fatal("run bucket missing")
		}
		rec := run.Bucket([]byte("frame1"))
		if rec == nil {
			t.Fatal("record bucket missing")
		}
		var boxes [][4]float64
		raw := rec.Get([]byte("boxes"))
		if raw == nil {
			t.Fatal("boxes key missing")
		}
		if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&boxes); err != nil {
			t.Fatalf("decoding boxes: %v", err)
		}
		if len(boxes) != 1 || boxes[0] != [4]float64{0.1, 0.1, 0.5, 0.5} {
			t.Errorf("boxes = %v", boxes)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// TestRunDropsShapeMismatchBatch exercises the drop bookkeeping path: a
// batch whose summed frame shape disagrees with the configured detector
// geometry is dropped by the preprocessor pool, which also undoes the
// scanner's found-batch increment, so found converges back to saved.
func TestRunDropsShapeMismatchBatch(t *testing.T) {
	dir := t.TempDir()
	srcDir := filepath.Join(dir, "scan")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		t.Fatal(err)
	}

	// Wrong shape: 2x2 instead of the configured 4x4.
	for i := 1; i <= 3; i++ {
		writeTestFrame(t, filepath.Join(srcDir, frameName(i)), 2, 2, int32(i))
	}

	cfg := testConfig(t, srcDir)
	stub := &detect.StubDetector{}
	containerPath := filepath.Join(dir, "out.gixi")

	result, err := Run(context.Background(), cfg, Options{
		Detector:      stub,
		ContainerPath: containerPath,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.FoundBatches != 0 {
		t.Errorf("FoundBatches = %d, want 0 (drop undoes the found increment)", result.FoundBatches)
	}
	if result.SavedBatches != 0 {
		t.Errorf("SavedBatches = %d, want 0", result.SavedBatches)
	}
	if result.DroppedBatches != 1 {
		t.Errorf("DroppedBatches = %d, want 1", result.DroppedBatches)
	}
}

// TestRunKeepsGoodBatchDropsBadBatch: two batches of two frames each, one
// batch containing frames of the wrong shape. The bad batch is dropped and
// its found increment undone, so the run ends with found == saved == 1.
func TestRunKeepsGoodBatchDropsBadBatch(t *testing.T) {
	dir := t.TempDir()
	srcDir := filepath.Join(dir, "scan")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		t.Fatal(err)
	}

	// Sorted order pairs a1/a2 into the first batch, b1/b2 into the second.
	writeTestFrame(t, filepath.Join(srcDir, "a1.tif"), 4, 4, 1)
	writeTestFrame(t, filepath.Join(srcDir, "a2.tif"), 4, 4, 2)
	writeTestFrame(t, filepath.Join(srcDir, "b1.tif"), 2, 2, 3)
	writeTestFrame(t, filepath.Join(srcDir, "b2.tif"), 2, 2, 4)

	cfg := testConfig(t, srcDir)
	cfg.General.SumImages = 2

	stub := &detect.StubDetector{Fixed: []detect.Detection{{Box: [4]float64{0.1, 0.1, 0.5, 0.5}, Score: 0.9}}}
	containerPath := filepath.Join(dir, "out.gixi")

	result, err := Run(context.Background(), cfg, Options{
		Detector:      stub,
		ContainerPath: containerPath,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.FoundBatches != 1 {
		t.Errorf("FoundBatches = %d, want 1", result.FoundBatches)
	}
	if result.SavedBatches != 1 {
		t.Errorf("SavedBatches = %d, want 1", result.SavedBatches)
	}
	if result.FoundBatches != result.SavedBatches {
		t.Errorf("found (%d) != saved (%d) after a clean finish", result.FoundBatches, result.SavedBatches)
	}
	if result.DroppedBatches != 1 {
		t.Errorf("DroppedBatches = %d, want 1", result.DroppedBatches)
	}

	db, err := bolt.Open(containerPath, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("opening container: %v", err)
	}
	defer func() { _ = db.Close() }()

	err = db.View(func(tx *bolt.Tx) error {
		run := tx.Bucket([]byte("scan"))
		if run == nil {
			t.Fatal("run bucket missing")
		}
		if run.Bucket([]byte("a1")) == nil {
			t.Error("record bucket for the good batch missing")
		}
		if run.Bucket([]byte("b1")) != nil {
			t.Error("record bucket for the dropped batch should not exist")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// TestResolveWorkerCountHonorsMaxCores checks the cores-2 pool-sizing
// formula is clamped by cluster_config.max_cores and floored at 1.
func TestResolveWorkerCountHonorsMaxCores(t *testing.T) {
	cfg := config.Default()
	cfg.Cluster.MaxCores = 1
	if got := resolveWorkerCount(cfg); got != 1 {
		t.Errorf("resolveWorkerCount() = %d, want 1 (floored)", got)
	}
}

func frameName(i int) string {
	return "frame" + strconv.Itoa(i) + ".tif"
}
