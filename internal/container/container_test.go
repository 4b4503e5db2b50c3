package container

import (
	"bytes"
	"encoding/gob"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/schreiberlab/gixi/internal/config"
	"github.com/schreiberlab/gixi/internal/detect"
	"github.com/schreiberlab/gixi/internal/frame"
	"github.com/schreiberlab/gixi/internal/preprocess"
)

func TestOpenCreatesRunBucket(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.gixi")

	w, err := Open(path, filepath.Join(dir, "myscan"), config.SaveConfig{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = w.Close() }()

	if w.RunBucketName() != "myscan" {
		t.Errorf("RunBucketName() = %q, want myscan", w.RunBucketName())
	}
}

func TestOpenSuffixesOnCollision(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.gixi")

	w1, err := Open(path, filepath.Join(dir, "scan1"), config.SaveConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w1.Close(); err != nil {
		t.Fatal(err)
	}

	w2, err := Open(path, filepath.Join(dir, "scan1"), config.SaveConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = w2.Close() }()

	if w2.RunBucketName() != "scan1-00001" {
		t.Errorf("RunBucketName() = %q, want scan1-00001", w2.RunBucketName())
	}
}

func TestWriteRecordPersistsBoxesAndAttrs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.gixi")
	srcDir := filepath.Join(dir, "scan")

	w, err := Open(path, srcDir, config.SaveConfig{SaveScores: true, SaveImg: true})
	if err != nil {
		t.Fatal(err)
	}

	rec := preprocess.ProcessedRecord{
		Paths:        preprocess.PathBatch{Paths: []string{filepath.Join(srcDir, "frame001.tif")}},
		ProcessedImg: frame.NewImage32(2, 2),
	}
	img := frame.NewImage32(2, 2)
	rec.Img = &img

	dets := []detect.Detection{{Box: [4]float64{0, 0, 1, 1}, Score: 0.8}}

	if err := w.WriteRecord(srcDir, rec, dets, nil); err != nil {
		t.Fatalf("WriteRecord failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	err = db.View(func(tx *bolt.Tx) error {
		run := tx.Bucket([]byte("scan"))
		if run == nil {
			t.Fatal("run bucket missing")
		}
		rb := run.Bucket([]byte("frame001"))
		if rb == nil {
			t.Fatal("record bucket missing")
		}
		if string(rb.Get([]byte(attrKind))) != kindValue {
			t.Error("attrs kind mismatch")
		}
		var boxes [][4]float64
		if err := gob.NewDecoder(bytes.NewReader(rb.Get([]byte("boxes")))).Decode(&boxes); err != nil {
			t.Fatalf("decoding boxes: %v", err)
		}
		if len(boxes) != 1 || boxes[0] != [4]float64{0, 0, 1, 1} {
			t.Errorf("boxes = %v", boxes)
		}
		if rb.Get([]byte("scores")) == nil {
			t.Error("expected scores key to be present")
		}
		if rb.Get([]byte("img")) == nil {
			t.Error("expected img key to be present")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestWriteRecordCollisionSuffix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.gixi")
	srcDir := filepath.Join(dir, "scan")

	w, err := Open(path, srcDir, config.SaveConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = w.Close() }()

	rec := preprocess.ProcessedRecord{
		Paths:        preprocess.PathBatch{Paths: []string{filepath.Join(srcDir, "frame001.tif")}},
		ProcessedImg: frame.NewImage32(1, 1),
	}
	if err := w.WriteRecord(srcDir, rec, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteRecord(srcDir, rec, nil, nil); err != nil {
		t.Fatal(err)
	}
	if w.seen["frame001"] != 2 {
		t.Errorf("seen[frame001] = %d, want 2", w.seen["frame001"])
	}
}
