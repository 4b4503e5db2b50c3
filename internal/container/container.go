// Package container persists detection results to a hierarchical bbolt
// file: one top-level bucket per scan run, one nested bucket per record.
// bbolt's transactional appends keep previously written groups intact when
// a later write fails mid-record.
package container

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/schreiberlab/gixi/internal/config"
	"github.com/schreiberlab/gixi/internal/detect"
	gixierrors "github.com/schreiberlab/gixi/internal/errors"
	"github.com/schreiberlab/gixi/internal/match"
	"github.com/schreiberlab/gixi/internal/preprocess"
)

const (
	attrPaths = "__attrs__paths"
	attrKind  = "__attrs__kind"
	kindValue = "IMAGE_DATASET"
)

// Writer owns the bbolt file for one pipeline run: a single top-level run
// bucket holding one sub-bucket per written record. Only the writer
// goroutine ever opens this file, matching the "shared resources" rule
// that the container is never touched concurrently from outside its own
// owning stage.
type Writer struct {
	db        *bolt.DB
	runBucket []byte
	save      config.SaveConfig
	seen      map[string]int // per-run record-name collision counter
}

// Open creates (or opens) the bbolt file at containerPath and establishes a
// run bucket named after srcDir's leaf directory name, suffixed with a
// zero-padded number on collision with an existing bucket.
func Open(containerPath, srcDir string, save config.SaveConfig) (*Writer, error) {
	db, err := bolt.Open(containerPath, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, gixierrors.NewWriteError(fmt.Sprintf("opening container %s", containerPath), err)
	}

	leaf := filepath.Base(filepath.Clean(srcDir))
	var runBucket string

	err = db.Update(func(tx *bolt.Tx) error {
		name := leaf
		suffix := 0
		for {
			if tx.Bucket([]byte(name)) == nil {
				break
			}
			suffix++
			name = fmt.Sprintf("%s-%05d", leaf, suffix)
		}
		if _, err := tx.CreateBucket([]byte(name)); err != nil {
			return err
		}
		runBucket = name
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, gixierrors.NewWriteError("creating run bucket", err)
	}

	return &Writer{db: db, runBucket: []byte(runBucket), save: save, seen: make(map[string]int)}, nil
}

// RunBucketName returns the resolved top-level bucket name for this run.
func (w *Writer) RunBucketName() string {
	return string(w.runBucket)
}

// Close closes the underlying bbolt file.
func (w *Writer) Close() error {
	return w.db.Close()
}

// WriteRecord persists one detection result under a per-record sub-bucket
// of the run bucket, keyed by the first path's name (relative to srcDir,
// extension stripped), suffixed on collision. matchResults is nil unless
// match_config.perform_matching is enabled for the run.
func (w *Writer) WriteRecord(srcDir string, rec preprocess.ProcessedRecord, dets []detect.Detection, matchResults map[string]match.Result) error {
	if len(rec.Paths.Paths) == 0 {
		return gixierrors.NewWriteError("record has no paths", nil)
	}

	name := recordName(srcDir, rec.Paths.Paths[0])
	w.seen[name]++
	if n := w.seen[name]; n > 1 {
		name = fmt.Sprintf("%s-%05d", name, n-1)
	}

	rel := make([]string, len(rec.Paths.Paths))
	for i, p := range rec.Paths.Paths {
		r, err := filepath.Rel(srcDir, p)
		if err != nil {
			r = filepath.Base(p)
		}
		rel[i] = r
	}

	return w.db.Update(func(tx *bolt.Tx) error {
		run := tx.Bucket(w.runBucket)
		if run == nil {
			return fmt.Errorf("run bucket %s missing", w.runBucket)
		}
		b, err := run.CreateBucket([]byte(name))
		if err != nil {
			return err
		}

		if err := b.Put([]byte(attrPaths), []byte(strings.Join(rel, ","))); err != nil {
			return err
		}
		if err := b.Put([]byte(attrKind), []byte(kindValue)); err != nil {
			return err
		}

		boxes := make([][4]float64, len(dets))
		scores := make([]float64, len(dets))
		intensities := make([]float64, len(dets))
		for i, d := range dets {
			boxes[i] = d.Box
			scores[i] = d.Score
			intensities[i] = d.Intensity
		}

		if err := putGob(b, "boxes", boxes); err != nil {
			return err
		}
		if w.save.SaveScores {
			if err := putGob(b, "scores", scores); err != nil {
				return err
			}
		}
		if w.save.SaveIntensities {
			if err := putGob(b, "intensities", intensities); err != nil {
				return err
			}
		}
		if w.save.SaveImg && rec.Img != nil {
			if err := putGob(b, "img", *rec.Img); err != nil {
				return err
			}
		}
		if w.save.SaveQImg && rec.QImg != nil {
			if err := putGob(b, "q_img", *rec.QImg); err != nil {
				return err
			}
		}
		if w.save.SavePolarImg && rec.PolarImg != nil {
			if err := putGob(b, "polar_img", *rec.PolarImg); err != nil {
				return err
			}
		}
		if len(matchResults) > 0 {
			if err := putGob(b, "matching_results", matchResults); err != nil {
				return err
			}
		}
		return nil
	})
}

func putGob(b *bolt.Bucket, key string, v interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return b.Put([]byte(key), buf.Bytes())
}

// recordName derives the bucket key for a path: its name relative to
// srcDir, with the file extension stripped.
func recordName(srcDir, path string) string {
	rel, err := filepath.Rel(srcDir, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	ext := filepath.Ext(rel)
	rel = strings.TrimSuffix(rel, ext)
	return strings.ReplaceAll(rel, string(filepath.Separator), "_")
}
