// Package detect runs a pre-trained peak detector over preprocessed images
// and applies non-maximum suppression to its output.
package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/schreiberlab/gixi/internal/config"
	gixierrors "github.com/schreiberlab/gixi/internal/errors"
	"github.com/schreiberlab/gixi/internal/preprocess"
	"github.com/schreiberlab/gixi/internal/util"
)

// Detection is one detected peak box, score, and optional summed intensity
// (see IntensityForBox).
type Detection struct {
	Box       [4]float64 // x0, y0, x1, y1, normalized to the image
	Score     float64
	Intensity float64
}

// Detector runs peak detection over a batch of preprocessed records.
// Construction failure (bad model path, failed device init) is fatal.
type Detector interface {
	RunBatch(ctx context.Context, records []preprocess.ProcessedRecord) ([][]Detection, error)
}

// StubDetector is a deterministic fixture detector for tests: it returns a
// fixed set of detections for every record, independent of pixel content.
type StubDetector struct {
	Fixed []Detection
}

// RunBatch returns a copy of the fixture detections for every record.
func (d *StubDetector) RunBatch(_ context.Context, records []preprocess.ProcessedRecord) ([][]Detection, error) {
	out := make([][]Detection, len(records))
	for i := range records {
		cp := make([]Detection, len(d.Fixed))
		copy(cp, d.Fixed)
		out[i] = cp
	}
	return out, nil
}

// ExecDetector shells out to an external inference process over stdin/
// stdout JSON: one process per batch, JSON request on stdin, JSON response
// on stdout, stderr captured for diagnostics on failure. Keeping the model
// out of process keeps the accelerator runtime out of this binary.
type ExecDetector struct {
	Command        string
	ScoreThreshold float64
	IoUThreshold   float64
}

// NewExecDetector builds an ExecDetector from model_config/postprocessing_config,
// clearing CUDA_VISIBLE_DEVICES when cluster_config.use_cuda is false.
func NewExecDetector(cfg *config.Config) (*ExecDetector, error) {
	if cfg.Model.ExecCmd == "" {
		return nil, gixierrors.NewModelLoadError("model_config.exec_cmd is empty", nil)
	}
	if cfg.Model.Path != "" && !util.FileExists(cfg.Model.Path) {
		return nil, gixierrors.NewModelLoadError(fmt.Sprintf("model file not found: %s", cfg.Model.Path), nil)
	}
	if !cfg.Cluster.UseCUDA {
		_ = os.Unsetenv("CUDA_VISIBLE_DEVICES")
	}
	return &ExecDetector{
		Command:        cfg.Model.ExecCmd,
		ScoreThreshold: cfg.Postprocessing.ScoreLevel,
		IoUThreshold:   cfg.Postprocessing.NMSLevel,
	}, nil
}

type execRequest struct {
	Images [][]float32 `json:"images"`
	Rows   int         `json:"rows"`
	Cols   int         `json:"cols"`
}

type execResponseItem struct {
	Boxes  [][4]float64 `json:"boxes"`
	Scores []float64    `json:"scores"`
}

// RunBatch invokes Command once per batch, sending every record's
// ProcessedImg pixels as JSON on stdin and decoding one response item per
// record from stdout. The external process reports boxes in absolute pixel
// coordinates; they are normalized here by the image dimensions. NMS/score
// filtering is re-applied regardless of what the external process already
// did, so the package's IoU guarantee holds unconditionally for any Go
// caller, and malformed boxes (zero or negative extent, scores outside
// [0,1]) are dropped rather than passed through.
func (d *ExecDetector) RunBatch(ctx context.Context, records []preprocess.ProcessedRecord) ([][]Detection, error) {
	req := execRequest{}
	if len(records) > 0 {
		req.Rows = records[0].ProcessedImg.Rows
		req.Cols = records[0].ProcessedImg.Cols
	}
	for _, r := range records {
		req.Images = append(req.Images, r.ProcessedImg.Data)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, gixierrors.NewDetectionError("marshaling detector request", err)
	}

	cmd := exec.CommandContext(ctx, d.Command)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, gixierrors.WrapExecError(d.Command, err, stderr.String())
	}

	var items []execResponseItem
	if err := json.Unmarshal(stdout.Bytes(), &items); err != nil {
		return nil, gixierrors.NewDetectionError(fmt.Sprintf("decoding detector response: %v", err), err)
	}
	if len(items) != len(records) {
		return nil, gixierrors.NewDetectionError(
			fmt.Sprintf("detector returned %d result sets for %d images", len(items), len(records)), nil)
	}

	cols, rows := float64(req.Cols), float64(req.Rows)
	out := make([][]Detection, len(items))
	for i, item := range items {
		dets := make([]Detection, 0, len(item.Boxes))
		for j, box := range item.Boxes {
			score := 0.0
			if j < len(item.Scores) {
				score = item.Scores[j]
			}
			if score < 0 || score > 1 {
				continue
			}
			if cols > 0 && rows > 0 {
				box[0] /= cols
				box[1] /= rows
				box[2] /= cols
				box[3] /= rows
			}
			if !(box[0] < box[2] && box[1] < box[3]) {
				continue
			}
			dets = append(dets, Detection{Box: box, Score: score})
		}
		out[i] = ApplyNMS(dets, d.ScoreThreshold, d.IoUThreshold)
	}
	return out, nil
}
