// Package config provides the grouped, typed configuration tree for gixi
// and its lossless round trip to/from an INI file.
package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// GeneralConfig controls scanner batching and polling.
type GeneralConfig struct {
	SumImages int     `ini:"sum_images"`
	RealTime  bool    `ini:"real_time"`
	Timeout   float64 `ini:"timeout"`
	SleepTime float64 `ini:"sleep_time"`
}

// JobConfig identifies the run and its source/destination naming.
type JobConfig struct {
	ConfigPath      string `ini:"config_path"`
	FolderName      string `ini:"folder_name"`
	DataDir         string `ini:"data_dir"`
	Name            string `ini:"name"`
	RewritePrevious bool   `ini:"rewrite_previous"`
	LocalEnv        bool   `ini:"local_env"`
}

// ClusterConfig controls the whole-job timeout and device selection.
type ClusterConfig struct {
	Time     string `ini:"time"` // HH:MM:SS
	UseCUDA  bool   `ini:"use_cuda"`
	MaxCores int    `ini:"max_cores"` // <= 0 means all
}

// QSpaceConfig describes detector geometry and reciprocal-space grid size.
type QSpaceConfig struct {
	Z0             float64 `ini:"z0"`
	Y0             float64 `ini:"y0"`
	SizeX          int     `ini:"size_x"`
	SizeY          int     `ini:"size_y"`
	Wavelength     float64 `ini:"wavelength"`
	PixelSize      float64 `ini:"pixel_size"`
	Distance       float64 `ini:"distance"`
	IncidenceAngle float64 `ini:"incidence_angle"`
	QxyMax         float64 `ini:"q_xy_max"`
	QzMax          float64 `ini:"q_z_max"`
	QxyNum         int     `ini:"q_xy_num"`
	QzNum          int     `ini:"q_z_num"`
	FlipX          bool    `ini:"flip_x"`
	FlipY          bool    `ini:"flip_y"`
}

// ContrastConfig controls CLAHE-based contrast correction of the polar image.
type ContrastConfig struct {
	Limit   float64 `ini:"limit"`
	Coef    float64 `ini:"coef"`
	Log     bool    `ini:"log"`
	Disable bool    `ini:"disable"`
}

// PolarConfig controls the polar remap output shape and resampling algorithm.
type PolarConfig struct {
	AngularSize int    `ini:"angular_size"`
	QSize       int    `ini:"q_size"`
	Algorithm   string `ini:"algorithm"` // bilinear, bicubic, lanczos4
}

// ParallelConfig controls preprocessor pool sizing and detector batch size.
type ParallelConfig struct {
	ParallelComputation bool `ini:"parallel_computation"`
	MaxBatch            int  `ini:"max_batch"`
}

// PostprocessingConfig controls the detector's NMS/score contract.
type PostprocessingConfig struct {
	NMSLevel   float64 `ini:"nms_level"`
	ScoreLevel float64 `ini:"score_level"`
}

// SaveConfig selects which intermediate products the writer persists.
type SaveConfig struct {
	SaveImg         bool `ini:"save_img"`
	SaveQImg        bool `ini:"save_q_img"`
	SavePolarImg    bool `ini:"save_polar_img"`
	SaveScores      bool `ini:"save_scores"`
	SaveIntensities bool `ini:"save_intensities"`
}

// MatchConfig controls the optional CIF peak-matching stage.
type MatchConfig struct {
	PerformMatching bool    `ini:"perform_matching"`
	MaxDistance     float64 `ini:"max_distance"`
	CIFDir          string  `ini:"cif_dir"`
}

// LogConfig controls logging verbosity and destinations.
type LogConfig struct {
	RecordTime bool `ini:"record_time"`
	Debug      bool `ini:"debug"`
	LogToFile  bool `ini:"log_to_file"`
}

// ModelConfig identifies the detector model and backend.
type ModelConfig struct {
	Name       string  `ini:"name"`
	Path       string  `ini:"path"`
	ExecCmd    string  `ini:"exec_cmd"`
	ScoreLevel float64 `ini:"score_level"`
}

// Config is the full immutable tree of configuration groups.
type Config struct {
	General        GeneralConfig        `ini:"general"`
	Job            JobConfig            `ini:"job_config"`
	Cluster        ClusterConfig        `ini:"cluster_config"`
	QSpace         QSpaceConfig         `ini:"q_space"`
	Contrast       ContrastConfig       `ini:"contrast"`
	Polar          PolarConfig          `ini:"polar_config"`
	Parallel       ParallelConfig       `ini:"parallel"`
	Postprocessing PostprocessingConfig `ini:"postprocessing_config"`
	Save           SaveConfig           `ini:"save_config"`
	Match          MatchConfig          `ini:"match_config"`
	Log            LogConfig            `ini:"log_config"`
	Model          ModelConfig          `ini:"model_config"`
}

// Default returns a Config populated with the defaults used throughout the
// pipeline's test scenarios.
func Default() *Config {
	return &Config{
		General: GeneralConfig{
			SumImages: 1,
			RealTime:  false,
			Timeout:   30,
			SleepTime: 0.5,
		},
		Cluster: ClusterConfig{
			Time:     "01:00:00",
			UseCUDA:  false,
			MaxCores: 0,
		},
		QSpace: QSpaceConfig{
			SizeX:  619,
			SizeY:  487,
			QxyNum: 256,
			QzNum:  256,
		},
		Polar: PolarConfig{
			AngularSize: 256,
			QSize:       256,
			Algorithm:   "bilinear",
		},
		Parallel: ParallelConfig{
			ParallelComputation: true,
			MaxBatch:            8,
		},
		Postprocessing: PostprocessingConfig{
			NMSLevel:   0.5,
			ScoreLevel: 0.3,
		},
		Save: SaveConfig{
			SaveScores: true,
		},
		Log: LogConfig{
			RecordTime: true,
		},
	}
}

// Load reads a Config from an INI file at path, filling in defaults for any
// missing group, then overlaying whatever sections are actually present.
func Load(path string) (*Config, error) {
	cfg := Default()

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	if err := file.MapTo(cfg); err != nil {
		return nil, fmt.Errorf("mapping config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveToFile writes Config to path as INI, round-tripping every declared field.
func (c *Config) SaveToFile(path string) error {
	file := ini.Empty()
	if err := ini.ReflectFrom(file, c); err != nil {
		return fmt.Errorf("reflecting config: %w", err)
	}
	if err := file.SaveTo(path); err != nil {
		return fmt.Errorf("saving config %s: %w", path, err)
	}
	return nil
}

// Validate checks cross-field invariants not expressible via struct tags.
func (c *Config) Validate() error {
	if c.General.SumImages < 1 {
		return fmt.Errorf("general.sum_images=%d: %w", c.General.SumImages, ErrInvalidSumImages)
	}
	if c.Parallel.MaxBatch < 1 {
		return fmt.Errorf("parallel.max_batch=%d: %w", c.Parallel.MaxBatch, ErrInvalidMaxBatch)
	}
	switch c.Polar.Algorithm {
	case "bilinear", "bicubic", "lanczos4":
	default:
		return fmt.Errorf("polar_config.algorithm=%q: %w", c.Polar.Algorithm, ErrInvalidAlgorithm)
	}
	if c.Postprocessing.NMSLevel < 0 || c.Postprocessing.NMSLevel > 1 {
		return fmt.Errorf("postprocessing_config.nms_level must be in [0,1], got %g", c.Postprocessing.NMSLevel)
	}
	if c.Postprocessing.ScoreLevel < 0 || c.Postprocessing.ScoreLevel > 1 {
		return fmt.Errorf("postprocessing_config.score_level must be in [0,1], got %g", c.Postprocessing.ScoreLevel)
	}
	return nil
}

// InputDir returns the directory the scanner walks for raw frames. With
// job_config.local_env set, data_dir/folder_name is used directly; otherwise
// frames live under data_dir/raw/folder_name.
func (c *Config) InputDir() string {
	if c.Job.LocalEnv {
		return c.Job.DataDir + "/" + c.Job.FolderName
	}
	return c.Job.DataDir + "/raw/" + c.Job.FolderName
}

// OutputDir returns the directory the writer places the container file in.
func (c *Config) OutputDir() string {
	return c.Job.DataDir + "/processed"
}
