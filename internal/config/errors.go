// Package config provides the grouped, typed configuration tree for gixi
// and its lossless round trip to/from an INI file.
package config

import "errors"

// Sentinel errors for configuration validation.
var (
	// ErrInvalidSumImages indicates general.sum_images is less than 1.
	ErrInvalidSumImages = errors.New("sum_images must be at least 1")

	// ErrInvalidMaxBatch indicates parallel.max_batch is less than 1.
	ErrInvalidMaxBatch = errors.New("max_batch must be at least 1")

	// ErrInvalidAlgorithm indicates polar_config.algorithm is not recognized.
	ErrInvalidAlgorithm = errors.New("algorithm must be bilinear, bicubic, or lanczos4")
)
