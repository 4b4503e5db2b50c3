package util

import (
	"os"
	"path/filepath"
	"strings"
)

// RawFrameExtensions is the list of supported raw detector frame extensions.
var RawFrameExtensions = map[string]bool{
	".tif":  true,
	".tiff": true,
	".cbf":  true,
	".edf":  true,
}

// IsRawFrame checks if the given path is a raw detector frame eligible for
// scanning: a supported extension whose stem does not contain "dark", so
// dark-current frames are never scanned.
func IsRawFrame(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !RawFrameExtensions[ext] {
		return false
	}

	stem := strings.ToLower(GetFileStem(path))
	return !strings.Contains(stem, "dark")
}

// GetFilename returns the filename from a path.
func GetFilename(path string) string {
	return filepath.Base(path)
}

// GetFileStem returns the filename without extension.
func GetFileStem(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext)
}

// GetFileSize returns the size of a file in bytes.
func GetFileSize(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()), nil
}

// EnsureDirectory creates a directory if it doesn't exist.
func EnsureDirectory(path string) error {
	return os.MkdirAll(path, 0755)
}

// DirectoryExists checks if a directory exists.
func DirectoryExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ResolveContainerPath determines the output container path for a run.
func ResolveContainerPath(scanDir, outputDir, targetOverride string) string {
	if targetOverride != "" {
		return filepath.Join(outputDir, targetOverride)
	}
	stem := GetFilename(filepath.Clean(scanDir))
	return filepath.Join(outputDir, stem+".gixi")
}

// OutputPathInfo contains resolved output path information.
type OutputPathInfo struct {
	// OutputDir is the directory where output files should be written.
	OutputDir string
	// FilenameOverride is set when the user names an explicit container file.
	FilenameOverride string
}

// ResolveOutputArg resolves the output argument into a directory and optional filename.
// When the output path has a .gixi extension it is treated as an explicit
// container filename. Otherwise it's treated as a directory.
func ResolveOutputArg(outputPath string) (OutputPathInfo, error) {
	ext := strings.ToLower(filepath.Ext(outputPath))

	if ext != "" {
		if ext != ".gixi" {
			return OutputPathInfo{}, os.ErrInvalid
		}

		parentDir := filepath.Dir(outputPath)
		if parentDir == "" {
			parentDir = "."
		}
		filename := filepath.Base(outputPath)

		return OutputPathInfo{
			OutputDir:        parentDir,
			FilenameOverride: filename,
		}, nil
	}

	return OutputPathInfo{
		OutputDir:        outputPath,
		FilenameOverride: "",
	}, nil
}
