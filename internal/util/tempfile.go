package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// EnsureDirectoryWritable verifies that path exists, is a directory, and
// accepts a test file write.
func EnsureDirectoryWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("directory %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}

	probe, err := CreateTempFile(path, ".writetest", "tmp")
	if err != nil {
		return fmt.Errorf("directory %s is not writable: %w", path, err)
	}
	return probe.Cleanup()
}

// TempDir wraps a created temporary directory with explicit cleanup.
type TempDir struct {
	path string
}

func (d *TempDir) Path() string { return d.path }

func (d *TempDir) Cleanup() error {
	return os.RemoveAll(d.path)
}

// CreateTempDir creates a uniquely named directory under baseDir with the
// given prefix.
func CreateTempDir(baseDir, prefix string) (*TempDir, error) {
	suffix, err := generateRandomString(8)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(baseDir, prefix+"_"+suffix)
	if err := os.Mkdir(path, 0755); err != nil {
		return nil, err
	}
	return &TempDir{path: path}, nil
}

// TempFile wraps a created temporary file with explicit cleanup.
type TempFile struct {
	path string
	file *os.File
}

func (f *TempFile) Cleanup() error {
	if f.file != nil {
		_ = f.file.Close()
	}
	return os.Remove(f.path)
}

// CreateTempFile creates and opens a uniquely named file under baseDir.
func CreateTempFile(baseDir, prefix, ext string) (*TempFile, error) {
	path, err := CreateTempFilePath(baseDir, prefix, ext)
	if err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &TempFile{path: path, file: f}, nil
}

// CreateTempFilePath reserves a unique path under baseDir without creating
// the file, for callers that hand the path to an external writer.
func CreateTempFilePath(baseDir, prefix, ext string) (string, error) {
	suffix, err := generateRandomString(8)
	if err != nil {
		return "", err
	}
	name := prefix + "_" + suffix
	if ext != "" {
		name += "." + ext
	}
	return filepath.Join(baseDir, name), nil
}

// CleanupStaleTempFiles removes files under dir whose name starts with
// prefix and whose age exceeds maxAge, returning the count removed.
// Used on startup to clear abandoned staging files from a killed run.
func CleanupStaleTempFiles(dir, prefix string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	now := time.Now()
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasPrefix(entry.Name(), prefix+"_") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// GetAvailableSpace returns free bytes on the filesystem containing path,
// or 0 if it cannot be determined.
func GetAvailableSpace(path string) uint64 {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0
	}
	return stat.Bavail * uint64(stat.Bsize)
}

// CheckDiskSpace logs a warning via logf (if non-nil) when available space
// on path drops below a conservative threshold. Returns the available bytes.
func CheckDiskSpace(path string, logf func(format string, args ...any)) uint64 {
	const lowSpaceThreshold = 1 * GiB

	available := GetAvailableSpace(path)
	if available > 0 && available < lowSpaceThreshold && logf != nil {
		logf("low disk space on %s: %s available", path, FormatBytes(available))
	}
	return available
}

func generateRandomString(n int) (string, error) {
	buf := make([]byte, (n+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf)[:n], nil
}
