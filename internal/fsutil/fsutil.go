package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"gpucheck/internal/logging"
)

const (
	// DefaultDirPermissions is used when a report directory has to be created
	DefaultDirPermissions = 0o750
	// DefaultFilePermissions is the default permission for written reports
	DefaultFilePermissions = 0o600
)

// AtomicWriteFile writes data to a file atomically by first writing to a temp file
// in the same directory and then renaming it to the target path. Missing parent
// directories are created.
func AtomicWriteFile(path string, data []byte, perm os.FileMode, logger *logging.Logger) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		CloseWithError(tmp.Close, logger, tmpPath)
		removeTemp(tmpPath, logger)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		removeTemp(tmpPath, logger)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		removeTemp(tmpPath, logger)
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		removeTemp(tmpPath, logger)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

func removeTemp(path string, logger *logging.Logger) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("fsutil.cleanup.failed", "Failed to remove temp file", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}
}

// CloseWithError closes a resource and logs any error if a logger is provided.
// This is useful for defer statements where close errors should be handled.
func CloseWithError(closer func() error, logger *logging.Logger, resource string) {
	if err := closer(); err != nil {
		logger.Warn("fsutil.close.failed", fmt.Sprintf("Failed to close %s", resource), map[string]interface{}{
			"error": err.Error(),
		})
	}
}
