package smoke

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"

	"gpucheck/internal/fsutil"
	"gpucheck/internal/logging"
)

const compressedSuffix = ".zst"

// ErrDigestMismatch is returned when a loaded report does not match its digest
var ErrDigestMismatch = errors.New("report digest mismatch")

// computeDigest returns the hex blake2b-256 of the report encoded without its digest
func computeDigest(report Report) (string, error) {
	report.Digest = ""
	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// SaveReport writes the report as indented JSON, zstd-compressed when the path ends in ".zst"
func SaveReport(report *Report, path string, logger *logging.Logger) error {
	digest, err := computeDigest(*report)
	if err != nil {
		return err
	}
	report.Digest = digest

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if strings.HasSuffix(path, compressedSuffix) {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		data = enc.EncodeAll(data, nil)
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to close zstd encoder: %w", err)
		}
	}

	if err := fsutil.AtomicWriteFile(path, data, fsutil.DefaultFilePermissions, logger); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}

	logger.Info("smoke.report.saved", "Run report saved", map[string]interface{}{
		"filepath": path,
		"digest":   digest,
	})
	return nil
}

// LoadReport reads a report written by SaveReport and checks its digest
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	if strings.HasSuffix(path, compressedSuffix) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		defer dec.Close()
		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress report: %w", err)
		}
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	want, err := computeDigest(report)
	if err != nil {
		return nil, err
	}
	if report.Digest != want {
		return &report, fmt.Errorf("%w: have %s, computed %s", ErrDigestMismatch, report.Digest, want)
	}

	return &report, nil
}
