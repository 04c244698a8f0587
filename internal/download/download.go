// Package download writes fetched videos to local disk. Output paths are
// validated against directory traversal and files appear atomically.
package download

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"nomark/internal/httputil"
	xlog "nomark/internal/log"
	"nomark/internal/media"
)

// Save writes result into outputDir on fs under its suggested filename and
// returns the final path. An existing file with the same name is replaced.
func Save(fs afero.Fs, result media.ProviderResult, outputDir string) (string, error) {
	if len(result.Body) == 0 {
		return "", fmt.Errorf("refusing to write empty video")
	}

	absDir, err := filepath.Abs(outputDir)
	if err != nil {
		return "", fmt.Errorf("resolving output directory: %w", err)
	}
	if err := fs.MkdirAll(absDir, 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	outputPath, err := httputil.SafeDownloadPath(absDir, result.SuggestedFilename)
	if err != nil {
		return "", fmt.Errorf("invalid output path: %w", err)
	}

	if err := writeAtomic(fs, outputPath, result.Body); err != nil {
		return "", err
	}

	logger := xlog.WithComponent("download")
	logger.Info().
		Str(xlog.FieldPath, outputPath).
		Str(xlog.FieldProvider, result.Provider).
		Int(xlog.FieldBytes, len(result.Body)).
		Msg("saved video")
	return outputPath, nil
}

// writeAtomic writes data to a temp file in the target directory, then
// renames it over path.
func writeAtomic(fs afero.Fs, path string, data []byte) error {
	tmp, err := afero.TempFile(fs, filepath.Dir(path), ".nomark-*.part")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		fs.Remove(tmpPath)
		return fmt.Errorf("writing video: %w", err)
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := fs.Chmod(tmpPath, 0644); err != nil {
		fs.Remove(tmpPath)
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := fs.Rename(tmpPath, path); err != nil {
		fs.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
