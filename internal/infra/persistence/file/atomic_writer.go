package file

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
)

// writeAtomic streams data into path using temp file + rename, so the file
// is either fully written or not written at all. Returns the byte count.
func writeAtomic(fs afero.Fs, path string, r io.Reader) (int64, error) {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create directory %s: %w", dir, err)
	}

	// Temp file in the same directory so the rename stays atomic
	tmpFile, err := afero.TempFile(fs, dir, ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		// Remove the temp file if it still exists after an error
		fs.Remove(tmpPath)
	}()

	n, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return 0, fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}

	if err := fs.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("rename temp file to %s: %w", path, err)
	}

	return n, nil
}
