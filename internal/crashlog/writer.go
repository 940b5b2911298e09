// Package crashlog implements the durable, append-only record of raw crash
// payloads.
package crashlog

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/JakeFAU/acra-collector/internal/metrics"
)

// Config captures the parameters for the crash log.
type Config struct {
	// Path is the log file; it is created on first append if missing.
	Path string `mapstructure:"crash_log"`
}

// Writer appends one payload per line to the crash log. Appends are
// serialized, so concurrent callers never interleave partial lines.
type Writer struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// New creates a Writer on fs, creating the parent directory when needed.
func New(cfg Config, fs afero.Fs) (*Writer, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("crash log path is required")
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." {
		exists, err := afero.DirExists(fs, dir)
		if err != nil {
			return nil, fmt.Errorf("failed to stat crash log directory: %w", err)
		}
		if !exists {
			if err := fs.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create crash log directory: %w", err)
			}
		}
	}

	return &Writer{fs: fs, path: cfg.Path}, nil
}

// Path returns the file the writer appends to.
func (w *Writer) Path() string {
	return w.path
}

// Append writes payload plus a trailing newline and syncs it to stable
// storage before returning.
func (w *Writer) Append(_ context.Context, payload []byte) error {
	line := make([]byte, 0, len(payload)+1)
	line = append(line, payload...)
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.fs.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open crash log: %w", err)
	}

	n, err := f.Write(line)
	if err == nil && n < len(line) {
		err = io.ErrShortWrite
	}
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("write crash log: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync crash log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close crash log: %w", err)
	}

	metrics.ObserveCrashLogAppend(len(line))
	return nil
}
