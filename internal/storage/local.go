package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrMirrorNotConfigured is returned when Mirror is called without S3.
var ErrMirrorNotConfigured = errors.New("storage: S3 mirror is not configured")

// LocalStorage implements the Storage interface using local disk.
// Files are named generated_<unixMillis>.<ext>; the millisecond stamp is
// bumped when two outputs are reserved within the same millisecond.
type LocalStorage struct {
	outputDir string
	baseURL   string
	now       func() time.Time

	mu         sync.Mutex
	lastMillis int64
}

// NewLocalStorage creates a new LocalStorage instance.
// The outputDir parameter specifies where generated files are written and
// is created if it doesn't exist. If outputDir is empty, ./generated is used.
// baseURL is the public server URL; files are served under /generated/.
func NewLocalStorage(outputDir, baseURL string) (*LocalStorage, error) {
	if outputDir == "" {
		outputDir = "generated"
	}

	abs, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output directory: %w", err)
	}

	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	return &LocalStorage{
		outputDir: abs,
		baseURL:   strings.TrimRight(baseURL, "/"),
		now:       time.Now,
	}, nil
}

// OutputDir returns the output directory path.
func (s *LocalStorage) OutputDir() string {
	return s.outputDir
}

// NewOutputPath reserves a unique generated_<unixMillis>.<ext> name.
func (s *LocalStorage) NewOutputPath(ext string) (string, string) {
	s.mu.Lock()
	millis := s.now().UnixMilli()
	if millis <= s.lastMillis {
		millis = s.lastMillis + 1
	}
	s.lastMillis = millis
	s.mu.Unlock()

	name := fmt.Sprintf("generated_%d.%s", millis, strings.TrimPrefix(ext, "."))
	return name, filepath.Join(s.outputDir, name)
}

// Write stores data at path through a temporary file in the same directory.
func (s *LocalStorage) Write(ctx context.Context, path string, data io.Reader) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".write_*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write output file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close output file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("move output file: %w", err)
	}

	return nil
}

// PublicURL returns {baseURL}/generated/<name>.
func (s *LocalStorage) PublicURL(name string) string {
	return s.baseURL + "/generated/" + name
}

// Mirror is not supported by LocalStorage and returns ErrMirrorNotConfigured.
func (s *LocalStorage) Mirror(_ context.Context, _, _ string) (string, error) {
	return "", ErrMirrorNotConfigured
}

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)
