package store

import (
	"os"
	"path/filepath"

	"github.com/rendis/diagrama/pkg/schema"
)

// ReadDocumentFile reads a diagram file from disk.
func ReadDocumentFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeIO, "read %s", path).WithCause(err)
	}
	return data, nil
}

// WriteDocumentFile writes data next to path and renames it into place, so a
// failed save never leaves a truncated diagram behind.
func WriteDocumentFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return schema.NewErrorf(schema.ErrCodeIO, "create %s", dir).WithCause(err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeIO, "write %s", path).WithCause(err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return schema.NewErrorf(schema.ErrCodeIO, "write %s", path).WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return schema.NewErrorf(schema.ErrCodeIO, "write %s", path).WithCause(err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return schema.NewErrorf(schema.ErrCodeIO, "write %s", path).WithCause(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return schema.NewErrorf(schema.ErrCodeIO, "rename into %s", path).WithCause(err)
	}
	return nil
}
