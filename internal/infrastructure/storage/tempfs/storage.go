package tempfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kirillkom/pdf-summarizer/internal/core/domain"
	"github.com/kirillkom/pdf-summarizer/internal/core/ports"
)

type Storage struct {
	basePath string
	suffix   string
}

// New stores scoped files under basePath, or the OS temp dir when empty.
func New(basePath, suffix string) (*Storage, error) {
	if basePath == "" {
		basePath = os.TempDir()
	}
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, domain.WrapError(domain.ErrResource, "create temp dir", err)
	}
	return &Storage{basePath: basePath, suffix: suffix}, nil
}

// Materialize copies data into a fresh file. On any failure the partial file
// is already gone when Materialize returns.
func (s *Storage) Materialize(ctx context.Context, name string, data io.Reader) (ports.ScopedFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(s.basePath, "upload-*"+s.suffixFor(name))
	if err != nil {
		return nil, domain.WrapError(domain.ErrResource, "create temp file", err)
	}
	scoped := &File{path: f.Name()}

	_, copyErr := io.Copy(f, data)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		if releaseErr := scoped.Release(); releaseErr != nil {
			err = errors.Join(err, releaseErr)
		}
		return nil, domain.WrapError(domain.ErrResource, "write temp file", err)
	}
	return scoped, nil
}

func (s *Storage) suffixFor(name string) string {
	if s.suffix != "" {
		return s.suffix
	}
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) > 8 {
		return ""
	}
	return ext
}

// File is a path that is deleted exactly once.
type File struct {
	path string

	once sync.Once
	err  error
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Release() error {
	f.once.Do(func() {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.err = fmt.Errorf("remove %s: %w", f.path, err)
		}
	})
	return f.err
}
