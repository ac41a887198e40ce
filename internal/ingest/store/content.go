package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

var ErrContentDiscarded = errors.New("file content was discarded")

// FileContent is staged file content backed by a path on disk. Spooled
// content owns its temp file and removes it on Discard.
type FileContent struct {
	path  string
	owned bool

	mu        sync.Mutex
	discarded bool
}

// NewFileContent refers to a file the caller keeps ownership of.
func NewFileContent(path string) *FileContent {
	return &FileContent{path: path}
}

// Spool copies r into a new temp file under dir. Past limit bytes the rest of
// r is only counted, so the returned size is exact while the disk holds at
// most limit+1 bytes.
func Spool(dir string, r io.Reader, limit int64) (*FileContent, int64, error) {
	f, err := os.CreateTemp(dir, "gostage-*")
	if err != nil {
		return nil, 0, fmt.Errorf("create spool file: %w", err)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}

	n, err := io.Copy(f, src)
	if err == nil && limit > 0 && n > limit {
		var rest int64
		rest, err = io.Copy(io.Discard, r)
		n += rest
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return nil, 0, fmt.Errorf("spool file: %w", err)
	}

	return &FileContent{path: f.Name(), owned: true}, n, nil
}

func (c *FileContent) Path() string {
	return c.path
}

func (c *FileContent) Open() (io.ReadSeekCloser, error) {
	c.mu.Lock()
	discarded := c.discarded
	c.mu.Unlock()

	if discarded {
		return nil, ErrContentDiscarded
	}
	return os.Open(c.path)
}

func (c *FileContent) Discard() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.discarded {
		return nil
	}
	c.discarded = true

	if !c.owned {
		return nil
	}
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
