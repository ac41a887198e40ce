// Package dropzone stages files that appear in a watched directory.
package dropzone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/shandysiswandi/gostage/internal/ingest/entity"
	"github.com/shandysiswandi/gostage/internal/ingest/store"
	"github.com/shandysiswandi/gostage/internal/ingest/usecase"
)

const DefaultSettle = 500 * time.Millisecond

type Admitter interface {
	Admit(ctx context.Context, incoming []entity.IncomingFile) (usecase.AdmitResult, error)
}

type Config struct {
	Dir string
	// Settle is how long the directory must stay quiet before the files that
	// changed are offered as one batch.
	Settle time.Duration
}

type stamp struct {
	size    int64
	modTime time.Time
}

// Watcher offers new or rewritten files in Dir to the batch. Files stay on
// disk; the batch only reads them.
type Watcher struct {
	fs      *fsnotify.Watcher
	dir     string
	settle  time.Duration
	admit   Admitter
	pending map[string]struct{}
	offered map[string]stamp

	// OnAdmit, if set, receives the outcome of every offer.
	OnAdmit func(res usecase.AdmitResult, err error)
}

func NewWatcher(cfg Config, admit Admitter) (*Watcher, error) {
	if admit == nil {
		return nil, errors.New("dropzone needs an admitter")
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	settle := cfg.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}

	return &Watcher{
		fs:      fsWatcher,
		dir:     dir,
		settle:  settle,
		admit:   admit,
		pending: make(map[string]struct{}),
		offered: make(map[string]stamp),
	}, nil
}

// Run offers the files already present, then every later change. It blocks
// until ctx is done and closes the watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}
	for _, e := range entries {
		w.pending[filepath.Join(w.dir, e.Name())] = struct{}{}
	}
	w.flush(ctx)

	var settle <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.pending[event.Name] = struct{}{}
			settle = time.After(w.settle)

		case <-settle:
			settle = nil
			w.flush(ctx)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "dropzone watcher error", "dir", w.dir, "error", err)
		}
	}
}

func (w *Watcher) flush(ctx context.Context) {
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	clear(w.pending)
	sort.Strings(paths)

	var incoming []entity.IncomingFile
	offered := make(map[string]stamp)
	for _, p := range paths {
		if strings.HasPrefix(filepath.Base(p), ".") {
			continue
		}

		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		st := stamp{size: info.Size(), modTime: info.ModTime()}
		if prev, ok := w.offered[p]; ok && prev == st {
			continue
		}
		offered[p] = st

		incoming = append(incoming, entity.IncomingFile{
			Name:    filepath.Base(p),
			Size:    info.Size(),
			Content: store.NewFileContent(p),
		})
	}
	if len(incoming) == 0 {
		return
	}

	res, err := w.admit.Admit(ctx, incoming)
	switch {
	case err != nil:
		slog.WarnContext(ctx, "dropzone offer refused", "dir", w.dir, "files", len(incoming), "error", err)
	case res.Rejected != nil:
		slog.InfoContext(ctx, "dropzone offer partly admitted", "admitted", len(res.Admitted), "rejected", res.Rejected.Files())
	default:
		slog.InfoContext(ctx, "dropzone files staged", "admitted", len(res.Admitted))
	}

	admitted := make(map[string]struct{}, len(res.Admitted))
	if err == nil {
		for _, f := range res.Admitted {
			admitted[f.Name] = struct{}{}
		}
	}
	// Refused files wait in pending for the next offer.
	for p, st := range offered {
		if _, ok := admitted[filepath.Base(p)]; ok {
			w.offered[p] = st
			continue
		}
		w.pending[p] = struct{}{}
	}

	if w.OnAdmit != nil {
		w.OnAdmit(res, err)
	}
}
