package store

import (
	"context"
	"sync"

	"github.com/shandysiswandi/gostage/internal/ingest/entity"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgerror"
)

// InMemoryStore is the ordered batch of staged files. Every mutation runs in
// one critical section and records are cloned on the way in and out.
type InMemoryStore struct {
	mu        sync.Mutex
	order     []string
	files     map[string]*entity.StagedFile
	selection entity.Selection

	maxFiles     int
	maxFileBytes int64
}

func NewInMemoryStore(maxFiles int, maxFileBytes int64) *InMemoryStore {
	return &InMemoryStore{
		files:        make(map[string]*entity.StagedFile),
		maxFiles:     maxFiles,
		maxFileBytes: maxFileBytes,
	}
}

// Admit runs plan against a snapshot of the batch and inserts whatever it
// returns, all under the store lock, so admission checks never race.
func (s *InMemoryStore) Admit(ctx context.Context, plan func(current []entity.StagedFile) []entity.StagedFile) ([]entity.StagedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accepted := plan(s.snapshot())
	if len(accepted) == 0 {
		return nil, nil
	}

	if s.maxFiles > 0 && len(s.order)+len(accepted) > s.maxFiles {
		return nil, pkgerror.NewBusiness("batch file limit exceeded", pkgerror.CodeConflict)
	}

	seen := make(map[string]struct{}, len(accepted))
	for _, f := range accepted {
		if _, exists := s.files[f.ID]; exists {
			return nil, pkgerror.NewBusiness("file already staged", pkgerror.CodeConflict)
		}
		if _, dup := seen[f.ID]; dup {
			return nil, pkgerror.NewBusiness("file already staged", pkgerror.CodeConflict)
		}
		if s.maxFileBytes > 0 && f.Size > s.maxFileBytes {
			return nil, pkgerror.NewBusiness("file size limit exceeded", pkgerror.CodeTooLarge)
		}
		seen[f.ID] = struct{}{}
	}

	out := make([]entity.StagedFile, 0, len(accepted))
	for _, f := range accepted {
		rec := f.Clone()
		s.files[f.ID] = &rec
		s.order = append(s.order, f.ID)
		out = append(out, rec.Clone())
	}

	return out, nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (entity.StagedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.files[id]
	if !ok {
		return entity.StagedFile{}, entity.ErrFileNotFound
	}
	return rec.Clone(), nil
}

// List returns the batch in admission order.
func (s *InMemoryStore) List(ctx context.Context) []entity.StagedFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snapshot()
}

// Update applies fn to a copy of the record and stores the copy when fn
// succeeds. A non-zero generation must match the stored one. Status changes
// made by fn must follow the transition table.
func (s *InMemoryStore) Update(ctx context.Context, id string, generation int64, fn func(f *entity.StagedFile) error) (entity.StagedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(id, generation)
	if err != nil {
		return entity.StagedFile{}, err
	}

	next := rec.Clone()
	if err := fn(&next); err != nil {
		return entity.StagedFile{}, err
	}

	next.ID = rec.ID
	next.Generation = rec.Generation
	if next.Status != rec.Status && !rec.Status.CanTransition(next.Status) {
		return entity.StagedFile{}, entity.ErrIllegalTransition
	}

	stored := next.Clone()
	s.files[id] = &stored
	return next, nil
}

// Claim runs plan against a snapshot of the batch and moves every id it
// returns to Uploading with progress 0, all under the store lock. Nothing
// changes when plan fails or any id cannot start uploading.
func (s *InMemoryStore) Claim(ctx context.Context, plan func(current []entity.StagedFile) ([]string, error)) ([]entity.StagedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := plan(s.snapshot())
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		rec, ok := s.files[id]
		if !ok {
			return nil, entity.ErrFileNotFound
		}
		if !rec.Status.CanTransition(entity.StatusUploading) {
			return nil, entity.ErrIllegalTransition
		}
	}

	out := make([]entity.StagedFile, 0, len(ids))
	for _, id := range ids {
		next := s.files[id].Clone()
		next.Status = entity.StatusUploading
		next.Progress = entity.Ptr(0.0)
		next.Err = ""
		s.files[id] = &next
		out = append(out, next.Clone())
	}
	return out, nil
}

// SetProgress records an upload tick and returns the stored value. Values are
// clamped to [0,100] and never move backwards within an attempt.
func (s *InMemoryStore) SetProgress(ctx context.Context, id string, generation int64, pct float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(id, generation)
	if err != nil {
		return 0, err
	}
	if rec.Status != entity.StatusUploading {
		return 0, entity.ErrStaleResult
	}

	pct = min(max(pct, 0), 100)
	if rec.Progress != nil && pct <= *rec.Progress {
		return *rec.Progress, nil
	}

	next := rec.Clone()
	next.Progress = &pct
	s.files[id] = &next
	return pct, nil
}

func (s *InMemoryStore) Remove(ctx context.Context, id string) (entity.Removal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return entity.Removal{}, entity.ErrFileNotFound
	}

	return s.removeWhere(func(f *entity.StagedFile) bool { return f.ID == id }), nil
}

// RemoveMatching drops every record for which match returns true.
func (s *InMemoryStore) RemoveMatching(ctx context.Context, match func(f entity.StagedFile) bool) entity.Removal {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.removeWhere(func(f *entity.StagedFile) bool { return match(f.Clone()) })
}

func (s *InMemoryStore) Clear(ctx context.Context) entity.Removal {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.removeWhere(func(*entity.StagedFile) bool { return true })
}

// Select makes id the selected file with the schema editor closed.
func (s *InMemoryStore) Select(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return entity.ErrFileNotFound
	}
	s.selection = entity.Selection{FileID: id}
	return nil
}

// OpenEditor marks the schema editor open when id is still the selection.
func (s *InMemoryStore) OpenEditor(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return entity.ErrFileNotFound
	}
	if s.selection.FileID != id {
		return entity.ErrStaleResult
	}
	s.selection.EditorOpen = true
	return nil
}

func (s *InMemoryStore) Selection(ctx context.Context) entity.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.selection
}

func (s *InMemoryStore) Len(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.order)
}

func (s *InMemoryStore) lookup(id string, generation int64) (*entity.StagedFile, error) {
	rec, ok := s.files[id]
	if !ok {
		return nil, entity.ErrFileNotFound
	}
	if generation != 0 && rec.Generation != generation {
		return nil, entity.ErrStaleResult
	}
	return rec, nil
}

func (s *InMemoryStore) removeWhere(match func(f *entity.StagedFile) bool) entity.Removal {
	var removal entity.Removal
	kept := s.order[:0]
	for _, id := range s.order {
		rec := s.files[id]
		if !match(rec) {
			kept = append(kept, id)
			continue
		}

		removal.Files = append(removal.Files, rec.Clone())
		delete(s.files, id)
		if s.selection.FileID == id {
			s.selection = entity.Selection{}
			removal.SelectionCleared = true
		}
	}

	clear(s.order[len(kept):])
	s.order = kept
	return removal
}

func (s *InMemoryStore) snapshot() []entity.StagedFile {
	out := make([]entity.StagedFile, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.files[id].Clone())
	}
	return out
}
