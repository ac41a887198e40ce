package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shandysiswandi/gostage/internal/ingest/entity"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgerror"
	"github.com/shandysiswandi/gostage/internal/pkg/pkglog"
	"github.com/shandysiswandi/gostage/internal/pkg/pkguid"
	"golang.org/x/sync/singleflight"
)

type Store interface {
	Admit(ctx context.Context, plan func(current []entity.StagedFile) []entity.StagedFile) ([]entity.StagedFile, error)
	Get(ctx context.Context, id string) (entity.StagedFile, error)
	List(ctx context.Context) []entity.StagedFile
	Update(ctx context.Context, id string, generation int64, fn func(f *entity.StagedFile) error) (entity.StagedFile, error)
	Claim(ctx context.Context, plan func(current []entity.StagedFile) ([]string, error)) ([]entity.StagedFile, error)
	SetProgress(ctx context.Context, id string, generation int64, pct float64) (float64, error)
	Remove(ctx context.Context, id string) (entity.Removal, error)
	RemoveMatching(ctx context.Context, match func(f entity.StagedFile) bool) entity.Removal
	Clear(ctx context.Context) entity.Removal
	Select(ctx context.Context, id string) error
	OpenEditor(ctx context.Context, id string) error
	Selection(ctx context.Context) entity.Selection
	Len(ctx context.Context) int
}

// Matcher guesses metadata from a filename.
type Matcher interface {
	FindMatch(ctx context.Context, filename string) (*entity.PartialMetadata, error)
}

type SchemaDetector interface {
	DetectSchema(ctx context.Context, name string, content entity.Content) (*entity.Schema, error)
}

// Uploader writes one file to the storage backend, reporting percentages as
// bytes are sent.
type Uploader interface {
	Upload(ctx context.Context, req entity.UploadRequest, onProgress func(pct float64)) error
}

type Catalog interface {
	Datasets(ctx context.Context) []entity.Dataset
	Refresh(ctx context.Context) ([]entity.Dataset, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event entity.Event) error
}

type Runner interface {
	Go(ctx context.Context, f func(ctx context.Context) error) error
}

type Clock interface {
	Now() time.Time
}

// ProgressObserver is told about every upload of a commit.
type ProgressObserver interface {
	UploadStarted(file entity.StagedFile)
	UploadProgress(fileID string, pct float64)
	UploadSettled(fileID string, err error)
}

type Dependency struct {
	Store      Store
	Matcher    Matcher
	Detector   SchemaDetector
	Uploader   Uploader
	Catalog    Catalog
	Events     EventPublisher
	Runner     Runner
	Clock      Clock
	Observer   ProgressObserver
	ID         pkguid.StringID
	Generation pkguid.NumberID
	Limits     Limits
	RootCtx    context.Context
}

type Usecase struct {
	store      Store
	matcher    Matcher
	detector   SchemaDetector
	uploader   Uploader
	catalog    Catalog
	events     EventPublisher
	runner     Runner
	clock      Clock
	observer   ProgressObserver
	id         pkguid.StringID
	generation pkguid.NumberID
	limits     Limits
	rootCtx    context.Context

	schemaFlight singleflight.Group

	commitMu   sync.Mutex
	committing bool
}

func New(dep Dependency) *Usecase {
	root := dep.RootCtx
	if root == nil {
		root = context.Background()
	}

	clock := dep.Clock
	if clock == nil {
		clock = realClock{}
	}

	limits := dep.Limits
	if limits.MaxFiles < 1 {
		limits.MaxFiles = DefaultMaxFiles
	}
	if limits.MaxFileBytes < 1 {
		limits.MaxFileBytes = DefaultMaxFileBytes
	}
	if limits.UploadConcurrency < 1 {
		limits.UploadConcurrency = limits.MaxFiles
	}

	observer := dep.Observer
	if observer == nil {
		observer = noopObserver{}
	}

	return &Usecase{
		store:      dep.Store,
		matcher:    dep.Matcher,
		detector:   dep.Detector,
		uploader:   dep.Uploader,
		catalog:    dep.Catalog,
		events:     dep.Events,
		runner:     dep.Runner,
		clock:      clock,
		observer:   observer,
		id:         dep.ID,
		generation: dep.Generation,
		limits:     limits,
		rootCtx:    root,
	}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

type noopObserver struct{}

func (noopObserver) UploadStarted(entity.StagedFile) {}

func (noopObserver) UploadProgress(string, float64) {}

func (noopObserver) UploadSettled(string, error) {}

// Limits returns the batch ceilings presented to users before admission.
func (u *Usecase) Limits() Limits {
	return u.limits
}

func (u *Usecase) Files(ctx context.Context) []entity.StagedFile {
	return u.store.List(ctx)
}

func (u *Usecase) File(ctx context.Context, id string) (entity.StagedFile, error) {
	f, err := u.store.Get(ctx, id)
	if err != nil {
		return entity.StagedFile{}, mapStoreErr(err)
	}
	return f, nil
}

// Remove drops a staged file. Results still in flight for it are discarded
// when they arrive.
func (u *Usecase) Remove(ctx context.Context, id string) error {
	removal, err := u.store.Remove(ctx, id)
	if err != nil {
		return mapStoreErr(err)
	}

	u.release(ctx, removal)
	return nil
}

// Clear empties the batch.
func (u *Usecase) Clear(ctx context.Context) int {
	removal := u.store.Clear(ctx)
	u.release(ctx, removal)
	return len(removal.Files)
}

func (u *Usecase) Datasets(ctx context.Context) []entity.Dataset {
	if u.catalog == nil {
		return []entity.Dataset{}
	}
	return u.catalog.Datasets(ctx)
}

func (u *Usecase) RefreshDatasets(ctx context.Context) ([]entity.Dataset, error) {
	if u.catalog == nil {
		return []entity.Dataset{}, nil
	}

	datasets, err := u.catalog.Refresh(ctx)
	if err != nil {
		return datasets, pkgerror.NewUpstream(err, "failed to load datasets")
	}
	return datasets, nil
}

func (u *Usecase) release(ctx context.Context, removal entity.Removal) {
	discardContent(ctx, removal.Files)
	if removal.SelectionCleared {
		u.publish(ctx, entity.EventSelectionCleared, nil, "the selected file was removed")
	}
}

func discardContent(ctx context.Context, files []entity.StagedFile) {
	for _, f := range files {
		d, ok := f.Content.(entity.Discarder)
		if !ok {
			continue
		}
		if err := d.Discard(); err != nil {
			slog.WarnContext(ctx, "failed to discard file content", "file", f.Name, "error", err)
		}
	}
}

func (u *Usecase) publish(ctx context.Context, kind entity.EventKind, files []string, msg string) {
	if u.events == nil {
		return
	}

	event := entity.Event{
		Kind:     kind,
		CommitID: pkglog.GetCommitID(ctx),
		Files:    files,
		Message:  msg,
		At:       u.clock.Now(),
	}
	if u.id != nil {
		event.ID = u.id.Generate()
	}

	if err := u.events.Publish(ctx, event); err != nil {
		slog.WarnContext(ctx, "failed to publish event", "kind", kind, "event_id", event.ID, "error", err)
	}
}

func mapStoreErr(err error) error {
	switch {
	case errors.Is(err, entity.ErrFileNotFound):
		return pkgerror.NewBusiness("file not found", pkgerror.CodeNotFound)
	case errors.Is(err, entity.ErrStaleResult):
		return pkgerror.NewBusiness("file changed while the request was in flight", pkgerror.CodeConflict)
	case errors.Is(err, entity.ErrNotEditable):
		return pkgerror.NewBusiness(entity.ErrNotEditable.Error(), pkgerror.CodeConflict)
	case errors.Is(err, entity.ErrIllegalTransition):
		return pkgerror.NewBusiness("file is not in a state that allows this", pkgerror.CodeConflict)
	}
	return normalizeErr(err)
}

func normalizeErr(err error) error {
	var perr *pkgerror.Error
	if errors.As(err, &perr) {
		return perr
	}
	return pkgerror.NewServer(err)
}
