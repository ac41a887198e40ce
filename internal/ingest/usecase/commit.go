package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shandysiswandi/gostage/internal/ingest/entity"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgerror"
	"github.com/shandysiswandi/gostage/internal/pkg/pkglog"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgtrace"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

type commitRun struct {
	id      string
	targets []entity.StagedFile
	skipped []string
}

type uploadOutcome struct {
	file      entity.StagedFile
	err       error
	discarded bool
}

// Commit checks the batch and uploads every Ready or Failed file, blocking
// until all uploads settle.
func (u *Usecase) Commit(ctx context.Context) (CommitResult, error) {
	run, err := u.beginCommit(ctx)
	if err != nil {
		return CommitResult{}, err
	}

	return u.runCommit(ctx, run), nil
}

// StartCommit checks the batch synchronously and uploads in the background.
func (u *Usecase) StartCommit(ctx context.Context) (CommitAccepted, error) {
	run, err := u.beginCommit(ctx)
	if err != nil {
		return CommitAccepted{}, err
	}

	err = u.runner.Go(u.rootCtx, func(ctx context.Context) error {
		res := u.runCommit(ctx, run)
		if !res.Succeeded() {
			return fmt.Errorf("commit %s: %d of %d uploads failed", res.CommitID, len(res.Failed), len(run.targets))
		}
		return nil
	})
	if err != nil {
		u.abandonCommit(ctx, run, err)
		return CommitAccepted{}, pkgerror.NewServer(err)
	}

	files := make([]string, 0, len(run.targets))
	for _, f := range run.targets {
		files = append(files, f.Name)
	}

	return CommitAccepted{CommitID: run.id, Files: files, Skipped: run.skipped}, nil
}

// beginCommit checks the batch and claims every Ready or Failed file in one
// store step, so the claimed files refuse edits until their upload settles.
func (u *Usecase) beginCommit(ctx context.Context) (commitRun, error) {
	if u.store == nil || u.uploader == nil || u.runner == nil {
		return commitRun{}, pkgerror.NewServer(errors.New("missing dependency"))
	}

	u.commitMu.Lock()
	defer u.commitMu.Unlock()

	if u.committing {
		return commitRun{}, pkgerror.NewBusiness(entity.ErrCommitInProgress.Error(), pkgerror.CodeConflict)
	}

	var skipped []string
	claimed, err := u.store.Claim(ctx, func(files []entity.StagedFile) ([]string, error) {
		if len(files) == 0 {
			return nil, entity.ErrEmptyBatch
		}
		if problems := commitProblems(files); len(problems) > 0 {
			return nil, &entity.IncompleteMetadataError{Missing: problems}
		}

		skipped = skipped[:0]
		var ids []string
		for _, f := range files {
			switch f.Status {
			case entity.StatusReady, entity.StatusFailed:
				ids = append(ids, f.ID)
			case entity.StatusCommitted:
				skipped = append(skipped, f.Name)
			}
		}
		return ids, nil
	})

	var ime *entity.IncompleteMetadataError
	switch {
	case errors.Is(err, entity.ErrEmptyBatch):
		u.publish(ctx, entity.EventCommitRefused, nil, entity.ErrEmptyBatch.Error())
		return commitRun{}, pkgerror.NewBusiness(entity.ErrEmptyBatch.Error(), pkgerror.CodeInvalidInput)
	case errors.As(err, &ime):
		u.publish(ctx, entity.EventCommitRefused, ime.Files(), ime.Error())
		return commitRun{}, pkgerror.WrapBusiness(ime, "metadata is incomplete", pkgerror.CodeInvalidInput)
	case err != nil:
		return commitRun{}, mapStoreErr(err)
	}

	run := commitRun{targets: claimed, skipped: skipped}
	if u.id != nil {
		run.id = u.id.Generate()
	}

	u.committing = true
	return run, nil
}

// abandonCommit fails the claimed files of a run that never started.
func (u *Usecase) abandonCommit(ctx context.Context, run commitRun, cause error) {
	for _, f := range run.targets {
		_, err := u.store.Update(ctx, f.ID, f.Generation, func(cur *entity.StagedFile) error {
			if cur.Status != entity.StatusUploading {
				return entity.ErrStaleResult
			}
			cur.Status = entity.StatusFailed
			cur.Err = cause.Error()
			return nil
		})
		if err != nil {
			slog.DebugContext(ctx, "abandoned file already left the batch", "file", f.Name, "error", err)
		}
	}
	u.endCommit()
}

func (u *Usecase) endCommit() {
	u.commitMu.Lock()
	u.committing = false
	u.commitMu.Unlock()
}

func (u *Usecase) runCommit(ctx context.Context, run commitRun) CommitResult {
	defer u.endCommit()

	ctx = pkglog.SetCommitID(ctx, run.id)
	ctx, span := pkgtrace.Start(ctx, "ingest.Commit",
		attribute.String("commit.id", run.id),
		attribute.Int("commit.files", len(run.targets)),
	)

	slog.InfoContext(ctx, "commit started", "files", len(run.targets), "skipped", len(run.skipped))

	outcomes := make([]uploadOutcome, len(run.targets))
	g := new(errgroup.Group)
	g.SetLimit(u.limits.UploadConcurrency)
	for i, f := range run.targets {
		i, f := i, f
		g.Go(func() error {
			outcomes[i] = u.uploadOne(ctx, f)
			return nil
		})
	}
	_ = g.Wait()

	res := CommitResult{CommitID: run.id, Skipped: run.skipped, Failed: map[string]string{}}
	for _, o := range outcomes {
		switch {
		case o.discarded:
		case o.err != nil:
			res.Failed[o.file.Name] = o.err.Error()
		default:
			res.Committed = append(res.Committed, o.file.Name)
		}
	}

	if res.Succeeded() {
		removal := u.store.RemoveMatching(ctx, func(f entity.StagedFile) bool {
			return f.Status == entity.StatusCommitted
		})
		discardContent(ctx, removal.Files)
		if removal.SelectionCleared {
			u.publish(ctx, entity.EventSelectionCleared, nil, "selection cleared after commit")
		}
		res.Cleared = u.store.Len(ctx) == 0

		slog.InfoContext(ctx, "commit succeeded", "committed", len(res.Committed))
		u.publish(ctx, entity.EventCommitSucceeded, res.Committed,
			fmt.Sprintf("all %d files uploaded", len(res.Committed)))
		pkgtrace.End(span, nil)
		return res
	}

	failed := make([]string, 0, len(res.Failed))
	for _, o := range outcomes {
		if _, ok := res.Failed[o.file.Name]; ok && !o.discarded {
			failed = append(failed, o.file.Name)
		}
	}

	err := fmt.Errorf("upload failed for %s", strings.Join(failed, ", "))
	slog.WarnContext(ctx, "commit partially failed", "committed", len(res.Committed), "failed", failed)
	u.publish(ctx, entity.EventCommitPartiallyFailed, failed, err.Error())
	pkgtrace.End(span, err)

	return res
}

// uploadOne runs one upload attempt for a claimed file. The outcome is
// discarded when the file left the batch or was re-admitted meanwhile.
func (u *Usecase) uploadOne(ctx context.Context, f entity.StagedFile) uploadOutcome {
	var incomplete error
	started, err := u.store.Update(ctx, f.ID, f.Generation, func(cur *entity.StagedFile) error {
		if cur.Status != entity.StatusUploading {
			return entity.ErrStaleResult
		}
		if _, _, _, ok := cur.Metadata.Target(); !ok {
			incomplete = &entity.IncompleteMetadataError{Missing: map[string][]string{cur.Name: cur.Metadata.Missing()}}
			cur.Status = entity.StatusFailed
			cur.Err = incomplete.Error()
		}
		return nil
	})
	if err != nil {
		slog.DebugContext(ctx, "upload skipped", "file", f.Name, "error", err)
		return uploadOutcome{file: f, discarded: true}
	}

	u.observer.UploadStarted(started)
	if incomplete != nil {
		slog.WarnContext(ctx, "upload refused", "file", started.Name, "error", incomplete)
		u.observer.UploadSettled(f.ID, incomplete)
		return uploadOutcome{file: started, err: incomplete}
	}

	ctx, span := pkgtrace.Start(ctx, "ingest.Upload",
		attribute.String("file", started.Name),
		attribute.Int64("file.size", started.Size),
	)

	dataset, table, mode, _ := started.Metadata.Target()
	uploadErr := u.uploader.Upload(ctx, entity.UploadRequest{
		Name:      started.Name,
		Size:      started.Size,
		Content:   started.Content,
		Dataset:   dataset,
		Table:     table,
		WriteMode: mode,
		Schema:    started.Metadata.Schema.Clone(),
	}, func(pct float64) {
		if stored, err := u.store.SetProgress(ctx, f.ID, f.Generation, pct); err == nil {
			u.observer.UploadProgress(f.ID, stored)
		}
	})
	if uploadErr != nil {
		uploadErr = &entity.UploadFailedError{File: started.Name, Err: uploadErr}
	}
	pkgtrace.End(span, uploadErr)

	_, err = u.store.Update(ctx, f.ID, f.Generation, func(cur *entity.StagedFile) error {
		if uploadErr != nil {
			cur.Status = entity.StatusFailed
			cur.Err = errors.Unwrap(uploadErr).Error()
			return nil
		}
		cur.Status = entity.StatusCommitted
		cur.Progress = entity.Ptr(100.0)
		cur.Err = ""
		return nil
	})
	u.observer.UploadSettled(f.ID, uploadErr)

	if err != nil {
		slog.InfoContext(ctx, "discarded upload result for removed file", "file", f.Name, "error", err)
		return uploadOutcome{file: started, discarded: true}
	}

	if uploadErr != nil {
		slog.WarnContext(ctx, "upload failed", "file", started.Name, "error", uploadErr)
		return uploadOutcome{file: started, err: errors.Unwrap(uploadErr)}
	}

	slog.InfoContext(ctx, "upload committed", "file", started.Name, "bytes", started.Size)
	return uploadOutcome{file: started}
}
