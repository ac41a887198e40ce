package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shandysiswandi/gostage/internal/ingest/entity"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgerror"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgtrace"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Admit validates an offer of files, stages the ones that pass and starts
// enriching them in the background. Rejected files are reported, never
// dropped silently. The error is set only when nothing was admitted.
func (u *Usecase) Admit(ctx context.Context, incoming []entity.IncomingFile) (AdmitResult, error) {
	if u.store == nil || u.generation == nil || u.runner == nil {
		return AdmitResult{}, pkgerror.NewServer(errors.New("missing dependency"))
	}
	if len(incoming) == 0 {
		return AdmitResult{}, pkgerror.NewInvalidInput(errors.New("no files offered"))
	}

	adm := newAdmission()
	admitted, err := u.store.Admit(ctx, u.admissionPlan(incoming, adm))
	if err != nil {
		discardIncoming(ctx, incoming, nil)
		return AdmitResult{}, normalizeErr(err)
	}
	discardIncoming(ctx, incoming, adm.refused)

	rej := adm.rejected
	if !rej.Empty() {
		slog.InfoContext(ctx, "admission rejected files", "files", rej.Files(), "admitted", len(admitted))
		u.publish(ctx, entity.EventAdmissionRejected, rej.Files(), rej.Error())
	}

	result := AdmitResult{Admitted: admitted, Done: u.startEnrichment(ctx, admitted)}
	if !rej.Empty() {
		result.Rejected = rej
	}

	if len(admitted) == 0 {
		return result, pkgerror.WrapBusiness(rej, "no file was admitted", adm.code())
	}

	for i, f := range admitted {
		if cur, err := u.store.Get(ctx, f.ID); err == nil && cur.Generation == f.Generation {
			result.Admitted[i] = cur
		}
	}

	return result, nil
}

func discardIncoming(ctx context.Context, incoming []entity.IncomingFile, only map[int]struct{}) {
	for i, in := range incoming {
		if only != nil {
			if _, ok := only[i]; !ok {
				continue
			}
		}
		discardContent(ctx, []entity.StagedFile{{Name: in.Name, Content: in.Content}})
	}
}

// startEnrichment moves admitted files to Enriching and fans the matcher
// calls out on the background runner.
func (u *Usecase) startEnrichment(ctx context.Context, admitted []entity.StagedFile) <-chan struct{} {
	done := make(chan struct{})
	if len(admitted) == 0 {
		close(done)
		return done
	}

	next := entity.StatusEnriching
	if u.matcher == nil {
		next = entity.StatusReady
	}

	pending := make([]entity.StagedFile, 0, len(admitted))
	for _, f := range admitted {
		updated, err := u.store.Update(ctx, f.ID, f.Generation, func(cur *entity.StagedFile) error {
			cur.Status = next
			return nil
		})
		if err != nil {
			continue
		}
		if next == entity.StatusEnriching {
			pending = append(pending, updated)
		}
	}

	if len(pending) == 0 {
		close(done)
		return done
	}

	err := u.runner.Go(u.rootCtx, func(ctx context.Context) error {
		defer close(done)
		return u.enrichAll(ctx, pending)
	})
	if err != nil {
		slog.WarnContext(ctx, "enrichment not scheduled, files left without a guess", "error", err)
		for _, f := range pending {
			u.applyEnrichment(ctx, f, entity.PartialMetadata{})
		}
		close(done)
	}

	return done
}

func (u *Usecase) enrichAll(ctx context.Context, files []entity.StagedFile) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, f := range files {
		f := f
		g.Go(func() error {
			u.applyEnrichment(gctx, f, u.Enrich(gctx, f.Name))
			return nil
		})
	}
	return g.Wait()
}

// Enrich asks the matcher for a guess. A failing or silent matcher yields an
// empty partial; the miss is only logged.
func (u *Usecase) Enrich(ctx context.Context, filename string) entity.PartialMetadata {
	if u.matcher == nil {
		return entity.PartialMetadata{}
	}

	ctx, span := pkgtrace.Start(ctx, "ingest.Enrich", attribute.String("file", filename))
	guess, err := u.matcher.FindMatch(ctx, filename)
	pkgtrace.End(span, err)
	if err != nil {
		slog.WarnContext(ctx, "metadata guess skipped", "file", filename,
			"error", fmt.Errorf("%w: %w", entity.ErrEnrichmentUnavailable, err))
		return entity.PartialMetadata{}
	}
	if guess == nil {
		return entity.PartialMetadata{}
	}

	return guess.Clone()
}

func (u *Usecase) applyEnrichment(ctx context.Context, f entity.StagedFile, guess entity.PartialMetadata) {
	_, err := u.store.Update(ctx, f.ID, f.Generation, func(cur *entity.StagedFile) error {
		if cur.Status != entity.StatusEnriching {
			return entity.ErrStaleResult
		}
		cur.Metadata = mergeGuess(cur.Metadata, guess)
		cur.Status = entity.StatusReady
		return nil
	})

	switch {
	case err == nil:
	case errors.Is(err, entity.ErrFileNotFound), errors.Is(err, entity.ErrStaleResult):
		slog.DebugContext(ctx, "discarded stale metadata guess", "file", f.Name, "generation", f.Generation)
	default:
		slog.ErrorContext(ctx, "failed to apply metadata guess", "file", f.Name, "error", err)
	}
}

// mergeGuess fills only fields that are still unset. A guessed table or write
// mode belongs to the guessed dataset and is dropped when the record ends up
// on another one.
func mergeGuess(cur entity.Metadata, guess entity.PartialMetadata) entity.Metadata {
	out := cur.Clone()

	if out.Dataset == nil && guess.Dataset != nil {
		out.Dataset = entity.Ptr(*guess.Dataset)
	}

	sameDataset := guess.Dataset != nil && out.Dataset != nil && *out.Dataset == *guess.Dataset
	if sameDataset && out.Table == nil && guess.Table != nil {
		out.Table = entity.Ptr(*guess.Table)
	}

	if sameDataset && out.WriteMode == nil && guess.WriteMode != nil && guess.WriteMode.Valid() &&
		out.Table != nil && guess.Table != nil && *out.Table == *guess.Table {
		out.WriteMode = entity.Ptr(*guess.WriteMode)
	}

	if out.Schema == nil && guess.Schema != nil && guess.Schema.Columns != nil {
		out.Schema = guess.Schema.Clone()
	}

	return out
}
