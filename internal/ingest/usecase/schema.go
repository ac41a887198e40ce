package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/shandysiswandi/gostage/internal/ingest/entity"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgerror"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgtrace"
	"go.opentelemetry.io/otel/attribute"
)

var (
	errNoDetector     = errors.New("no schema detector configured")
	errMissingColumns = errors.New("response has no column list")
	errSchemaPresent  = errors.New("schema already set")
)

// ResolveSchema returns the schema of a staged file, asking the detector
// once when none is set. Concurrent calls for the same file share one
// detector call. A set schema is never refreshed.
func (u *Usecase) ResolveSchema(ctx context.Context, id string) (entity.Schema, error) {
	f, err := u.store.Get(ctx, id)
	if err != nil {
		return entity.Schema{}, mapStoreErr(err)
	}
	if f.Metadata.Schema != nil {
		return *f.Metadata.Schema.Clone(), nil
	}

	key := f.ID + "#" + strconv.FormatInt(f.Generation, 10)
	v, err, _ := u.schemaFlight.Do(key, func() (any, error) {
		return u.detectSchema(context.WithoutCancel(ctx), f)
	})
	if err != nil {
		var sde *entity.SchemaDetectionError
		if errors.As(err, &sde) {
			return entity.Schema{}, pkgerror.WrapBusiness(sde, "schema detection failed", pkgerror.CodeUpstream)
		}
		return entity.Schema{}, mapStoreErr(err)
	}

	schema, _ := v.(*entity.Schema)
	return *schema.Clone(), nil
}

func (u *Usecase) detectSchema(ctx context.Context, f entity.StagedFile) (*entity.Schema, error) {
	ctx, span := pkgtrace.Start(ctx, "ingest.DetectSchema", attribute.String("file", f.Name))

	var schema *entity.Schema
	err := errNoDetector
	if u.detector != nil {
		schema, err = u.detector.DetectSchema(ctx, f.Name, f.Content)
		if err == nil && (schema == nil || schema.Columns == nil) {
			err = errMissingColumns
		}
	}
	pkgtrace.End(span, err)

	if err != nil {
		sde := &entity.SchemaDetectionError{File: f.Name, Err: err}
		slog.WarnContext(ctx, "schema detection failed", "file", f.Name, "error", err)
		u.publish(ctx, entity.EventSchemaDetectionFailed, []string{f.Name}, sde.Error())
		return nil, sde
	}

	updated, err := u.store.Update(ctx, f.ID, f.Generation, func(cur *entity.StagedFile) error {
		if cur.Metadata.Schema != nil {
			return errSchemaPresent
		}
		if !cur.Status.Editable() {
			return entity.ErrNotEditable
		}
		cur.Metadata.Schema = schema.Clone()
		return nil
	})
	if errors.Is(err, errSchemaPresent) {
		cur, gerr := u.store.Get(ctx, f.ID)
		if gerr != nil {
			return nil, gerr
		}
		return cur.Metadata.Schema, nil
	}
	if err != nil {
		slog.DebugContext(ctx, "discarded detected schema", "file", f.Name, "error", err)
		return nil, err
	}

	return updated.Metadata.Schema, nil
}

// OpenSchemaEditor selects a file and opens its schema editor once a schema
// is available. A detection failure leaves the editor closed.
func (u *Usecase) OpenSchemaEditor(ctx context.Context, id string) (SchemaEditorResult, error) {
	if err := u.store.Select(ctx, id); err != nil {
		return SchemaEditorResult{}, mapStoreErr(err)
	}

	schema, err := u.ResolveSchema(ctx, id)
	if err != nil {
		return SchemaEditorResult{}, err
	}

	if err := u.store.OpenEditor(ctx, id); err != nil {
		return SchemaEditorResult{}, mapStoreErr(err)
	}

	return SchemaEditorResult{FileID: id, Schema: schema}, nil
}

// Select makes id the selected file. A file without a schema gets one
// detected in the background.
func (u *Usecase) Select(ctx context.Context, id string) (SelectionResult, error) {
	if err := u.store.Select(ctx, id); err != nil {
		return SelectionResult{}, mapStoreErr(err)
	}

	f, err := u.store.Get(ctx, id)
	if err != nil {
		return SelectionResult{}, mapStoreErr(err)
	}

	if f.Metadata.Schema == nil && u.detector != nil && u.runner != nil {
		err := u.runner.Go(u.rootCtx, func(ctx context.Context) error {
			if _, err := u.ResolveSchema(ctx, id); err != nil {
				slog.DebugContext(ctx, "background schema detection ended without a schema", "file", f.Name, "error", err)
			}
			return nil
		})
		if err != nil {
			slog.WarnContext(ctx, "schema detection not scheduled", "file", f.Name, "error", err)
		}
	}

	return SelectionResult{File: &f}, nil
}

func (u *Usecase) Selection(ctx context.Context) SelectionResult {
	sel := u.store.Selection(ctx)
	if sel.FileID == "" {
		return SelectionResult{}
	}

	f, err := u.store.Get(ctx, sel.FileID)
	if err != nil {
		return SelectionResult{}
	}
	return SelectionResult{File: &f, EditorOpen: sel.EditorOpen}
}

// UpdateMetadata merges a user edit into a staged file. Choosing another
// dataset clears table and write mode in the same update.
func (u *Usecase) UpdateMetadata(ctx context.Context, id string, patch entity.PartialMetadata) (entity.StagedFile, error) {
	if patch.IsEmpty() {
		return entity.StagedFile{}, pkgerror.NewInvalidInput(errors.New("no metadata field to update"))
	}

	if problems := patchProblems(patch); len(problems) > 0 {
		return entity.StagedFile{}, invalidMetadata(id, problems)
	}

	updated, err := u.store.Update(ctx, id, 0, func(cur *entity.StagedFile) error {
		if !cur.Status.Editable() {
			return entity.ErrNotEditable
		}

		next := applyPatch(cur.Metadata, patch)
		if problems := cascadeProblems(next); len(problems) > 0 {
			return &entity.InvalidMetadataError{File: cur.Name, Problems: problems}
		}
		cur.Metadata = next
		return nil
	})
	if err != nil {
		var ime *entity.InvalidMetadataError
		if errors.As(err, &ime) {
			return entity.StagedFile{}, pkgerror.WrapBusiness(ime, "invalid metadata", pkgerror.CodeInvalidInput)
		}
		return entity.StagedFile{}, mapStoreErr(err)
	}

	return updated, nil
}

func invalidMetadata(file string, problems []string) error {
	return pkgerror.WrapBusiness(&entity.InvalidMetadataError{File: file, Problems: problems},
		"invalid metadata", pkgerror.CodeInvalidInput)
}

func applyPatch(cur entity.Metadata, p entity.PartialMetadata) entity.Metadata {
	next := cur.Clone()

	if p.Dataset != nil && (next.Dataset == nil || *next.Dataset != *p.Dataset) {
		next.Dataset = entity.Ptr(*p.Dataset)
		next.Table = nil
		next.WriteMode = nil
	}
	if p.Table != nil {
		next.Table = entity.Ptr(*p.Table)
	}
	if p.WriteMode != nil {
		next.WriteMode = entity.Ptr(*p.WriteMode)
	}
	if p.Schema != nil {
		next.Schema = p.Schema.Clone()
	}

	return next
}
