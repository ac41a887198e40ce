package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/shandysiswandi/gostage/internal/ingest/entity"
	"github.com/shandysiswandi/gostage/internal/ingest/store"
	"github.com/shandysiswandi/gostage/internal/ingest/usecase"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgerror"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgrouter"
)

const maxMetadataBody = 1 << 20

type HTTPEndpoint struct {
	uc       uc
	notices  notices
	spoolDir string
}

func (h *HTTPEndpoint) Limits(_ context.Context, _ *http.Request) (any, error) {
	limits := h.uc.Limits()
	return LimitsResponse{
		MaxFiles:     limits.MaxFiles,
		MaxFileBytes: limits.MaxFileBytes,
		MaxFileSize:  usecase.FormatBytes(limits.MaxFileBytes),
	}, nil
}

func (h *HTTPEndpoint) Datasets(ctx context.Context, _ *http.Request) (any, error) {
	return DatasetsResponse{Datasets: h.uc.Datasets(ctx)}, nil
}

func (h *HTTPEndpoint) RefreshDatasets(ctx context.Context, _ *http.Request) (any, error) {
	datasets, err := h.uc.RefreshDatasets(ctx)
	if err != nil {
		return nil, err
	}
	return DatasetsResponse{Datasets: datasets}, nil
}

func (h *HTTPEndpoint) Files(ctx context.Context, _ *http.Request) (any, error) {
	files := h.uc.Files(ctx)

	out := make([]File, 0, len(files))
	for _, f := range files {
		out = append(out, toHTTPFile(f))
	}
	return FilesResponse{Files: out, maxFiles: h.uc.Limits().MaxFiles}, nil
}

func (h *HTTPEndpoint) File(ctx context.Context, _ *http.Request) (any, error) {
	f, err := h.uc.File(ctx, pkgrouter.GetParam(ctx, "id"))
	if err != nil {
		return nil, err
	}
	return toHTTPFile(f), nil
}

func (h *HTTPEndpoint) AdmitFiles(ctx context.Context, r *http.Request) (any, error) {
	incoming, err := h.spoolParts(r)
	if err != nil {
		return nil, err
	}

	result, err := h.uc.Admit(ctx, incoming)
	if err != nil {
		return nil, err
	}

	resp := AdmitResponse{Admitted: make([]File, 0, len(result.Admitted)), Rejected: []Rejection{}}
	for _, f := range result.Admitted {
		resp.Admitted = append(resp.Admitted, toHTTPFile(f))
	}
	if result.Rejected != nil {
		for _, name := range result.Rejected.Files() {
			resp.Rejected = append(resp.Rejected, Rejection{File: name, Reason: result.Rejected.Reason(name)})
		}
	}

	return resp, nil
}

func (h *HTTPEndpoint) ClearFiles(ctx context.Context, _ *http.Request) (any, error) {
	return ClearResponse{Removed: h.uc.Clear(ctx)}, nil
}

func (h *HTTPEndpoint) RemoveFile(ctx context.Context, _ *http.Request) (any, error) {
	if err := h.uc.Remove(ctx, pkgrouter.GetParam(ctx, "id")); err != nil {
		return nil, err
	}
	return nil, nil
}

func (h *HTTPEndpoint) UpdateMetadata(ctx context.Context, r *http.Request) (any, error) {
	var req UpdateMetadataRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxMetadataBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return nil, pkgerror.NewInvalidFormat()
	}

	f, err := h.uc.UpdateMetadata(ctx, pkgrouter.GetParam(ctx, "id"), entity.PartialMetadata{
		Dataset:   req.Dataset,
		Table:     req.Table,
		WriteMode: req.WriteMode,
		Schema:    req.Schema,
	})
	if err != nil {
		return nil, err
	}
	return toHTTPFile(f), nil
}

func (h *HTTPEndpoint) SelectFile(ctx context.Context, _ *http.Request) (any, error) {
	sel, err := h.uc.Select(ctx, pkgrouter.GetParam(ctx, "id"))
	if err != nil {
		return nil, err
	}
	return toHTTPSelection(sel), nil
}

func (h *HTTPEndpoint) OpenSchemaEditor(ctx context.Context, _ *http.Request) (any, error) {
	res, err := h.uc.OpenSchemaEditor(ctx, pkgrouter.GetParam(ctx, "id"))
	if err != nil {
		return nil, err
	}
	return SchemaEditorResponse{FileID: res.FileID, Schema: res.Schema}, nil
}

func (h *HTTPEndpoint) Selection(ctx context.Context, _ *http.Request) (any, error) {
	return toHTTPSelection(h.uc.Selection(ctx)), nil
}

func (h *HTTPEndpoint) Commit(ctx context.Context, _ *http.Request) (any, error) {
	accepted, err := h.uc.StartCommit(ctx)
	if err != nil {
		return nil, err
	}

	skipped := accepted.Skipped
	if skipped == nil {
		skipped = []string{}
	}
	return CommitResponse{CommitID: accepted.CommitID, Files: accepted.Files, Skipped: skipped}, nil
}

func (h *HTTPEndpoint) Notices(_ context.Context, r *http.Request) (any, error) {
	var since uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, pkgerror.NewInvalidInput(errors.New("invalid since"))
		}
		since = v
	}

	if h.notices == nil {
		return NoticesResponse{Notices: []Notice{}, next: since}, nil
	}

	events, next := h.notices.Since(since)
	out := make([]Notice, 0, len(events))
	for _, e := range events {
		files := e.Files
		if files == nil {
			files = []string{}
		}
		out = append(out, Notice{
			ID:       e.ID,
			Kind:     e.Kind,
			CommitID: e.CommitID,
			Files:    files,
			Message:  e.Message,
			At:       e.At,
		})
	}
	return NoticesResponse{Notices: out, next: next}, nil
}

// spoolParts copies every "file" part to disk. Parts past the batch ceiling
// are only measured; the usecase refuses such an offer as a whole.
func (h *HTTPEndpoint) spoolParts(r *http.Request) ([]entity.IncomingFile, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.EqualFold(mediaType, "multipart/form-data") {
		return nil, pkgerror.NewInvalidFormat()
	}

	reader, err := r.MultipartReader()
	if err != nil {
		return nil, pkgerror.NewInvalidFormat()
	}

	limits := h.uc.Limits()
	var incoming []entity.IncomingFile
	fail := func(err error) ([]entity.IncomingFile, error) {
		discardSpooled(r.Context(), incoming)
		return nil, err
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(pkgerror.NewInvalidFormat())
		}

		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		in := entity.IncomingFile{Name: part.FileName()}
		if len(incoming) < limits.MaxFiles {
			content, size, err := store.Spool(h.spoolDir, part, limits.MaxFileBytes)
			if err != nil {
				_ = part.Close()
				return fail(pkgerror.NewServer(err))
			}
			in.Content, in.Size = content, size
		} else {
			size, err := io.Copy(io.Discard, part)
			if err != nil {
				_ = part.Close()
				return fail(pkgerror.NewInvalidFormat())
			}
			in.Size = size
		}
		_ = part.Close()

		incoming = append(incoming, in)
	}

	if len(incoming) == 0 {
		return nil, pkgerror.NewInvalidInput(errors.New("file part is required"))
	}
	return incoming, nil
}

func discardSpooled(ctx context.Context, incoming []entity.IncomingFile) {
	for _, in := range incoming {
		d, ok := in.Content.(entity.Discarder)
		if !ok {
			continue
		}
		if err := d.Discard(); err != nil {
			slog.WarnContext(ctx, "failed to discard spooled file", "file", in.Name, "error", err)
		}
	}
}

func toHTTPFile(f entity.StagedFile) File {
	out := File{
		ID:         f.ID,
		Name:       f.Name,
		Size:       f.Size,
		Status:     f.Status,
		Progress:   f.Progress,
		Error:      f.Err,
		AdmittedAt: f.AdmittedAt,
		Metadata: Metadata{
			Dataset:   f.Metadata.Dataset,
			Table:     f.Metadata.Table,
			WriteMode: f.Metadata.WriteMode,
			Schema:    f.Metadata.Schema,
		},
	}
	if f.Status != entity.StatusCommitted {
		out.Missing = f.Metadata.Missing()
	}
	return out
}

func toHTTPSelection(sel usecase.SelectionResult) SelectionResponse {
	resp := SelectionResponse{EditorOpen: sel.EditorOpen}
	if sel.File != nil {
		f := toHTTPFile(*sel.File)
		resp.File = &f
	}
	return resp
}
