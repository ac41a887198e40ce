package inbound

import (
	"context"

	"github.com/shandysiswandi/gostage/internal/ingest/entity"
	"github.com/shandysiswandi/gostage/internal/ingest/usecase"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgrouter"
)

type uc interface {
	Limits() usecase.Limits
	Datasets(ctx context.Context) []entity.Dataset
	RefreshDatasets(ctx context.Context) ([]entity.Dataset, error)
	Files(ctx context.Context) []entity.StagedFile
	File(ctx context.Context, id string) (entity.StagedFile, error)
	Admit(ctx context.Context, incoming []entity.IncomingFile) (usecase.AdmitResult, error)
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) int
	UpdateMetadata(ctx context.Context, id string, patch entity.PartialMetadata) (entity.StagedFile, error)
	Select(ctx context.Context, id string) (usecase.SelectionResult, error)
	Selection(ctx context.Context) usecase.SelectionResult
	OpenSchemaEditor(ctx context.Context, id string) (usecase.SchemaEditorResult, error)
	StartCommit(ctx context.Context) (usecase.CommitAccepted, error)
}

type notices interface {
	Since(seq uint64) ([]entity.Event, uint64)
}

type Config struct {
	// SpoolDir holds uploaded file bodies until they leave the batch.
	SpoolDir string
}

func RegisterHTTPEndpoint(r *pkgrouter.Router, uc uc, log notices, cfg Config) {
	end := &HTTPEndpoint{uc: uc, notices: log, spoolDir: cfg.SpoolDir}

	r.GET("/limits", end.Limits)

	r.GET("/datasets", end.Datasets)
	r.POST("/datasets/refresh", end.RefreshDatasets)

	r.GET("/files", end.Files)
	r.POST("/files", end.AdmitFiles)
	r.DELETE("/files", end.ClearFiles)
	r.GET("/files/:id", end.File)
	r.DELETE("/files/:id", end.RemoveFile)
	r.PATCH("/files/:id/metadata", end.UpdateMetadata)
	r.POST("/files/:id/select", end.SelectFile)
	r.POST("/files/:id/schema", end.OpenSchemaEditor)

	r.GET("/selection", end.Selection)
	r.POST("/commit", end.Commit)
	r.GET("/notices", end.Notices) // ?since=
}
