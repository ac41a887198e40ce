package usecase

import "github.com/shandysiswandi/gostage/internal/ingest/entity"

const (
	DefaultMaxFiles           = 10
	DefaultMaxFileBytes int64 = 300 << 20
)

type Limits struct {
	MaxFiles          int
	MaxFileBytes      int64
	UploadConcurrency int
}

type AdmitResult struct {
	Admitted []entity.StagedFile
	Rejected *entity.AdmissionRejectedError
	// Done is closed once enrichment of every admitted file has settled.
	Done <-chan struct{}
}

type SelectionResult struct {
	File       *entity.StagedFile
	EditorOpen bool
}

type SchemaEditorResult struct {
	FileID string
	Schema entity.Schema
}

type CommitResult struct {
	CommitID  string
	Committed []string
	Failed    map[string]string
	Skipped   []string
	Cleared   bool
}

// Succeeded reports whether every attempted upload committed.
func (r CommitResult) Succeeded() bool {
	return len(r.Failed) == 0
}

type CommitAccepted struct {
	CommitID string
	Files    []string
	Skipped  []string
}
