package inbound

import (
	"net/http"
	"time"

	"github.com/shandysiswandi/gostage/internal/ingest/entity"
)

type LimitsResponse struct {
	MaxFiles     int    `json:"max_files"`
	MaxFileBytes int64  `json:"max_file_bytes"`
	MaxFileSize  string `json:"max_file_size"`
}

type DatasetsResponse struct {
	Datasets []entity.Dataset `json:"datasets"`
}

type Metadata struct {
	Dataset   *string           `json:"dataset"`
	Table     *string           `json:"table"`
	WriteMode *entity.WriteMode `json:"write_mode"`
	Schema    *entity.Schema    `json:"schema"`
}

type File struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Size       int64         `json:"size"`
	Status     entity.Status `json:"status"`
	Progress   *float64      `json:"progress"`
	Error      string        `json:"error,omitempty"`
	Metadata   Metadata      `json:"metadata"`
	Missing    []string      `json:"missing,omitempty"`
	AdmittedAt time.Time     `json:"admitted_at"`
}

type FilesResponse struct {
	Files    []File `json:"files"`
	maxFiles int
}

func (r FilesResponse) Meta() map[string]any {
	return map[string]any{
		"total":     len(r.Files),
		"max_files": r.maxFiles,
	}
}

type Rejection struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

type AdmitResponse struct {
	Admitted []File      `json:"admitted"`
	Rejected []Rejection `json:"rejected"`
}

func (AdmitResponse) StatusCode() int {
	return http.StatusCreated
}

func (r AdmitResponse) Message() string {
	if len(r.Rejected) > 0 {
		return "some files were not admitted"
	}
	return "files staged"
}

type ClearResponse struct {
	Removed int `json:"removed"`
}

// UpdateMetadataRequest is a patch: absent fields stay as they are.
type UpdateMetadataRequest struct {
	Dataset   *string           `json:"dataset"`
	Table     *string           `json:"table"`
	WriteMode *entity.WriteMode `json:"write_mode"`
	Schema    *entity.Schema    `json:"schema"`
}

type SelectionResponse struct {
	File       *File `json:"file"`
	EditorOpen bool  `json:"editor_open"`
}

type SchemaEditorResponse struct {
	FileID string        `json:"file_id"`
	Schema entity.Schema `json:"schema"`
}

type CommitResponse struct {
	CommitID string   `json:"commit_id"`
	Files    []string `json:"files"`
	Skipped  []string `json:"skipped"`
}

func (CommitResponse) StatusCode() int {
	return http.StatusAccepted
}

func (CommitResponse) Message() string {
	return "commit accepted"
}

type Notice struct {
	ID       string           `json:"id"`
	Kind     entity.EventKind `json:"kind"`
	CommitID string           `json:"commit_id,omitempty"`
	Files    []string         `json:"files"`
	Message  string           `json:"message"`
	At       time.Time        `json:"at"`
}

type NoticesResponse struct {
	Notices []Notice `json:"notices"`
	next    uint64
}

func (r NoticesResponse) Meta() map[string]any {
	return map[string]any{"next": r.next}
}
