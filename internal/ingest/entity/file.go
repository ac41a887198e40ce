package entity

import (
	"io"
	"time"
)

// Content is an opaque handle to the bytes of a staged file. Only
// collaborators open it.
type Content interface {
	Open() (io.ReadSeekCloser, error)
}

// Discarder is implemented by content that owns resources (for example a
// spooled temp file) which must be released when the file leaves the batch.
type Discarder interface {
	Discard() error
}

// Metadata holds the user-facing target of a staged file. A nil field is
// unset, which is distinct from an empty value.
type Metadata struct {
	Dataset   *string    `json:"dataset,omitempty"`
	Table     *string    `json:"table,omitempty"`
	WriteMode *WriteMode `json:"writeMode,omitempty"`
	Schema    *Schema    `json:"schema,omitempty"`
}

// PartialMetadata is a metadata patch. The matcher returns one and so does
// every user edit.
type PartialMetadata = Metadata

func (m Metadata) Clone() Metadata {
	out := Metadata{Schema: m.Schema.Clone()}
	if m.Dataset != nil {
		out.Dataset = ptr(*m.Dataset)
	}
	if m.Table != nil {
		out.Table = ptr(*m.Table)
	}
	if m.WriteMode != nil {
		out.WriteMode = ptr(*m.WriteMode)
	}
	return out
}

// IsEmpty reports whether no field is set.
func (m Metadata) IsEmpty() bool {
	return m.Dataset == nil && m.Table == nil && m.WriteMode == nil && m.Schema == nil
}

// Target returns dataset, table and write mode when all three are set and
// non-empty.
func (m Metadata) Target() (dataset, table string, mode WriteMode, ok bool) {
	if m.Dataset == nil || m.Table == nil || m.WriteMode == nil {
		return "", "", "", false
	}
	if *m.Dataset == "" || *m.Table == "" || *m.WriteMode == "" {
		return "", "", "", false
	}
	return *m.Dataset, *m.Table, *m.WriteMode, true
}

// Missing lists the required fields that are unset or empty.
func (m Metadata) Missing() []string {
	var out []string
	if m.Dataset == nil || *m.Dataset == "" {
		out = append(out, "dataset")
	}
	if m.Table == nil || *m.Table == "" {
		out = append(out, "table")
	}
	if m.WriteMode == nil || *m.WriteMode == "" {
		out = append(out, "writeMode")
	}
	return out
}

// StagedFile is one candidate upload.
type StagedFile struct {
	ID         string
	Name       string
	Size       int64
	Content    Content
	Metadata   Metadata
	Progress   *float64
	Status     Status
	Err        string
	Generation int64
	AdmittedAt time.Time
}

// Clone copies the record; the content handle is shared.
func (f StagedFile) Clone() StagedFile {
	f.Metadata = f.Metadata.Clone()
	if f.Progress != nil {
		f.Progress = ptr(*f.Progress)
	}
	return f
}

// IncomingFile is a file offered for admission.
type IncomingFile struct {
	Name    string
	Size    int64
	Content Content
}

func ptr[T any](v T) *T {
	return &v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return ptr(v)
}

// Selection is the file whose detail panel is open and whether its schema
// editor is showing.
type Selection struct {
	FileID     string
	EditorOpen bool
}

// Removal describes files that left the batch in one store mutation.
type Removal struct {
	Files            []StagedFile
	SelectionCleared bool
}

// UploadRequest is everything a storage backend receives for one file.
type UploadRequest struct {
	Name      string
	Size      int64
	Content   Content
	Dataset   string
	Table     string
	WriteMode WriteMode
	Schema    *Schema
}
