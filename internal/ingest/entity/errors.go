package entity

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrFileNotFound          = errors.New("staged file not found")
	ErrStaleResult           = errors.New("stale result discarded")
	ErrIllegalTransition     = errors.New("illegal status transition")
	ErrCommitInProgress      = errors.New("a commit is already in progress")
	ErrEnrichmentUnavailable = errors.New("enrichment unavailable")
	ErrEmptyBatch            = errors.New("no files to upload")
	ErrNotEditable           = errors.New("file cannot be edited while uploading or committed")
)

// AdmissionRejectedError names every file refused at admission with its
// reason.
type AdmissionRejectedError struct {
	// CountCeiling is set when the whole offer was refused for exceeding
	// the batch file limit.
	CountCeiling int

	names   []string
	reasons map[string]string
}

func (e *AdmissionRejectedError) Reject(name, reason string) {
	if e.reasons == nil {
		e.reasons = make(map[string]string)
	}
	if _, ok := e.reasons[name]; !ok {
		e.names = append(e.names, name)
	}
	e.reasons[name] = reason
}

// Files returns the rejected names in the order they were offered.
func (e *AdmissionRejectedError) Files() []string {
	return append([]string(nil), e.names...)
}

func (e *AdmissionRejectedError) Reason(name string) string {
	return e.reasons[name]
}

func (e *AdmissionRejectedError) Empty() bool {
	return e == nil || len(e.names) == 0
}

func (e *AdmissionRejectedError) Error() string {
	parts := make([]string, 0, len(e.names))
	for _, n := range e.names {
		parts = append(parts, n+": "+e.reasons[n])
	}
	return "admission rejected: " + strings.Join(parts, "; ")
}

func (e *AdmissionRejectedError) Details() map[string]string {
	out := make(map[string]string, len(e.reasons))
	for k, v := range e.reasons {
		out[k] = v
	}
	return out
}

// SchemaDetectionError means no usable schema came back for a file.
type SchemaDetectionError struct {
	File string
	Err  error
}

func (e *SchemaDetectionError) Error() string {
	return fmt.Sprintf("schema detection failed for %s: %v", e.File, e.Err)
}

func (e *SchemaDetectionError) Unwrap() error {
	return e.Err
}

func (e *SchemaDetectionError) Details() map[string]string {
	return map[string]string{e.File: e.Err.Error()}
}

// IncompleteMetadataError lists the files that block a commit and the
// required fields each one lacks.
type IncompleteMetadataError struct {
	Missing map[string][]string
}

func (e *IncompleteMetadataError) Files() []string {
	files := make([]string, 0, len(e.Missing))
	for f := range e.Missing {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

func (e *IncompleteMetadataError) Error() string {
	return "incomplete metadata: " + strings.Join(e.Files(), ", ")
}

func (e *IncompleteMetadataError) Details() map[string]string {
	out := make(map[string]string, len(e.Missing))
	for f, fields := range e.Missing {
		out[f] = "missing " + strings.Join(fields, ", ")
	}
	return out
}

// InvalidMetadataError reports edits or schemas that break a metadata rule.
type InvalidMetadataError struct {
	File     string
	Problems []string
}

func (e *InvalidMetadataError) Error() string {
	return fmt.Sprintf("invalid metadata for %s: %s", e.File, strings.Join(e.Problems, "; "))
}

func (e *InvalidMetadataError) Details() map[string]string {
	return map[string]string{e.File: strings.Join(e.Problems, "; ")}
}

// UploadFailedError is the per-file failure of one upload attempt.
type UploadFailedError struct {
	File string
	Err  error
}

func (e *UploadFailedError) Error() string {
	return fmt.Sprintf("upload of %s failed: %v", e.File, e.Err)
}

func (e *UploadFailedError) Unwrap() error {
	return e.Err
}
