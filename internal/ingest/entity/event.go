package entity

import "time"

type EventKind string

const (
	EventAdmissionRejected     EventKind = "ADMISSION_REJECTED"
	EventSchemaDetectionFailed EventKind = "SCHEMA_DETECTION_FAILED"
	EventSelectionCleared      EventKind = "SELECTION_CLEARED"
	EventCatalogLoadFailed     EventKind = "CATALOG_LOAD_FAILED"
	EventCommitSucceeded       EventKind = "COMMIT_SUCCEEDED"
	EventCommitPartiallyFailed EventKind = "COMMIT_PARTIALLY_FAILED"
	EventCommitRefused         EventKind = "COMMIT_REFUSED"
)

// Event is a user-facing notice about the session.
type Event struct {
	ID       string
	Kind     EventKind
	CommitID string
	Files    []string
	Message  string
	At       time.Time
}
