package entity

// Status is the lifecycle position of a staged file.
type Status string

const (
	StatusStaged    Status = "STAGED"
	StatusEnriching Status = "ENRICHING"
	StatusReady     Status = "READY"
	StatusUploading Status = "UPLOADING"
	StatusCommitted Status = "COMMITTED"
	StatusFailed    Status = "FAILED"
)

//nolint:gochecknoglobals // static transition table
var transitions = map[Status][]Status{
	StatusStaged:    {StatusEnriching, StatusReady},
	StatusEnriching: {StatusReady},
	StatusReady:     {StatusUploading},
	StatusFailed:    {StatusUploading},
	StatusUploading: {StatusCommitted, StatusFailed},
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Editable reports whether metadata edits are accepted in this status.
func (s Status) Editable() bool {
	return s != StatusUploading && s != StatusCommitted
}

type WriteMode string

const (
	WriteModeAppend    WriteMode = "Append"
	WriteModeMerge     WriteMode = "Merge"
	WriteModeOverwrite WriteMode = "Overwrite"
)

func (m WriteMode) Valid() bool {
	switch m {
	case WriteModeAppend, WriteModeMerge, WriteModeOverwrite:
		return true
	default:
		return false
	}
}

type ColumnType string

const (
	ColumnTypeInteger   ColumnType = "INTEGER"
	ColumnTypeBigint    ColumnType = "BIGINT"
	ColumnTypeDecimal   ColumnType = "DECIMAL"
	ColumnTypeVarchar   ColumnType = "VARCHAR"
	ColumnTypeText      ColumnType = "TEXT"
	ColumnTypeDate      ColumnType = "DATE"
	ColumnTypeTimestamp ColumnType = "TIMESTAMP"
	ColumnTypeBoolean   ColumnType = "BOOLEAN"
)

func (t ColumnType) Valid() bool {
	switch t {
	case ColumnTypeInteger, ColumnTypeBigint, ColumnTypeDecimal, ColumnTypeVarchar,
		ColumnTypeText, ColumnTypeDate, ColumnTypeTimestamp, ColumnTypeBoolean:
		return true
	default:
		return false
	}
}

type Sensitivity string

const (
	SensitivityPublic    Sensitivity = "Public"
	SensitivityInternal  Sensitivity = "Internal"
	SensitivityPII       Sensitivity = "PII"
	SensitivitySensitive Sensitivity = "Sensitive"
)

func (s Sensitivity) Valid() bool {
	switch s {
	case SensitivityPublic, SensitivityInternal, SensitivityPII, SensitivitySensitive:
		return true
	default:
		return false
	}
}

type Action string

const (
	ActionRedact    Action = "Redact"
	ActionAnonymize Action = "Anonymize"
	ActionMask      Action = "Mask"
	ActionDrop      Action = "Drop"
)

func (a Action) Valid() bool {
	switch a {
	case ActionRedact, ActionAnonymize, ActionMask, ActionDrop:
		return true
	default:
		return false
	}
}
