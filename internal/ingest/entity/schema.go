package entity

// Schema is the ordered column list of a tabular file.
type Schema struct {
	Columns []Column `json:"columns" yaml:"columns"`
}

type Column struct {
	Name         string      `json:"name" yaml:"name"`
	Type         ColumnType  `json:"type" yaml:"type"`
	Nullable     bool        `json:"nullable" yaml:"nullable"`
	IsPrimaryKey bool        `json:"isPrimaryKey" yaml:"is_primary_key"`
	IsSortKey    bool        `json:"isSortKey" yaml:"is_sort_key"`
	Comments     string      `json:"comments" yaml:"comments,omitempty"`
	Sensitivity  Sensitivity `json:"sensitivity" yaml:"sensitivity"`
	Actions      []Action    `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// Clone returns a deep copy, so edits never reach a shared column slice.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}

	out := &Schema{}
	if s.Columns == nil {
		return out
	}

	out.Columns = make([]Column, len(s.Columns))
	for i, c := range s.Columns {
		c.Actions = append([]Action(nil), c.Actions...)
		out.Columns[i] = c
	}
	return out
}
