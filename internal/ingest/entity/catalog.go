package entity

// Dataset is a read-only catalog entry.
type Dataset struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Tables []Table `json:"tables"`
}

type Table struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Schema *Schema `json:"schema,omitempty"`
}

// FindTable returns the table with the given name, if any.
func (d Dataset) FindTable(name string) (Table, bool) {
	for _, t := range d.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}
