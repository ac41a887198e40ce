package usecase

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shandysiswandi/gostage/internal/ingest/entity"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgerror"
)

// Identity derives the batch key of a file from its name.
func Identity(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}

	base := filepath.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// admission collects what the store plan refused for one offer.
type admission struct {
	rejected  *entity.AdmissionRejectedError
	refused   map[int]struct{}
	oversized int
}

func newAdmission() *admission {
	return &admission{rejected: &entity.AdmissionRejectedError{}, refused: make(map[int]struct{})}
}

func (a *admission) refuse(idx int, name, reason string) {
	a.rejected.Reject(displayName(name, idx), reason)
	a.refused[idx] = struct{}{}
}

// code picks the status family for an offer nobody survived.
func (a *admission) code() pkgerror.Code {
	switch {
	case a.rejected.CountCeiling > 0:
		return pkgerror.CodeConflict
	case a.oversized == len(a.refused):
		return pkgerror.CodeTooLarge
	default:
		return pkgerror.CodeInvalidInput
	}
}

// admissionPlan returns the store plan for one offer.
func (u *Usecase) admissionPlan(incoming []entity.IncomingFile, adm *admission) func([]entity.StagedFile) []entity.StagedFile {
	return func(current []entity.StagedFile) []entity.StagedFile {
		if len(current)+len(incoming) > u.limits.MaxFiles {
			adm.rejected.CountCeiling = u.limits.MaxFiles
			reason := fmt.Sprintf("a batch holds at most %d files (%d staged, %d offered)",
				u.limits.MaxFiles, len(current), len(incoming))
			for i, in := range incoming {
				adm.refuse(i, in.Name, reason)
			}
			return nil
		}

		staged := make(map[string]struct{}, len(current)+len(incoming))
		for _, f := range current {
			staged[f.ID] = struct{}{}
		}

		now := u.clock.Now()
		accepted := make([]entity.StagedFile, 0, len(incoming))
		for i, in := range incoming {
			id := Identity(in.Name)
			if id != "" && in.Size > u.limits.MaxFileBytes {
				adm.oversized++
			}
			if reason := admissionReason(id, in.Size, u.limits.MaxFileBytes, staged); reason != "" {
				adm.refuse(i, in.Name, reason)
				continue
			}

			staged[id] = struct{}{}
			accepted = append(accepted, entity.StagedFile{
				ID:         id,
				Name:       id,
				Size:       in.Size,
				Content:    in.Content,
				Status:     entity.StatusStaged,
				Generation: u.generation.Generate(),
				AdmittedAt: now,
			})
		}

		return accepted
	}
}

func admissionReason(id string, size, maxBytes int64, staged map[string]struct{}) string {
	switch {
	case id == "":
		return "file name is empty"
	case size < 0:
		return "file size is unknown"
	case size > maxBytes:
		return fmt.Sprintf("%s is %s, over the %s per-file limit", id, FormatBytes(size), FormatBytes(maxBytes))
	}

	if _, dup := staged[id]; dup {
		return "a file with this name is already staged"
	}
	return ""
}

func displayName(name string, idx int) string {
	if id := Identity(name); id != "" {
		return id
	}
	return fmt.Sprintf("#%d", idx+1)
}

// commitProblems returns, per file name, the reasons it blocks a commit.
func commitProblems(files []entity.StagedFile) map[string][]string {
	problems := make(map[string][]string)
	for _, f := range files {
		if f.Status == entity.StatusCommitted {
			continue
		}

		var reasons []string
		if f.Status == entity.StatusEnriching || f.Status == entity.StatusStaged {
			reasons = append(reasons, "enrichment")
		}
		reasons = append(reasons, f.Metadata.Missing()...)
		if f.Metadata.WriteMode != nil && *f.Metadata.WriteMode != "" && !f.Metadata.WriteMode.Valid() {
			reasons = append(reasons, "valid writeMode")
		}
		if f.Metadata.Schema != nil {
			for _, p := range schemaProblems(f.Metadata.Schema) {
				reasons = append(reasons, "valid schema ("+p+")")
			}
		}

		if len(reasons) > 0 {
			problems[f.Name] = reasons
		}
	}
	return problems
}

func schemaProblems(s *entity.Schema) []string {
	var problems []string
	names := make(map[string]struct{}, len(s.Columns))
	for i, c := range s.Columns {
		label := c.Name
		if strings.TrimSpace(c.Name) == "" {
			label = fmt.Sprintf("column %d", i+1)
			problems = append(problems, label+" has no name")
		} else if _, dup := names[c.Name]; dup {
			problems = append(problems, "duplicate column "+c.Name)
		}
		names[c.Name] = struct{}{}

		if !c.Type.Valid() {
			problems = append(problems, fmt.Sprintf("%s has unknown type %q", label, c.Type))
		}
		if !c.Sensitivity.Valid() {
			problems = append(problems, fmt.Sprintf("%s has unknown sensitivity %q", label, c.Sensitivity))
		}

		seen := make(map[entity.Action]struct{}, len(c.Actions))
		for _, a := range c.Actions {
			if !a.Valid() {
				problems = append(problems, fmt.Sprintf("%s has unknown action %q", label, a))
				continue
			}
			if _, dup := seen[a]; dup {
				problems = append(problems, fmt.Sprintf("%s repeats action %s", label, a))
			}
			seen[a] = struct{}{}
		}
	}
	return problems
}

// patchProblems checks a user edit on its own.
func patchProblems(p entity.PartialMetadata) []string {
	var problems []string
	if p.WriteMode != nil && !p.WriteMode.Valid() {
		problems = append(problems, fmt.Sprintf("unknown write mode %q", *p.WriteMode))
	}
	if p.Schema != nil {
		if p.Schema.Columns == nil {
			problems = append(problems, "schema has no column list")
		}
		problems = append(problems, schemaProblems(p.Schema)...)
	}
	return problems
}

// cascadeProblems checks the merged metadata against the dataset, table and
// write mode ordering. Empty values count as unset.
func cascadeProblems(m entity.Metadata) []string {
	dataset := m.Dataset != nil && *m.Dataset != ""
	table := m.Table != nil && *m.Table != ""
	mode := m.WriteMode != nil && *m.WriteMode != ""

	var problems []string
	if table && !dataset {
		problems = append(problems, "table requires a dataset")
	}
	if mode && (!dataset || !table) {
		problems = append(problems, "write mode requires a dataset and a table")
	}
	return problems
}

// FormatBytes renders n in binary units, e.g. "300 MiB".
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 4; m /= unit {
		div *= unit
		exp++
	}

	value := float64(n) / float64(div)
	suffix := []string{"KiB", "MiB", "GiB", "TiB", "PiB"}[exp]
	if value == float64(int64(value)) {
		return fmt.Sprintf("%d %s", int64(value), suffix)
	}
	return fmt.Sprintf("%.1f %s", value, suffix)
}
