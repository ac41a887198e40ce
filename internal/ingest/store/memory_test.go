package store

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/shandysiswandi/gostage/internal/ingest/entity"
	"github.com/shandysiswandi/gostage/internal/pkg/pkgerror"
)

func staged(id string, gen int64, status entity.Status) entity.StagedFile {
	return entity.StagedFile{ID: id, Name: id, Size: 10, Generation: gen, Status: status}
}

func admitAll(files ...entity.StagedFile) func([]entity.StagedFile) []entity.StagedFile {
	return func([]entity.StagedFile) []entity.StagedFile { return files }
}

func ids(files []entity.StagedFile) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.ID)
	}
	return out
}

func TestInMemoryStore_Admit_KeepsOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewInMemoryStore(10, 100)

	if _, err := s.Admit(ctx, admitAll(staged("b.csv", 1, entity.StatusReady), staged("a.csv", 2, entity.StatusReady))); err != nil {
		t.Fatalf("Admit() err = %v", err)
	}
	if _, err := s.Admit(ctx, admitAll(staged("c.csv", 3, entity.StatusReady))); err != nil {
		t.Fatalf("Admit() err = %v", err)
	}

	if got := ids(s.List(ctx)); !reflect.DeepEqual(got, []string{"b.csv", "a.csv", "c.csv"}) {
		t.Fatalf("List() order = %v", got)
	}
}

func TestInMemoryStore_Admit_PlanSeesCurrentBatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewInMemoryStore(10, 100)
	_, _ = s.Admit(ctx, admitAll(staged("a.csv", 1, entity.StatusReady)))

	var seen []string
	_, _ = s.Admit(ctx, func(current []entity.StagedFile) []entity.StagedFile {
		seen = ids(current)
		return nil
	})

	if !reflect.DeepEqual(seen, []string{"a.csv"}) {
		t.Fatalf("plan saw %v", seen)
	}
}

func TestInMemoryStore_Admit_GuardsInvariants(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewInMemoryStore(2, 100)
	_, _ = s.Admit(ctx, admitAll(staged("a.csv", 1, entity.StatusReady)))

	tests := []struct {
		name  string
		files []entity.StagedFile
		code  pkgerror.Code
	}{
		{"duplicate", []entity.StagedFile{staged("a.csv", 2, entity.StatusReady)}, pkgerror.CodeConflict},
		{"count", []entity.StagedFile{staged("b.csv", 2, entity.StatusReady), staged("c.csv", 3, entity.StatusReady)}, pkgerror.CodeConflict},
		{"size", []entity.StagedFile{{ID: "big.csv", Size: 101, Generation: 4}}, pkgerror.CodeTooLarge},
	}

	for _, tt := range tests {
		_, err := s.Admit(ctx, admitAll(tt.files...))
		var perr *pkgerror.Error
		if !errors.As(err, &perr) || perr.Code() != tt.code {
			t.Fatalf("%s: Admit() err = %v, want code %v", tt.name, err, tt.code)
		}
	}

	if s.Len(ctx) != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len(ctx))
	}
}

func TestInMemoryStore_Update_CloneIsolation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewInMemoryStore(10, 100)
	_, _ = s.Admit(ctx, admitAll(staged("a.csv", 1, entity.StatusReady)))

	schema := &entity.Schema{Columns: []entity.Column{{Name: "id", Type: entity.ColumnTypeInteger}}}
	if _, err := s.Update(ctx, "a.csv", 0, func(f *entity.StagedFile) error {
		f.Metadata.Schema = schema
		return nil
	}); err != nil {
		t.Fatalf("Update() err = %v", err)
	}

	schema.Columns[0].Name = "mutated"
	got, _ := s.Get(ctx, "a.csv")
	if got.Metadata.Schema.Columns[0].Name != "id" {
		t.Fatalf("store shares schema with caller")
	}

	got.Metadata.Schema.Columns[0].Name = "mutated"
	again, _ := s.Get(ctx, "a.csv")
	if again.Metadata.Schema.Columns[0].Name != "id" {
		t.Fatalf("store leaked its schema to a reader")
	}
}

func TestInMemoryStore_Update_Rules(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewInMemoryStore(10, 100)
	_, _ = s.Admit(ctx, admitAll(staged("a.csv", 7, entity.StatusReady)))

	_, err := s.Update(ctx, "a.csv", 8, func(*entity.StagedFile) error { return nil })
	if !errors.Is(err, entity.ErrStaleResult) {
		t.Fatalf("wrong generation err = %v", err)
	}

	_, err = s.Update(ctx, "missing.csv", 0, func(*entity.StagedFile) error { return nil })
	if !errors.Is(err, entity.ErrFileNotFound) {
		t.Fatalf("missing file err = %v", err)
	}

	_, err = s.Update(ctx, "a.csv", 7, func(f *entity.StagedFile) error {
		f.Status = entity.StatusCommitted
		return nil
	})
	if !errors.Is(err, entity.ErrIllegalTransition) {
		t.Fatalf("illegal transition err = %v", err)
	}

	boom := errors.New("boom")
	_, err = s.Update(ctx, "a.csv", 7, func(f *entity.StagedFile) error {
		f.Err = "half applied"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("fn err = %v", err)
	}
	if got, _ := s.Get(ctx, "a.csv"); got.Err != "" || got.Status != entity.StatusReady {
		t.Fatalf("failed update was applied: %+v", got)
	}
}

func TestInMemoryStore_SetProgress_Monotonic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewInMemoryStore(10, 100)
	_, _ = s.Admit(ctx, admitAll(staged("a.csv", 1, entity.StatusReady)))

	if _, err := s.SetProgress(ctx, "a.csv", 1, 10); !errors.Is(err, entity.ErrStaleResult) {
		t.Fatalf("progress before upload err = %v", err)
	}

	_, _ = s.Update(ctx, "a.csv", 1, func(f *entity.StagedFile) error {
		f.Status = entity.StatusUploading
		f.Progress = entity.Ptr(0.0)
		return nil
	})

	want := []float64{20, 60, 60, 100}
	for i, pct := range []float64{20, 60, 40, 150} {
		got, err := s.SetProgress(ctx, "a.csv", 1, pct)
		if err != nil {
			t.Fatalf("SetProgress(%v) err = %v", pct, err)
		}
		if got != want[i] {
			t.Fatalf("SetProgress(%v) = %v, want %v", pct, got, want[i])
		}
	}

	got, _ := s.Get(ctx, "a.csv")
	if got.Progress == nil || *got.Progress != 100 {
		t.Fatalf("progress = %v, want 100", got.Progress)
	}
}

func TestInMemoryStore_Remove_ClearsSelection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewInMemoryStore(10, 100)
	_, _ = s.Admit(ctx, admitAll(staged("a.csv", 1, entity.StatusReady), staged("b.csv", 2, entity.StatusReady)))

	if err := s.Select(ctx, "a.csv"); err != nil {
		t.Fatalf("Select() err = %v", err)
	}
	if err := s.OpenEditor(ctx, "a.csv"); err != nil {
		t.Fatalf("OpenEditor() err = %v", err)
	}

	removal, err := s.Remove(ctx, "b.csv")
	if err != nil || removal.SelectionCleared {
		t.Fatalf("removing unselected file: %+v, %v", removal, err)
	}

	removal, err = s.Remove(ctx, "a.csv")
	if err != nil {
		t.Fatalf("Remove() err = %v", err)
	}
	if !removal.SelectionCleared {
		t.Fatal("expected selection cleared")
	}
	if sel := s.Selection(ctx); sel.FileID != "" || sel.EditorOpen {
		t.Fatalf("selection = %+v", sel)
	}

	if _, err := s.Remove(ctx, "a.csv"); !errors.Is(err, entity.ErrFileNotFound) {
		t.Fatalf("second Remove() err = %v", err)
	}
}

func TestInMemoryStore_OpenEditor_RequiresSelection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewInMemoryStore(10, 100)
	_, _ = s.Admit(ctx, admitAll(staged("a.csv", 1, entity.StatusReady), staged("b.csv", 2, entity.StatusReady)))
	_ = s.Select(ctx, "b.csv")

	if err := s.OpenEditor(ctx, "a.csv"); !errors.Is(err, entity.ErrStaleResult) {
		t.Fatalf("OpenEditor() err = %v", err)
	}
}

func TestInMemoryStore_RemoveMatching_And_Clear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewInMemoryStore(10, 100)
	_, _ = s.Admit(ctx, admitAll(
		staged("a.csv", 1, entity.StatusReady),
		staged("b.csv", 2, entity.StatusReady),
		staged("c.csv", 3, entity.StatusReady),
	))

	removal := s.RemoveMatching(ctx, func(f entity.StagedFile) bool { return f.ID == "b.csv" })
	if got := ids(removal.Files); !reflect.DeepEqual(got, []string{"b.csv"}) {
		t.Fatalf("RemoveMatching() removed %v", got)
	}
	if got := ids(s.List(ctx)); !reflect.DeepEqual(got, []string{"a.csv", "c.csv"}) {
		t.Fatalf("List() = %v", got)
	}

	removal = s.Clear(ctx)
	if len(removal.Files) != 2 || s.Len(ctx) != 0 {
		t.Fatalf("Clear() removed %d, left %d", len(removal.Files), s.Len(ctx))
	}
}

func TestInMemoryStore_ConcurrentUpdates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewInMemoryStore(10, 100)
	_, _ = s.Admit(ctx, admitAll(staged("a.csv", 1, entity.StatusUploading)))
	_, _ = s.Update(ctx, "a.csv", 1, func(f *entity.StagedFile) error {
		f.Progress = entity.Ptr(0.0)
		return nil
	})

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(pct float64) {
			defer wg.Done()
			_, _ = s.SetProgress(ctx, "a.csv", 1, pct)
		}(float64(i))
	}
	wg.Wait()

	got, _ := s.Get(ctx, "a.csv")
	if *got.Progress != 50 {
		t.Fatalf("progress = %v, want 50", *got.Progress)
	}
}

func TestInMemoryStore_Claim(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewInMemoryStore(10, 100)
	_, _ = s.Admit(ctx, admitAll(
		staged("a.csv", 1, entity.StatusReady),
		staged("b.csv", 2, entity.StatusFailed),
		staged("c.csv", 3, entity.StatusEnriching),
	))

	errPlan := errors.New("refused")
	if _, err := s.Claim(ctx, func([]entity.StagedFile) ([]string, error) { return nil, errPlan }); !errors.Is(err, errPlan) {
		t.Fatalf("plan error = %v", err)
	}
	_, err := s.Claim(ctx, func([]entity.StagedFile) ([]string, error) { return []string{"a.csv", "c.csv"}, nil })
	if !errors.Is(err, entity.ErrIllegalTransition) {
		t.Fatalf("claiming an enriching file: err = %v", err)
	}
	if a, _ := s.Get(ctx, "a.csv"); a.Status != entity.StatusReady {
		t.Fatalf("a changed by a refused claim: %+v", a)
	}

	claimed, err := s.Claim(ctx, func(current []entity.StagedFile) ([]string, error) {
		if len(current) != 3 {
			t.Errorf("plan saw %d files", len(current))
		}
		return []string{"a.csv", "b.csv"}, nil
	})
	if err != nil {
		t.Fatalf("Claim() err = %v", err)
	}
	if !reflect.DeepEqual(ids(claimed), []string{"a.csv", "b.csv"}) {
		t.Fatalf("claimed = %v", ids(claimed))
	}
	for _, id := range []string{"a.csv", "b.csv"} {
		f, _ := s.Get(ctx, id)
		if f.Status != entity.StatusUploading || f.Progress == nil || *f.Progress != 0 || f.Err != "" {
			t.Fatalf("%s = %+v", id, f)
		}
	}
}
