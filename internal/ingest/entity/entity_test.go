package entity

import (
	"errors"
	"reflect"
	"testing"
)

func TestStatusTransitions(t *testing.T) {
	legal := [][2]Status{
		{StatusStaged, StatusEnriching},
		{StatusStaged, StatusReady},
		{StatusEnriching, StatusReady},
		{StatusReady, StatusUploading},
		{StatusFailed, StatusUploading},
		{StatusUploading, StatusCommitted},
		{StatusUploading, StatusFailed},
	}
	for _, tr := range legal {
		if !tr[0].CanTransition(tr[1]) {
			t.Fatalf("expected %s -> %s to be legal", tr[0], tr[1])
		}
	}

	illegal := [][2]Status{
		{StatusCommitted, StatusUploading},
		{StatusReady, StatusCommitted},
		{StatusEnriching, StatusUploading},
		{StatusCommitted, StatusReady},
	}
	for _, tr := range illegal {
		if tr[0].CanTransition(tr[1]) {
			t.Fatalf("expected %s -> %s to be illegal", tr[0], tr[1])
		}
	}
}

func TestSchemaCloneIsDeep(t *testing.T) {
	orig := &Schema{Columns: []Column{{Name: "id", Actions: []Action{ActionMask}}}}
	cp := orig.Clone()
	cp.Columns[0].Name = "changed"
	cp.Columns[0].Actions[0] = ActionDrop

	if orig.Columns[0].Name != "id" || orig.Columns[0].Actions[0] != ActionMask {
		t.Fatalf("clone shares state with original: %+v", orig.Columns[0])
	}
	if (&Schema{}).Clone().Columns != nil {
		t.Fatal("a missing column list must stay missing")
	}
	if (*Schema)(nil).Clone() != nil {
		t.Fatal("nil schema clone should be nil")
	}
}

func TestMetadataMissingAndTarget(t *testing.T) {
	m := Metadata{Dataset: Ptr("sales"), Table: Ptr("")}
	if got := m.Missing(); !reflect.DeepEqual(got, []string{"table", "writeMode"}) {
		t.Fatalf("unexpected missing fields: %v", got)
	}
	if _, _, _, ok := m.Target(); ok {
		t.Fatal("expected incomplete target")
	}

	m.Table = Ptr("orders")
	m.WriteMode = Ptr(WriteModeAppend)
	ds, tbl, mode, ok := m.Target()
	if !ok || ds != "sales" || tbl != "orders" || mode != WriteModeAppend {
		t.Fatalf("unexpected target: %s %s %s %v", ds, tbl, mode, ok)
	}
}

func TestAdmissionRejectedKeepsOfferOrder(t *testing.T) {
	rej := &AdmissionRejectedError{}
	if !rej.Empty() {
		t.Fatal("new rejection should be empty")
	}
	rej.Reject("b.csv", "too large")
	rej.Reject("a.csv", "duplicate")
	rej.Reject("b.csv", "still too large")

	if got := rej.Files(); !reflect.DeepEqual(got, []string{"b.csv", "a.csv"}) {
		t.Fatalf("unexpected order: %v", got)
	}
	if rej.Reason("b.csv") != "still too large" {
		t.Fatalf("unexpected reason: %q", rej.Reason("b.csv"))
	}
}

func TestSchemaDetectionErrorUnwraps(t *testing.T) {
	cause := errors.New("boom")
	err := error(&SchemaDetectionError{File: "x.csv", Err: cause})

	var sde *SchemaDetectionError
	if !errors.As(err, &sde) || !errors.Is(err, cause) {
		t.Fatalf("expected error chain to expose cause")
	}
	if sde.Details()["x.csv"] != "boom" {
		t.Fatalf("unexpected details: %v", sde.Details())
	}
}
