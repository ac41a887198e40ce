package pkguid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestUUIDGenerate(t *testing.T) {
	gen := NewUUID()
	id := gen.Generate()
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("expected valid uuid, got %q", id)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected v7 uuid, got v%d", parsed.Version())
	}
}

func TestPrefixedUUIDGenerate(t *testing.T) {
	gen := NewPrefixedUUID("commit")
	id := gen.Generate()
	rest, ok := strings.CutPrefix(id, "commit_")
	if !ok {
		t.Fatalf("expected commit_ prefix, got %q", id)
	}
	if _, err := uuid.Parse(rest); err != nil {
		t.Fatalf("expected valid uuid after prefix, got %q", rest)
	}
}
