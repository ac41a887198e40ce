package pkgconfig

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestViperConfigValues(t *testing.T) {
	path := writeConfigFile(t, "int: 42\nbool: true\nfloat: 3.14\nstring: hi\nwait: 90s\narray: a, b,,c\nmap: k1:v1,k2:v2\n")

	cfg, err := NewViper(path)
	if err != nil {
		t.Fatalf("NewViper: %v", err)
	}
	defer func() {
		if err := cfg.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}()

	if got := cfg.GetInt("int"); got != 42 {
		t.Fatalf("GetInt: expected 42, got %d", got)
	}
	if got := cfg.GetBool("bool"); got != true {
		t.Fatalf("GetBool: expected true, got %v", got)
	}
	if got := cfg.GetFloat("float"); got != 3.14 {
		t.Fatalf("GetFloat: expected 3.14, got %v", got)
	}
	if got := cfg.GetString("string"); got != "hi" {
		t.Fatalf("GetString: expected hi, got %q", got)
	}
	if got := cfg.GetDuration("wait"); got != 90*time.Second {
		t.Fatalf("GetDuration: expected 90s, got %v", got)
	}
	if got := cfg.GetArray("array"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("GetArray: unexpected value: %#v", got)
	}
	if got := cfg.GetMap("map"); !reflect.DeepEqual(got, map[string]string{"k1": "v1", "k2": "v2"}) {
		t.Fatalf("GetMap: unexpected value: %#v", got)
	}
}

func TestViperDefaultsAndEnv(t *testing.T) {
	t.Setenv("GOSTAGE_INGEST_MAX_FILES", "3")

	cfg, err := NewViper(filepath.Join(t.TempDir(), "missing.yaml"),
		WithOptionalFile(),
		WithEnvPrefix("GOSTAGE"),
		WithDefaults(map[string]any{
			"ingest.max_files":      10,
			"ingest.max_file_bytes": 1024,
		}),
	)
	if err != nil {
		t.Fatalf("NewViper: %v", err)
	}

	if got := cfg.GetInt("ingest.max_files"); got != 3 {
		t.Fatalf("env override: expected 3, got %d", got)
	}
	if got := cfg.GetInt("ingest.max_file_bytes"); got != 1024 {
		t.Fatalf("default: expected 1024, got %d", got)
	}

	cfg.Set("ingest.max_file_bytes", 2048)
	if got := cfg.GetInt("ingest.max_file_bytes"); got != 2048 {
		t.Fatalf("Set: expected 2048, got %d", got)
	}
}

func TestViperMissingFileIsErrorByDefault(t *testing.T) {
	if _, err := NewViper(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestViperEmptyArray(t *testing.T) {
	path := writeConfigFile(t, "other: 1\n")
	cfg, err := NewViper(path)
	if err != nil {
		t.Fatalf("NewViper: %v", err)
	}

	if got := cfg.GetArray("array"); got != nil {
		t.Fatalf("expected nil for missing array, got %#v", got)
	}
}
