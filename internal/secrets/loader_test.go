package secrets

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvWins(t *testing.T) {
	t.Setenv("JOBDIGEST_TEST_SECRET", "  from-env  ")

	file := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(file, []byte("from-file"), 0o600); err != nil {
		t.Fatal(err)
	}

	value, err := Load(Source{Name: "test key", Env: "JOBDIGEST_TEST_SECRET", File: file})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if value != "from-env" {
		t.Fatalf("value = %q, want trimmed env value", value)
	}
}

func TestLoadFromFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "key")
	if err := os.WriteFile(file, []byte("from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	value, err := Load(Source{Name: "test key", Env: "JOBDIGEST_UNSET_VAR", File: file})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if value != "from-file" {
		t.Fatalf("value = %q", value)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(Source{Name: "test key"}); err == nil {
		t.Fatalf("expected error for unconfigured secret")
	}

	if _, err := Load(Source{Name: "test key", File: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Fatalf("expected error for missing file")
	}

	empty := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(empty, []byte("  \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(Source{Name: "test key", File: empty}); err == nil {
		t.Fatalf("expected error for empty file")
	}
}

func TestLoadInlineValue(t *testing.T) {
	value, err := Load(Source{Value: " inline "})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if value != "inline" {
		t.Fatalf("value = %q", value)
	}
}

func TestLoadOptional(t *testing.T) {
	value, err := LoadOptional(Source{Name: "test key", Env: "JOBDIGEST_UNSET_VAR"})
	if err != nil || value != "" {
		t.Fatalf("unconfigured optional secret: value=%q err=%v", value, err)
	}

	// A configured file that cannot be read is still an error.
	if _, err := LoadOptional(Source{Name: "test key", File: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
