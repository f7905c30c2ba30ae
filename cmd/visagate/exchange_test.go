package main

import (
	"os"
	"path/filepath"
	"testing"
)

// writeTestSpec writes an exchange spec file into a temp directory.
func writeTestSpec(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "spec.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write spec file: %v", err)
	}
	return path
}

// TestLoadExchangeSpec tests exchange spec file loading.
func TestLoadExchangeSpec(t *testing.T) {
	t.Parallel()

	t.Run("loads full spec", func(t *testing.T) {
		t.Parallel()

		path := writeTestSpec(t, `target_url: https://portal.example.com/appointment
method: POST
count: 3
form:
  center: "Madrid"
  category: "Work Visa"
`)

		spec, err := loadExchangeSpec(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if spec.TargetURL != "https://portal.example.com/appointment" {
			t.Errorf("TargetURL = %q", spec.TargetURL)
		}
		if spec.Count != 3 {
			t.Errorf("Count = %d, want 3", spec.Count)
		}
		if spec.Form["center"] != "Madrid" {
			t.Errorf("Form[center] = %q, want Madrid", spec.Form["center"])
		}
	})

	t.Run("applies defaults", func(t *testing.T) {
		t.Parallel()

		path := writeTestSpec(t, "target_url: https://portal.example.com\n")

		spec, err := loadExchangeSpec(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if spec.Method != "POST" {
			t.Errorf("Method = %q, want POST", spec.Method)
		}
		if spec.Count != 1 {
			t.Errorf("Count = %d, want 1", spec.Count)
		}
	})

	t.Run("rejects missing target URL", func(t *testing.T) {
		t.Parallel()

		path := writeTestSpec(t, "method: POST\n")

		if _, err := loadExchangeSpec(path); err == nil {
			t.Error("expected error for spec without target_url")
		}
	})

	t.Run("rejects missing file", func(t *testing.T) {
		t.Parallel()

		if _, err := loadExchangeSpec(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("expected error for missing spec file")
		}
	})
}

// TestExchangeSpecExchanges tests exchange unit construction.
func TestExchangeSpecExchanges(t *testing.T) {
	t.Parallel()

	spec := &exchangeSpec{
		TargetURL: "https://portal.example.com",
		Method:    "POST",
		Form:      map[string]string{"center": "Madrid"},
		Count:     3,
	}

	exchanges := spec.exchanges()
	if len(exchanges) != 3 {
		t.Fatalf("built %d exchanges, want 3", len(exchanges))
	}

	// Each unit must own its form map so concurrent workers never share one.
	exchanges[0].Form["center"] = "Barcelona"
	if exchanges[1].Form["center"] != "Madrid" {
		t.Error("expected exchange units to hold independent form maps")
	}

	for i, ex := range exchanges {
		if ex.TargetURL != spec.TargetURL {
			t.Errorf("exchange %d: TargetURL = %q", i, ex.TargetURL)
		}
		if ex.VisitorID != "" {
			t.Errorf("exchange %d: VisitorID should be assigned by the orchestrator", i)
		}
	}
}

// TestExchangeCmdValidation tests flag and config validation failures.
func TestExchangeCmdValidation(t *testing.T) {
	t.Parallel()

	t.Run("rejects conflicting format flags", func(t *testing.T) {
		t.Parallel()

		path := writeTestSpec(t, "target_url: https://portal.example.com\n")

		cmd := NewRootCmd()
		cmd.SetArgs([]string{
			"exchange", path,
			"--json", "--markdown",
			"--pool-dir", t.TempDir(),
			"--cache-dir", t.TempDir(),
		})

		if err := cmd.Execute(); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("requires solver endpoint", func(t *testing.T) {
		t.Parallel()

		path := writeTestSpec(t, "target_url: https://portal.example.com\n")

		cmd := NewRootCmd()
		cmd.SetArgs([]string{
			"exchange", path,
			"--pool-dir", t.TempDir(),
			"--cache-dir", t.TempDir(),
		})

		err := cmd.Execute()
		if err == nil {
			t.Fatal("expected error for missing solver endpoint")
		}
	})

	t.Run("rejects invalid client mode", func(t *testing.T) {
		t.Parallel()

		path := writeTestSpec(t, "target_url: https://portal.example.com\n")

		cmd := NewRootCmd()
		cmd.SetArgs([]string{
			"exchange", path,
			"--mode", "carrier-pigeon",
			"--pool-dir", t.TempDir(),
			"--cache-dir", t.TempDir(),
		})

		if err := cmd.Execute(); err == nil {
			t.Error("expected error for invalid client mode")
		}
	})
}
