package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestImportCmd tests importing identities through the CLI.
func TestImportCmd(t *testing.T) {
	t.Parallel()

	t.Run("imports identities from file", func(t *testing.T) {
		t.Parallel()

		identityFile := filepath.Join(t.TempDir(), "proxies.txt")
		content := strings.Join([]string{
			"# pool seed",
			"proxy-a.example.com:8080:user-session-abc-region-ES:secret",
			"proxy-b.example.com:8080:user-session-def:secret",
			"",
			"not-a-valid-line",
		}, "\n")
		if err := os.WriteFile(identityFile, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write identity file: %v", err)
		}

		var out bytes.Buffer
		cmd := NewRootCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"import", identityFile, "--pool-dir", t.TempDir()})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := out.String()
		if !strings.Contains(output, "Added:   2") {
			t.Errorf("expected 2 added, got output %q", output)
		}
		if !strings.Contains(output, "Errors:  1") {
			t.Errorf("expected 1 error, got output %q", output)
		}
	})

	t.Run("imports identities from stdin", func(t *testing.T) {
		t.Parallel()

		var out bytes.Buffer
		cmd := NewRootCmd()
		cmd.SetOut(&out)
		cmd.SetIn(strings.NewReader("proxy-c.example.com:3128:user:pass\n"))
		cmd.SetArgs([]string{"import", "-", "--pool-dir", t.TempDir()})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.Contains(out.String(), "Added:   1") {
			t.Errorf("expected 1 added, got output %q", out.String())
		}
	})

	t.Run("skips duplicates on second import", func(t *testing.T) {
		t.Parallel()

		poolDir := t.TempDir()
		line := "proxy-d.example.com:8080:user:pass\n"

		for i, want := range []string{"Added:   1", "Skipped: 1"} {
			var out bytes.Buffer
			cmd := NewRootCmd()
			cmd.SetOut(&out)
			cmd.SetIn(strings.NewReader(line))
			cmd.SetArgs([]string{"import", "-", "--pool-dir", poolDir})

			if err := cmd.Execute(); err != nil {
				t.Fatalf("run %d: unexpected error: %v", i, err)
			}
			if !strings.Contains(out.String(), want) {
				t.Errorf("run %d: expected %q in output %q", i, want, out.String())
			}
		}
	})

	t.Run("fails on missing file", func(t *testing.T) {
		t.Parallel()

		cmd := NewRootCmd()
		cmd.SetArgs([]string{
			"import", filepath.Join(t.TempDir(), "missing.txt"),
			"--pool-dir", t.TempDir(),
		})

		if err := cmd.Execute(); err == nil {
			t.Error("expected error for missing identity file")
		}
	})
}
