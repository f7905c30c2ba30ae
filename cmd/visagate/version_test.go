package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestCurrentBuild(t *testing.T) {
	t.Parallel()

	d := currentBuild()
	if d.Version == "" {
		t.Error("Version is empty, want ldflags value, build info, or (devel)")
	}
	if d.Commit == "" {
		t.Error("Commit is empty, want vcs.revision or unknown")
	}
	if d.Date == "" {
		t.Error("Date is empty, want vcs.time or unknown")
	}
	if d.Go == "" {
		t.Error("Go is empty, want runtime version")
	}
	if !strings.Contains(d.Platform, "/") {
		t.Errorf("Platform = %q, want GOOS/GOARCH", d.Platform)
	}
}

func TestShortCommit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rev  string
		want string
	}{
		{"abc1234def5678", "abc1234"},
		{"abc1234", "abc1234"},
		{"abc", "abc"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := shortCommit(tt.rev); got != tt.want {
			t.Errorf("shortCommit(%q) = %q, want %q", tt.rev, got, tt.want)
		}
	}
}

func TestNewVersionCmd(t *testing.T) {
	t.Parallel()

	t.Run("command has correct use", func(t *testing.T) {
		t.Parallel()
		cmd := NewVersionCmd()
		if cmd.Use != "version" {
			t.Errorf("expected Use to be 'version', got %q", cmd.Use)
		}
	})

	t.Run("command outputs version info", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		cmd := NewVersionCmd()
		cmd.SetOut(&buf)
		cmd.SetArgs([]string{})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"visagate version", "commit:", "built:", "go:", "platform:"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q, got %q", want, output)
			}
		}
	})
}
