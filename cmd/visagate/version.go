package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set at release time via -ldflags. Development builds leave them empty and
// fall back to the module build info embedded by the Go toolchain.
var (
	version = ""
	commit  = ""
	date    = ""
)

// buildDetails describes the running binary for the version command.
type buildDetails struct {
	Version  string
	Commit   string
	Date     string
	Go       string
	Platform string
}

// currentBuild resolves each field from ldflags first, then from
// debug.ReadBuildInfo, then to a placeholder.
func currentBuild() buildDetails {
	d := buildDetails{
		Version:  version,
		Commit:   commit,
		Date:     date,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}

	info, ok := debug.ReadBuildInfo()
	if ok {
		if d.Version == "" {
			d.Version = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if d.Commit == "" {
					d.Commit = shortCommit(s.Value)
				}
			case "vcs.time":
				if d.Date == "" {
					d.Date = s.Value
				}
			}
		}
	}

	if d.Version == "" {
		d.Version = "(devel)"
	}
	if d.Commit == "" {
		d.Commit = "unknown"
	}
	if d.Date == "" {
		d.Date = "unknown"
	}
	return d
}

// shortCommit trims a full VCS revision to the conventional 7 characters.
func shortCommit(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version, commit hash, and build details of visagate.`,
		Run: func(cmd *cobra.Command, _ []string) {
			d := currentBuild()
			fmt.Fprintf(cmd.OutOrStdout(), "visagate version %s\n", d.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "  commit:   %s\n", d.Commit)
			fmt.Fprintf(cmd.OutOrStdout(), "  built:    %s\n", d.Date)
			fmt.Fprintf(cmd.OutOrStdout(), "  go:       %s\n", d.Go)
			fmt.Fprintf(cmd.OutOrStdout(), "  platform: %s\n", d.Platform)
		},
	}
}
