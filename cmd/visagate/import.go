package main

import (
	"fmt"
	"io"
	"os"

	"github.com/math15/visagate/internal/pool"
	"github.com/spf13/cobra"
)

// NewImportCmd creates the import command.
func NewImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [identity-file]",
		Short: "Import egress identities into the pool",
		Long: `Import reads egress identities from a file (or stdin with "-") and adds
them to the pool database.

One identity per line in host:port:username:password form. Blank lines and
lines starting with # are skipped. The region tag is derived from the
session marker embedded in the username. Duplicates are skipped; malformed
lines are reported with their line numbers and do not abort the import.

Examples:
  # Import from a file
  visagate import proxies.txt

  # Import from stdin
  cat proxies.txt | visagate import -`,
		Args: cobra.ExactArgs(1),
		RunE: runImportCmd,
	}

	return cmd
}

// runImportCmd executes the import command.
func runImportCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	var input io.Reader
	if args[0] == "-" {
		input = cmd.InOrStdin()
	} else {
		f, err := os.Open(args[0]) //nolint:gosec // User-provided identity file is intentional
		if err != nil {
			return fmt.Errorf("failed to open identity file: %w", err)
		}
		defer f.Close()
		input = f
	}

	p, err := pool.Open(cfg.PoolDir, pool.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open egress pool: %w", err)
	}
	defer p.Close()

	result, err := p.ImportReader(cmd.Context(), input)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Added:   %d\n", result.Added)
	fmt.Fprintf(out, "Skipped: %d (already in pool)\n", result.Skipped)
	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "Errors:  %d\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "  line %d: %v\n", e.Line, e.Err)
		}
	}

	return nil
}
