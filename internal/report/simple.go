package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section
// formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
// 3. Color can be added as an option later if needed
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no entries are shown.
	showEmpty bool

	// verbose enables additional detail in the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		showEmpty:  false,
		verbose:    false,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// WriteExchange outputs the exchange report in human-readable format.
func (w *SimpleWriter) WriteExchange(report *ExchangeReport) (int, error) {
	var sb strings.Builder

	w.writeExchangeHeader(&sb, report)
	w.writeExchangeSummary(&sb, report)
	w.writeOutcomes(&sb, report)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// WritePool outputs the pool report in human-readable format.
func (w *SimpleWriter) WritePool(report *PoolReport) (int, error) {
	var sb strings.Builder

	w.writePoolHeader(&sb, report)
	w.writePoolSummary(&sb, report)
	w.writeIdentities(&sb, report)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeExchangeHeader writes the report header with run information.
func (w *SimpleWriter) writeExchangeHeader(sb *strings.Builder, report *ExchangeReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         EXCHANGE REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Target URL:  %s\n", report.TargetURL))
	if report.Region != "" {
		sb.WriteString(fmt.Sprintf("Region:      %s\n", report.Region))
	}
	sb.WriteString(fmt.Sprintf("Generated:   %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(fmt.Sprintf("Exchanges:   %d\n", len(report.Outcomes)))
	sb.WriteString("\n")
}

// writeExchangeSummary writes the outcome summary section.
func (w *SimpleWriter) writeExchangeSummary(sb *strings.Builder, report *ExchangeReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("OUTCOME SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  ACCEPTED: %d\n", report.AcceptedCount()))
	sb.WriteString(fmt.Sprintf("  REJECTED: %d\n", report.RejectedCount()))
	sb.WriteString(fmt.Sprintf("  SOLVED:   %d\n", report.SolvedCount()))
	sb.WriteString("\n")

	byClass := report.FailuresByClass()
	if len(byClass) == 0 {
		return
	}
	for _, class := range sortedKeys(byClass) {
		sb.WriteString(fmt.Sprintf("  %-28s %d\n", class+":", byClass[class]))
	}
	sb.WriteString("\n")
}

// writeOutcomes writes the per-exchange outcome listing.
func (w *SimpleWriter) writeOutcomes(sb *strings.Builder, report *ExchangeReport) {
	if len(report.Outcomes) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("OUTCOMES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(report.Outcomes) == 0 {
		sb.WriteString("  No exchanges performed\n\n")
		return
	}

	for i, o := range report.Outcomes {
		indicator := "-"
		if o.Accepted() {
			indicator = "+"
		}
		sb.WriteString(fmt.Sprintf("  [%s] #%d %s (identity %d, attempt %d, status %d)\n",
			indicator, i+1, o.State.String(), o.IdentityID, o.Attempt, o.StatusCode))
		if o.FailureReason != "" {
			sb.WriteString(fmt.Sprintf("      Failure: %s\n", o.FailureReason))
		}
		if w.verbose && o.Err != "" {
			sb.WriteString(fmt.Sprintf("      Error: %s\n", o.Err))
		}
		if w.verbose && o.BodySnippet != "" {
			sb.WriteString(fmt.Sprintf("      Body: %s\n", o.BodySnippet))
		}
	}
	sb.WriteString("\n")
}

// writePoolHeader writes the pool report header.
func (w *SimpleWriter) writePoolHeader(sb *strings.Builder, report *PoolReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                         EGRESS POOL REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("Generated:   %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString("\n")
}

// writePoolSummary writes the pool counter summary.
func (w *SimpleWriter) writePoolSummary(sb *strings.Builder, report *PoolReport) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("POOL SUMMARY\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	sb.WriteString(fmt.Sprintf("  TOTAL:    %d\n", report.Stats.Total))
	sb.WriteString(fmt.Sprintf("  ACTIVE:   %d\n", report.Stats.Active))
	sb.WriteString(fmt.Sprintf("  BANNED:   %d\n", report.Stats.Banned))
	sb.WriteString("\n")

	if len(report.Stats.ByRegion) > 0 || w.showEmpty {
		sb.WriteString("  By region:\n")
		for _, region := range sortedKeys(report.Stats.ByRegion) {
			sb.WriteString(fmt.Sprintf("    %-6s %d\n", region, report.Stats.ByRegion[region]))
		}
		sb.WriteString("\n")
	}

	if len(report.Stats.ByStatus) > 0 || w.showEmpty {
		sb.WriteString("  By status:\n")
		for _, status := range sortedKeys(report.Stats.ByStatus) {
			sb.WriteString(fmt.Sprintf("    %-9s %d\n", status, report.Stats.ByStatus[status]))
		}
		sb.WriteString("\n")
	}
}

// writeIdentities writes the identity listing.
func (w *SimpleWriter) writeIdentities(sb *strings.Builder, report *PoolReport) {
	if len(report.Identities) == 0 && !w.showEmpty {
		return
	}

	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("IDENTITIES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(report.Identities) == 0 {
		sb.WriteString("  No identities in pool\n\n")
		return
	}

	for _, id := range report.Identities {
		active := " "
		if id.Active {
			active = "*"
		}
		sb.WriteString(fmt.Sprintf("  [%s] %-4d %-30s %-4s %-8s used=%d failures=%d\n",
			active, id.ID, id.String(), id.Region, string(id.Status),
			id.UsageCount, id.NetworkFailures))
		if w.verbose && !id.LastUsed.IsZero() {
			sb.WriteString(fmt.Sprintf("      Last used: %s\n", id.LastUsed.Format("2006-01-02 15:04:05 MST")))
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by visagate\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

// sortedKeys returns map keys in sorted order for stable output.
func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
