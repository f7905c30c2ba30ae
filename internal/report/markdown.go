package report

import (
	"io"
	"strconv"

	"github.com/math15/visagate/internal/model"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// WriteExchange outputs the exchange report in Markdown format.
func (w *MarkdownWriter) WriteExchange(report *ExchangeReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeExchangeHeader(md, report)
	w.writeExchangeSummary(md, report)
	w.writeOutcomes(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WritePool outputs the pool report in Markdown format.
func (w *MarkdownWriter) WritePool(report *PoolReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writePoolHeader(md, report)
	w.writePoolSummary(md, report)
	w.writeIdentities(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeExchangeHeader writes the report header with run information.
func (w *MarkdownWriter) writeExchangeHeader(md *markdown.Markdown, report *ExchangeReport) {
	md.H1("Exchange Report")
	md.PlainText("")

	region := report.Region
	if region == "" {
		region = "any"
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Target URL", "`" + report.TargetURL + "`"},
			{"Region", region},
			{"Generated", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Exchanges", strconv.Itoa(len(report.Outcomes))},
		},
	})
	md.PlainText("")
}

// writeExchangeSummary writes the outcome summary section.
func (w *MarkdownWriter) writeExchangeSummary(md *markdown.Markdown, report *ExchangeReport) {
	md.H2("Outcome Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"✅ Accepted", strconv.Itoa(report.AcceptedCount())},
			{"❌ Rejected", strconv.Itoa(report.RejectedCount())},
			{"🧩 Challenges solved", strconv.Itoa(report.SolvedCount())},
		},
	})
	md.PlainText("")

	if len(report.Outcomes) > 0 {
		w.writePieChart(md, report)
	}

	w.writeAlert(md, report)
}

// writePieChart writes a mermaid pie chart of the outcome distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *ExchangeReport) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Exchange Outcome Distribution"),
		piechart.WithShowData(true),
	)

	if n := report.AcceptedCount(); n > 0 {
		chart.LabelAndIntValue("Accepted", uint64(n))
	}
	byClass := report.FailuresByClass()
	for _, class := range sortedKeys(byClass) {
		chart.LabelAndIntValue(class, uint64(byClass[class]))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an appropriate alert based on the run result.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *ExchangeReport) {
	byClass := report.FailuresByClass()
	switch {
	case byClass[model.FailurePoolExhausted.String()] > 0:
		md.Cautionf(
			"Egress pool exhausted during the run. %d exchange(s) could not acquire an identity.",
			byClass[model.FailurePoolExhausted.String()],
		)
	case byClass[model.FailureNetwork.String()] > 0:
		md.Warningf(
			"Network-level failures observed. %d exchange(s) failed after identity rotation.",
			byClass[model.FailureNetwork.String()],
		)
	case report.HasFailures():
		md.Importantf(
			"%d exchange(s) were rejected by the remote service.",
			report.RejectedCount(),
		)
	case len(report.Outcomes) > 0:
		md.Tip("All exchanges were accepted.")
	default:
		md.Note("No exchanges were performed.")
	}
	md.PlainText("")
}

// writeOutcomes writes the per-exchange outcome table.
func (w *MarkdownWriter) writeOutcomes(md *markdown.Markdown, report *ExchangeReport) {
	md.H2("Outcomes")
	md.PlainText("")

	if len(report.Outcomes) == 0 {
		md.PlainText("No exchanges performed.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(report.Outcomes))
	for i, o := range report.Outcomes {
		failure := o.FailureReason
		if failure == "" && o.Failure != model.FailureNone {
			failure = o.Failure.String()
		}
		if failure == "" {
			failure = "-"
		}
		solved := "-"
		if o.ChallengeSolved {
			solved = "yes"
		}

		rows[i] = []string{
			strconv.Itoa(i + 1),
			o.State.String(),
			strconv.FormatInt(o.IdentityID, 10),
			strconv.Itoa(o.Attempt),
			strconv.Itoa(o.StatusCode),
			solved,
			truncateString(failure, 40),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"#", "State", "Identity", "Attempt", "Status", "Solved", "Failure"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writePoolHeader writes the pool report header.
func (w *MarkdownWriter) writePoolHeader(md *markdown.Markdown, report *PoolReport) {
	md.H1("Egress Pool Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Generated", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Total identities", strconv.Itoa(report.Stats.Total)},
			{"Active", strconv.Itoa(report.Stats.Active)},
			{"Banned", strconv.Itoa(report.Stats.Banned)},
		},
	})
	md.PlainText("")
}

// writePoolSummary writes the per-region and per-status breakdowns.
func (w *MarkdownWriter) writePoolSummary(md *markdown.Markdown, report *PoolReport) {
	if len(report.Stats.ByRegion) > 0 {
		md.H2("By Region")
		md.PlainText("")
		rows := make([][]string, 0, len(report.Stats.ByRegion))
		for _, region := range sortedKeys(report.Stats.ByRegion) {
			rows = append(rows, []string{region, strconv.Itoa(report.Stats.ByRegion[region])})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Region", "Count"},
			Rows:   rows,
		})
		md.PlainText("")
	}

	if len(report.Stats.ByStatus) > 0 {
		md.H2("By Status")
		md.PlainText("")
		rows := make([][]string, 0, len(report.Stats.ByStatus))
		for _, status := range sortedKeys(report.Stats.ByStatus) {
			rows = append(rows, []string{status, strconv.Itoa(report.Stats.ByStatus[status])})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Status", "Count"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}

// writeIdentities writes the identity listing table.
func (w *MarkdownWriter) writeIdentities(md *markdown.Markdown, report *PoolReport) {
	if len(report.Identities) == 0 {
		return
	}

	md.H2("Identities")
	md.PlainText("")

	rows := make([][]string, len(report.Identities))
	for i, id := range report.Identities {
		active := "no"
		if id.Active {
			active = "yes"
		}
		lastUsed := "-"
		if !id.LastUsed.IsZero() {
			lastUsed = id.LastUsed.Format("2006-01-02 15:04:05")
		}

		rows[i] = []string{
			strconv.FormatInt(id.ID, 10),
			"`" + id.String() + "`",
			id.Region,
			string(id.Status),
			active,
			strconv.FormatInt(id.UsageCount, 10),
			strconv.Itoa(id.NetworkFailures),
			lastUsed,
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"ID", "Endpoint", "Region", "Status", "Active", "Used", "Failures", "Last Used"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by visagate*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
