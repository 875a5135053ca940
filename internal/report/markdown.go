package report

import (
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/lightscan/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation, pull request comments and CI
// job summaries.
type MarkdownWriter struct {
	baseWriter

	version string
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, version string) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
		version:    version,
	}
}

// Write outputs the full run result in Markdown format.
func (w *MarkdownWriter) Write(run *model.RunResult) (int, error) {
	md := markdown.NewMarkdown(w.output)
	summary := model.NewSummary(run)

	w.writeHeader(md, summary)
	w.writeCategories(md, summary)
	w.writeRatings(md, summary)
	w.writeAudits(md, run)
	w.writeFindings(md, summary)
	w.writeWarnings(md, run.Warnings)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// WriteSummary outputs the summary in Markdown format.
func (w *MarkdownWriter) WriteSummary(summary *model.Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeCategories(md, summary)
	w.writeRatings(md, summary)
	w.writeFindings(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with run information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, summary *model.Summary) {
	md.H1("Lightscan Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"URL", "`" + summary.URL + "`"},
			{"Fetched", summary.FetchedAt.Format("2006-01-02 15:04:05 MST")},
			{"Overall Score", formatScore(summary.Overall)},
		},
	})
	md.PlainText("")
}

// writeCategories writes the category score table.
func (w *MarkdownWriter) writeCategories(md *markdown.Markdown, summary *model.Summary) {
	md.H2("Categories")
	md.PlainText("")

	if len(summary.Categories) == 0 {
		md.PlainText("No categories configured.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(summary.Categories))
	for i, c := range summary.Categories {
		rows[i] = []string{c.Name, formatScore(c.Score), strconv.Itoa(len(c.Audits))}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Category", "Score", "Audits"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeRatings writes the rating count table, a pie chart and an alert.
func (w *MarkdownWriter) writeRatings(md *markdown.Markdown, summary *model.Summary) {
	md.H2("Audit Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Rating", "Count"},
		Rows: [][]string{
			{"🟢 Pass", strconv.Itoa(summary.PassCount)},
			{"🟡 Average", strconv.Itoa(summary.AverageCount)},
			{"🔴 Fail", strconv.Itoa(summary.FailCount)},
			{"⚪ Error", strconv.Itoa(summary.ErrorCount)},
			{"**Total**", "**" + strconv.Itoa(summary.TotalAudits()) + "**"},
		},
	})
	md.PlainText("")

	if summary.TotalAudits() > 0 {
		w.writePieChart(md, summary)
	}
	w.writeAlert(md, summary)
}

// writePieChart writes a mermaid pie chart of the rating distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, summary *model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Audit Ratings"),
		piechart.WithShowData(true),
	)

	counts := []struct {
		label string
		n     int
	}{
		{"Pass", summary.PassCount},
		{"Average", summary.AverageCount},
		{"Fail", summary.FailCount},
		{"Error", summary.ErrorCount},
	}
	for _, c := range counts {
		if c.n > 0 {
			chart.LabelAndIntValue(c.label, uint64(c.n))
		}
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert matching the worst rating present.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, summary *model.Summary) {
	switch {
	case summary.ErrorCount > 0:
		md.Cautionf("%d audit(s) could not run. See the errors below.", summary.ErrorCount)
	case summary.FailCount > 0:
		md.Warningf("%d audit(s) failed.", summary.FailCount)
	case summary.AverageCount > 0:
		md.Importantf("%d audit(s) need improvement.", summary.AverageCount)
	case summary.TotalAudits() > 0:
		md.Tip("All audits passed.")
	default:
		md.Note("No audits ran.")
	}
	md.PlainText("")
}

// writeAudits writes every audit in configuration order.
func (w *MarkdownWriter) writeAudits(md *markdown.Markdown, run *model.RunResult) {
	audits := run.OrderedAudits()
	if len(audits) == 0 {
		return
	}

	md.H2("Audits")
	md.PlainText("")

	rows := make([][]string, len(audits))
	for i, a := range audits {
		value := a.DisplayValue
		if value == "" {
			value = "-"
		}
		rows[i] = []string{
			a.Rating().Symbol() + " " + a.Title,
			"`" + a.ID + "`",
			formatScore(a.Score),
			truncateString(value, 50),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Audit", "ID", "Score", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFindings writes the audits that did not pass, worst first.
func (w *MarkdownWriter) writeFindings(md *markdown.Markdown, summary *model.Summary) {
	md.H2("Opportunities")
	md.PlainText("")

	if len(summary.Findings) == 0 {
		md.PlainText("Nothing to improve.")
		md.PlainText("")
		return
	}

	for _, f := range summary.Findings {
		if f.Rating == model.RatingError {
			md.Cautionf("**%s** (`%s`): %s", f.Title, f.AuditID, f.Detail)
			md.PlainText("")
			continue
		}

		text := f.RatingText + ", score " + formatScore(f.Score)
		if f.DisplayValue != "" {
			text += ", " + f.DisplayValue
		}
		if f.Detail != "" {
			text += ". " + f.Detail
		}
		md.Details(f.Title, text)
	}
	md.PlainText("")
}

// writeWarnings writes the run's non-fatal warnings.
func (w *MarkdownWriter) writeWarnings(md *markdown.Markdown, warnings []string) {
	if len(warnings) == 0 {
		return
	}

	md.H2("Warnings")
	md.PlainText("")
	md.BulletList(warnings...)
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [lightscan %s](https://github.com/nao1215/lightscan)*", w.version)
}

// formatScore renders a score as an integer, or "-" when there is none.
func formatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return strconv.FormatFloat(*score, 'f', 0, 64)
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
