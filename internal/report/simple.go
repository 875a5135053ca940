package report

import (
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nao1215/lightscan/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with a marker per rating
// and clear section formatting.
type SimpleWriter struct {
	baseWriter

	// showPassed lists passing audits as well as findings.
	showPassed bool

	// verbose enables additional detail in the output.
	verbose bool

	version string

	printer *message.Printer
	title   cases.Caser
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowPassed configures the writer to list passing audits.
func WithShowPassed(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showPassed = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithVersion sets the version printed in the footer.
func WithVersion(version string) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.version = version
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		printer:    message.NewPrinter(language.English),
		title:      cases.Title(language.English),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the run result in human-readable format.
func (w *SimpleWriter) Write(run *model.RunResult) (int, error) {
	var sb strings.Builder
	summary := model.NewSummary(run)

	w.writeHeader(&sb, summary)
	w.writeCategories(&sb, summary)
	w.writeRatings(&sb, summary)
	if w.showPassed {
		w.writePassed(&sb, run)
	}
	w.writeFindings(&sb, summary)
	w.writeWarnings(&sb, run.Warnings)
	w.writeTiming(&sb, run.Timing)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// WriteSummary outputs the summary in human-readable format.
func (w *SimpleWriter) WriteSummary(summary *model.Summary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, summary)
	w.writeCategories(&sb, summary)
	w.writeRatings(&sb, summary)
	w.writeFindings(&sb, summary)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) rule(sb *strings.Builder, c string) {
	sb.WriteString(strings.Repeat(c, 70))
	sb.WriteString("\n")
}

func (w *SimpleWriter) section(sb *strings.Builder, name string) {
	w.rule(sb, "-")
	sb.WriteString(name)
	sb.WriteString("\n")
	w.rule(sb, "-")
	sb.WriteString("\n")
}

// writeHeader writes the report header with run information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, summary *model.Summary) {
	sb.WriteString("\n")
	w.rule(sb, "=")
	sb.WriteString("                         LIGHTSCAN REPORT\n")
	w.rule(sb, "=")
	sb.WriteString("\n")

	sb.WriteString(w.printer.Sprintf("URL:            %s\n", summary.URL))
	sb.WriteString(w.printer.Sprintf("Fetched:        %s\n", summary.FetchedAt.Format("2006-01-02 15:04:05 MST")))
	sb.WriteString(w.printer.Sprintf("Overall Score:  %s\n", formatScore(summary.Overall)))
	sb.WriteString("\n")
}

// writeCategories writes one line per category.
func (w *SimpleWriter) writeCategories(sb *strings.Builder, summary *model.Summary) {
	if len(summary.Categories) == 0 {
		return
	}

	w.section(sb, "CATEGORIES")
	for _, c := range summary.Categories {
		sb.WriteString(w.printer.Sprintf("  %-28s %5s\n", w.title.String(c.Name), formatScore(c.Score)))
	}
	sb.WriteString("\n")
}

// writeRatings writes the rating counts.
func (w *SimpleWriter) writeRatings(sb *strings.Builder, summary *model.Summary) {
	w.section(sb, "AUDIT SUMMARY")

	sb.WriteString(w.printer.Sprintf("  PASS:     %d\n", summary.PassCount))
	sb.WriteString(w.printer.Sprintf("  AVERAGE:  %d\n", summary.AverageCount))
	sb.WriteString(w.printer.Sprintf("  FAIL:     %d\n", summary.FailCount))
	sb.WriteString(w.printer.Sprintf("  ERROR:    %d\n", summary.ErrorCount))
	sb.WriteString("\n")
	sb.WriteString(w.printer.Sprintf("  TOTAL:    %d audits\n", summary.TotalAudits()))
	sb.WriteString("\n")
}

// writePassed lists audits that passed.
func (w *SimpleWriter) writePassed(sb *strings.Builder, run *model.RunResult) {
	w.section(sb, "PASSED AUDITS")
	for _, a := range run.OrderedAudits() {
		if a.Rating() != model.RatingPass {
			continue
		}
		sb.WriteString(w.printer.Sprintf("  [%s] %s\n", a.Rating().Symbol(), a.Title))
	}
	sb.WriteString("\n")
}

// writeFindings writes every audit that did not pass, worst first.
func (w *SimpleWriter) writeFindings(sb *strings.Builder, summary *model.Summary) {
	w.section(sb, "OPPORTUNITIES")

	if len(summary.Findings) == 0 {
		sb.WriteString("  All audits passed\n\n")
		return
	}

	for _, f := range summary.Findings {
		sb.WriteString(w.printer.Sprintf("  [%s] %s (%s)\n", f.Rating.Symbol(), f.Title, w.title.String(strings.ToLower(f.RatingText))))
		if f.Score != nil {
			sb.WriteString(w.printer.Sprintf("      Score: %s\n", formatScore(f.Score)))
		}
		if f.DisplayValue != "" {
			sb.WriteString(w.printer.Sprintf("      Value: %s\n", f.DisplayValue))
		}
		if f.Detail != "" && (w.verbose || f.Rating == model.RatingError) {
			sb.WriteString(w.printer.Sprintf("      Detail: %s\n", f.Detail))
		}
	}
	sb.WriteString("\n")
}

// writeWarnings writes the run's non-fatal warnings.
func (w *SimpleWriter) writeWarnings(sb *strings.Builder, warnings []string) {
	if len(warnings) == 0 {
		return
	}

	w.section(sb, "WARNINGS")
	for _, msg := range warnings {
		sb.WriteString("  - ")
		sb.WriteString(msg)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
}

// writeTiming writes stage durations in verbose mode.
func (w *SimpleWriter) writeTiming(sb *strings.Builder, timing model.Timing) {
	if !w.verbose || timing.Total == 0 {
		return
	}

	w.section(sb, "TIMING")
	sb.WriteString(w.printer.Sprintf("  Gather:   %d ms\n", timing.Gather.Milliseconds()))
	sb.WriteString(w.printer.Sprintf("  Audit:    %d ms\n", timing.Audit.Milliseconds()))
	sb.WriteString(w.printer.Sprintf("  Total:    %d ms\n", timing.Total.Milliseconds()))
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	w.rule(sb, "=")
	if w.version != "" {
		sb.WriteString("Report generated by lightscan " + w.version + "\n")
	} else {
		sb.WriteString("Report generated by lightscan\n")
	}
	w.rule(sb, "=")
}
