package report

import (
	"fmt"
	"io"

	"github.com/nao1215/lightscan/internal/config"
	"github.com/nao1215/lightscan/internal/model"
)

// Writer defines the interface for report output.
// Implementations write run results in various formats.
type Writer interface {
	// Write outputs the full run result to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(run *model.RunResult) (int, error)

	// WriteSummary outputs only the condensed summary.
	WriteSummary(summary *model.Summary) (int, error)
}

// NewWriter returns the writer for one of config.OutputFormats.
func NewWriter(format string, output io.Writer, version string) (Writer, error) {
	switch format {
	case config.OutputJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case config.OutputMarkdown:
		return NewMarkdownWriter(output, version), nil
	case config.OutputText:
		return NewSimpleWriter(output, WithVersion(version)), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidOutputFormat, format)
	}
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the run result to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(run *model.RunResult) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(run)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteSummary outputs the summary to all configured Writers.
func (m *MultiWriter) WriteSummary(summary *model.Summary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteSummary(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
