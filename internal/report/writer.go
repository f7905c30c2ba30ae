package report

import (
	"io"
)

// Writer defines the interface for report output.
// Implementations write exchange and pool reports in various formats.
//
// Design decision: We use an interface to allow different output formats
// and destinations. This enables writing to files, stdout, or network
// connections with the same API.
type Writer interface {
	// WriteExchange outputs an exchange report to the configured destination.
	// Returns the number of bytes written and any error encountered.
	WriteExchange(report *ExchangeReport) (int, error)

	// WritePool outputs a pool summary report.
	WritePool(report *PoolReport) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
//
// Design decision: We implement this as a separate type rather than
// using io.MultiWriter because our Writer interface is different
// from io.Writer - we write reports, not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteExchange outputs the exchange report to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) WriteExchange(report *ExchangeReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteExchange(report)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WritePool outputs the pool report to all configured Writers.
func (m *MultiWriter) WritePool(report *PoolReport) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WritePool(report)
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
