package report

import (
	"encoding/json"
	"io"

	"github.com/math15/visagate/internal/model"
)

// JSONWriter outputs reports in JSON format.
// This format is designed for tool integration and programmatic processing.
//
// Design decision: We use standard encoding/json rather than a third-party
// JSON library because:
// 1. It's part of the standard library (no extra dependencies)
// 2. It's sufficient for our needs
// 3. It provides consistent behavior across Go versions
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	// When false, output is compact (no extra whitespace).
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
// This is a convenience wrapper for WithIndent("", "  ").
func WithPrettyPrint() JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = ""
		w.indentString = "  "
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter:   newBaseWriter(output),
		indent:       false,
		indentPrefix: "",
		indentString: "",
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// WriteExchange outputs the exchange report in JSON format.
func (w *JSONWriter) WriteExchange(report *ExchangeReport) (int, error) {
	syncFailureReasons(report)
	return w.writeJSON(report)
}

// WritePool outputs the pool report in JSON format.
func (w *JSONWriter) WritePool(report *PoolReport) (int, error) {
	return w.writeJSON(report)
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v interface{}) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	// Add trailing newline for better terminal output
	data = append(data, '\n')

	return w.output.Write(data)
}

// syncFailureReasons fills each outcome's serialized failure reason from its
// failure class. The class itself is not serialized; the string form is.
func syncFailureReasons(report *ExchangeReport) {
	for _, o := range report.Outcomes {
		if o.FailureReason == "" && o.Failure != model.FailureNone {
			o.FailureReason = o.Failure.String()
		}
	}
}

// JSONEnvelope wraps a report with version metadata for complete output.
//
// Design decision: We wrap the report rather than adding version fields to
// the report types because this allows output-specific metadata without
// polluting the core data structures.
type JSONEnvelope struct {
	// Version is the visagate version that generated this report.
	Version string `json:"version"`

	// Exchange is the exchange report, if this envelope carries one.
	Exchange *ExchangeReport `json:"exchange,omitempty"`

	// Pool is the pool report, if this envelope carries one.
	Pool *PoolReport `json:"pool,omitempty"`
}

// FullJSONWriter outputs reports wrapped with version metadata.
type FullJSONWriter struct {
	*JSONWriter

	// version is the visagate version string.
	version string
}

// NewFullJSONWriter creates a writer for reports with metadata.
func NewFullJSONWriter(output io.Writer, version string, opts ...JSONWriterOption) *FullJSONWriter {
	return &FullJSONWriter{
		JSONWriter: NewJSONWriter(output, opts...),
		version:    version,
	}
}

// WriteExchange outputs the exchange report wrapped with metadata.
func (w *FullJSONWriter) WriteExchange(report *ExchangeReport) (int, error) {
	syncFailureReasons(report)
	return w.writeJSON(&JSONEnvelope{Version: w.version, Exchange: report})
}

// WritePool outputs the pool report wrapped with metadata.
func (w *FullJSONWriter) WritePool(report *PoolReport) (int, error) {
	return w.writeJSON(&JSONEnvelope{Version: w.version, Pool: report})
}
