// Package cli provides output formatting shared by the hub's terminal
// commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// Formatter renders a command result to a writer.
type Formatter interface {
	FormatTo(w io.Writer, data any) error
}

// TextFormatter renders key/value maps as aligned "key: value" lines and
// everything else via fmt.
type TextFormatter struct{}

// FormatTo implements Formatter.
func (f *TextFormatter) FormatTo(w io.Writer, data any) error {
	m, ok := data.(map[string]any)
	if !ok {
		_, err := fmt.Fprintln(w, data)
		return err
	}

	keys := make([]string, 0, len(m))
	width := 0
	for k := range m {
		keys = append(keys, k)
		if len(k) > width {
			width = len(k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%-*s  %v\n", width+1, k+":", m[k]); err != nil {
			return err
		}
	}
	return nil
}

// JSONFormatter renders indented JSON.
type JSONFormatter struct{}

// FormatTo implements Formatter.
func (f *JSONFormatter) FormatTo(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// NewFormatter returns the formatter for the given format, defaulting to
// text for anything unrecognised.
func NewFormatter(format OutputFormat) Formatter {
	if format == FormatJSON {
		return &JSONFormatter{}
	}
	return &TextFormatter{}
}
