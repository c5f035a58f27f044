// Package ui holds small terminal output helpers for the CLI.
package ui

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Table renders rows in aligned columns. Rows are buffered and written on
// Flush.
type Table struct {
	w    *tabwriter.Writer
	cols int
}

// NewTable creates a table writer and emits the header row.
func NewTable(out io.Writer, headers ...string) *Table {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(headers, "\t"))
	return &Table{w: tw, cols: len(headers)}
}

// Row appends a row. Values beyond the header count are dropped so a stray
// extra argument cannot break the alignment.
func (t *Table) Row(values ...any) {
	if len(values) > t.cols {
		values = values[:t.cols]
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	_, _ = fmt.Fprintln(t.w, strings.Join(parts, "\t"))
}

// Flush writes the buffered output.
func (t *Table) Flush() error {
	return t.w.Flush()
}
