package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestTable_render(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(&buf, "BRANCH", "AHEAD", "BEHIND")
	tbl.Row("main", 2, 0)
	tbl.Row("feature/x", 0, 5)
	if err := tbl.Flush(); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "BRANCH") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "main") || !strings.Contains(lines[1], "2") {
		t.Errorf("first row = %q", lines[1])
	}
	// Columns should line up: AHEAD starts at the same offset in every line.
	col := strings.Index(lines[0], "AHEAD")
	if col < 0 || strings.Index(lines[1], "2") != col {
		t.Errorf("columns misaligned:\n%s", buf.String())
	}
}

func TestTable_extraValuesTruncated(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(&buf, "A", "B")
	tbl.Row("one", "two", "three")
	if err := tbl.Flush(); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "three") {
		t.Errorf("extra value not dropped: %q", buf.String())
	}
}

func TestTable_headerOnly(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(&buf, "PATH", "KIND")
	if err := tbl.Flush(); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); !strings.Contains(got, "PATH") || strings.Count(got, "\n") != 0 {
		t.Errorf("expected a single header line, got %q", buf.String())
	}
}
