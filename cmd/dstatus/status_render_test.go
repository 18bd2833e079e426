package main

import (
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineColorsOnlyTag(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if !strings.Contains(got, ansiGreen+"[OK]"+ansiReset) {
		t.Fatalf("expected coloured tag, got %q", got)
	}
	if !strings.HasSuffix(got, " Running") {
		t.Fatalf("detail should follow the tag uncoloured, got %q", got)
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"Field", "Value"}, [][]string{{"Details"}, {"State", "Green"}}, nil)
	for _, want := range []string{"Details", "State", "Green"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
	if renderTable(nil, nil, nil) != "" {
		t.Fatal("table without headers should render empty")
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
