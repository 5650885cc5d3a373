package attach

import (
	"bytes"
	"strings"
	"testing"

	"github.com/openmux/openmux/internal/cellmodel"
)

func TestRowToANSIEmitsSGROnStyleChangeOnly(t *testing.T) {
	red := cellmodel.RGB{R: 255}
	row := cellmodel.Row{
		{Char: 'a', Fg: red, Width: 1},
		{Char: 'b', Fg: red, Width: 1},
		{Char: 'c', Bold: true, Width: 1},
	}
	out := string(rowToANSI(row))

	if strings.Count(out, "\x1b[0") != 3 {
		t.Errorf("expected one SGR sequence per style run (2) plus the trailing reset, got output %q", out)
	}
	if !strings.Contains(out, "ab") || !strings.Contains(out, "mc\x1b[0m") {
		t.Errorf("expected runes preserved in order, got %q", out)
	}
	if !strings.HasSuffix(out, "\x1b[0m") {
		t.Errorf("expected trailing reset, got %q", out)
	}
}

func TestRenderFrameFullStateRepaintsEveryRow(t *testing.T) {
	d := cellmodel.DirtyUpdate{
		IsFull: true,
		Cols:   2,
		Rows:   2,
		FullState: &cellmodel.TerminalState{
			Cols: 2, Rows: 2,
			Cells: []cellmodel.Row{
				{{Char: 'x', Width: 1}, {Char: 'y', Width: 1}},
				{{Char: 'z', Width: 1}, {Char: 'w', Width: 1}},
			},
		},
		Cursor: cellmodel.Cursor{X: 0, Y: 0, Visible: true},
	}
	frame := renderFrame(d)
	if !bytes.Contains(frame, []byte("\x1b[2J")) {
		t.Error("expected a clear-screen sequence for a full repaint")
	}
	if !bytes.Contains(frame, []byte("\x1b[1;1H")) || !bytes.Contains(frame, []byte("\x1b[2;1H")) {
		t.Errorf("expected cursor addressing for both rows, got %q", frame)
	}
}

func TestRenderFrameDirtyRowsOnlyTouchesDirtyLines(t *testing.T) {
	d := cellmodel.DirtyUpdate{
		Cols: 1,
		Rows: 3,
		DirtyRows: map[int]cellmodel.Row{
			1: {{Char: 'm', Width: 1}},
		},
	}
	frame := renderFrame(d)
	if bytes.Contains(frame, []byte("\x1b[1;1H")) {
		t.Error("row 0 was untouched and should not be repainted")
	}
	if !bytes.Contains(frame, []byte("\x1b[2;1H")) {
		t.Error("expected row 1 (1-indexed as row 2) to be repainted")
	}
}
