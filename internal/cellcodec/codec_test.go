package cellcodec

import (
	"testing"

	"github.com/openmux/openmux/internal/cellmodel"
)

func TestPackUnpackRowRoundTrip(t *testing.T) {
	row := cellmodel.Row{
		{Char: 'a', Fg: cellmodel.RGB{R: 1, G: 2, B: 3}, Bg: cellmodel.RGB{R: 4, G: 5, B: 6}, Width: 1},
		{Char: 'b', Bold: true, Underline: true, Width: 1},
		{Char: ' ', Width: 1},
	}

	packed := PackRow(row)
	if len(packed) != len(row)*CellSize {
		t.Fatalf("packed length = %d, want %d", len(packed), len(row)*CellSize)
	}

	got, err := UnpackRow(packed)
	if err != nil {
		t.Fatalf("UnpackRow: %v", err)
	}
	if len(got) != len(row) {
		t.Fatalf("unpacked length = %d, want %d", len(got), len(row))
	}
	for i := range row {
		if got[i] != row[i] {
			t.Errorf("cell %d = %+v, want %+v", i, got[i], row[i])
		}
	}
}

func TestUnpackRowRejectsBadLength(t *testing.T) {
	if _, err := UnpackRow(make([]byte, CellSize+1)); err == nil {
		t.Fatal("expected error for non-multiple-of-CellSize input")
	}
}

func TestPackBatchWideCellRoundTrip(t *testing.T) {
	cols := 4
	row := cellmodel.Row{
		{Char: '中', Width: 2},
		cellmodel.SpacerFor(cellmodel.RGB{}),
		{Char: 'x', Width: 1},
		{Char: ' ', Width: 1},
	}

	upd, err := PackBatch([]cellmodel.Row{row}, []uint16{0}, cols)
	if err != nil {
		t.Fatalf("PackBatch: %v", err)
	}
	if len(upd.OverlayX) == 0 {
		t.Fatal("expected wide cell to be pushed to overlay arrays")
	}

	decoded, err := DecodePacked(upd, cols)
	if err != nil {
		t.Fatalf("DecodePacked: %v", err)
	}
	if len(decoded) != 1 || len(decoded[0]) != cols {
		t.Fatalf("decoded shape = %d rows, want 1x%d", len(decoded), cols)
	}
	if decoded[0][0].Char != '中' || decoded[0][0].Width != 2 {
		t.Errorf("leader = %+v, want wide '中'", decoded[0][0])
	}
	if decoded[0][1].Char != ' ' || decoded[0][1].Width != 1 {
		t.Errorf("spacer = %+v, want width-1 space", decoded[0][1])
	}
	if decoded[0][2].Char != 'x' {
		t.Errorf("cell 2 = %+v, want 'x'", decoded[0][2])
	}
}

func TestPackBatchRejectsRowCountMismatch(t *testing.T) {
	_, err := PackBatch([]cellmodel.Row{{{Char: 'a', Width: 1}}}, nil, 1)
	if err == nil {
		t.Fatal("expected error for row/index length mismatch")
	}
}

func TestDecodePackedRejectsBadShape(t *testing.T) {
	bad := &PackedRowBatchBuffer{Cols: 2, RowIndices: []uint16{0}, Data: make([]byte, CellSize)}
	if _, err := DecodePacked(bad, 2); err == nil {
		t.Fatal("expected error for data length not matching cols*CellSize*rows")
	}
}
