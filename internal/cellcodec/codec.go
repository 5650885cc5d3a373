// Package cellcodec implements the fixed 16-byte little-endian packed cell
// record and the batch row/overlay wire format described in spec §3/§4.1.
// Every decode path here is total: malformed input returns a DecodeError,
// never a partially-built row.
package cellcodec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/openmux/openmux/internal/cellmodel"
)

// CellSize is the fixed wire size of one packed cell record.
const CellSize = 16

// DecodeError reports why a decode path rejected its input.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("cellcodec: %s: %v", e.Op, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

var (
	// ErrLengthMismatch is returned when a byte slice isn't a multiple of
	// CellSize, or doesn't match the row/column count the caller supplied.
	ErrLengthMismatch = errors.New("length does not match expected cell count")
	// ErrOverlayIndexRange is returned when an overlay row-start index
	// points outside the overlay arrays.
	ErrOverlayIndexRange = errors.New("overlay index out of range")
)

// PackCell encodes one cell into dst[0:CellSize]. dst must have length >=
// CellSize.
func PackCell(c cellmodel.Cell, dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(c.Char))
	dst[4] = c.Fg.R
	dst[5] = c.Fg.G
	dst[6] = c.Fg.B
	dst[7] = c.Bg.R
	dst[8] = c.Bg.G
	dst[9] = c.Bg.B
	binary.LittleEndian.PutUint16(dst[10:12], uint16(c.Attrs()))
	dst[12] = c.Width
	binary.LittleEndian.PutUint16(dst[13:15], c.HyperlinkID)
	dst[15] = 0 // reserved
}

// UnpackCell decodes one cell from src[0:CellSize].
func UnpackCell(src []byte) cellmodel.Cell {
	attr := cellmodel.Attr(binary.LittleEndian.Uint16(src[10:12]))
	return cellmodel.Cell{
		Char:          rune(binary.LittleEndian.Uint32(src[0:4])),
		Fg:            cellmodel.RGB{R: src[4], G: src[5], B: src[6]},
		Bg:            cellmodel.RGB{R: src[7], G: src[8], B: src[9]},
		Bold:          attr&cellmodel.AttrBold != 0,
		Italic:        attr&cellmodel.AttrItalic != 0,
		Underline:     attr&cellmodel.AttrUnderline != 0,
		Strikethrough: attr&cellmodel.AttrStrikethrough != 0,
		Inverse:       attr&cellmodel.AttrInverse != 0,
		Blink:         attr&cellmodel.AttrBlink != 0,
		Dim:           attr&cellmodel.AttrDim != 0,
		Width:         src[12],
		HyperlinkID:   binary.LittleEndian.Uint16(src[13:15]),
	}
}

// PackRow encodes a full row to bytes, CellSize bytes per cell in order.
func PackRow(row cellmodel.Row) []byte {
	out := make([]byte, len(row)*CellSize)
	for i, c := range row {
		PackCell(c, out[i*CellSize:(i+1)*CellSize])
	}
	return out
}

// UnpackRow decodes bytes produced by PackRow back into a Row. Round-trip
// property: UnpackRow(PackRow(r)) == r for any row of normalized cells.
func UnpackRow(data []byte) (cellmodel.Row, error) {
	if len(data)%CellSize != 0 {
		return nil, &DecodeError{Op: "UnpackRow", Err: ErrLengthMismatch}
	}
	n := len(data) / CellSize
	row := make(cellmodel.Row, n)
	for i := 0; i < n; i++ {
		row[i] = UnpackCell(data[i*CellSize : (i+1)*CellSize])
	}
	return row, nil
}

// needsOverlay reports whether a cell must be carried in the overlay arrays
// rather than packed inline, per spec §4.1: codepoint > 0x7F, any attribute
// set, or width == 2.
func needsOverlay(c cellmodel.Cell) bool {
	return c.Char > 0x7F || c.Attrs() != 0 || c.Width == 2
}

// appendOverlay pushes one overlay record onto upd's parallel overlay
// arrays. A Codepoint of 0 flags a wide leader's trailing spacer rather than
// a real character, per DecodePacked's reconstruction rule.
func appendOverlay(upd *cellmodel.PackedRowUpdate, x int, rowIndex uint16, codepoint uint32, attrs uint8, fg, bg cellmodel.RGB) {
	upd.OverlayX = append(upd.OverlayX, uint16(x))
	upd.OverlayY = append(upd.OverlayY, rowIndex)
	upd.OverlayCodepoint = append(upd.OverlayCodepoint, codepoint)
	upd.OverlayAttributes = append(upd.OverlayAttributes, attrs)
	upd.OverlayFg = append(upd.OverlayFg, fg.R, fg.G, fg.B, 0)
	upd.OverlayBg = append(upd.OverlayBg, bg.R, bg.G, bg.B, 0)
}

// PackBatch encodes a set of rows into the batch/overlay wire format. Rows
// must all have length cols.
func PackBatch(rows []cellmodel.Row, rowIndices []uint16, cols int) (*cellmodel.PackedRowUpdate, error) {
	if len(rows) != len(rowIndices) {
		return nil, &DecodeError{Op: "PackBatch", Err: ErrLengthMismatch}
	}
	upd := &cellmodel.PackedRowUpdate{
		Cols:             cols,
		RowIndices:       append([]uint16(nil), rowIndices...),
		Data:             make([]byte, len(rows)*cols*CellSize),
		OverlayRowStarts: make([]uint32, len(rows)+1),
	}

	for ri, row := range rows {
		if len(row) != cols {
			return nil, &DecodeError{Op: "PackBatch", Err: ErrLengthMismatch}
		}
		base := ri * cols * CellSize
		forceSpacer := false
		for x, c := range row {
			dst := upd.Data[base+x*CellSize : base+(x+1)*CellSize]
			switch {
			case needsOverlay(c):
				space := cellmodel.Cell{Char: ' ', Fg: c.Fg, Bg: c.Bg}
				PackCell(space, dst)
				appendOverlay(upd, x, rowIndices[ri], uint32(c.Char), uint8(c.Attrs()), c.Fg, c.Bg)
				forceSpacer = c.Width == 2
			case forceSpacer:
				// Trailing spacer of the wide leader just overlaid. It
				// wouldn't qualify for the overlay on its own, but
				// DecodePacked needs the Codepoint==0 flag entry right
				// after the leader to recover Width==2.
				PackCell(c, dst)
				appendOverlay(upd, x, rowIndices[ri], 0, uint8(c.Attrs()), c.Fg, c.Bg)
				forceSpacer = false
			default:
				PackCell(c, dst)
			}
		}
		upd.OverlayRowStarts[ri+1] = uint32(len(upd.OverlayX))
	}

	return upd, nil
}

// PackedRowBatchBuffer is the decode-side view of a PackedRowUpdate: the
// same fields, named for symmetry with spec §4.1's DecodePacked signature.
type PackedRowBatchBuffer = cellmodel.PackedRowUpdate

// DecodePacked reverses PackBatch, reconstructing wide-leader/spacer pairs
// by observing an overlay entry with Codepoint == 0 immediately after a
// leader (width == 2) overlay entry at x, x+1 for the same row.
func DecodePacked(buf *PackedRowBatchBuffer, cols int) ([]cellmodel.Row, error) {
	if buf == nil {
		return nil, &DecodeError{Op: "DecodePacked", Err: errors.New("nil buffer")}
	}
	if len(buf.Data) != len(buf.RowIndices)*cols*CellSize {
		return nil, &DecodeError{Op: "DecodePacked", Err: ErrLengthMismatch}
	}
	if len(buf.OverlayRowStarts) != len(buf.RowIndices)+1 {
		return nil, &DecodeError{Op: "DecodePacked", Err: ErrLengthMismatch}
	}

	rows := make([]cellmodel.Row, len(buf.RowIndices))
	for ri := range buf.RowIndices {
		base := ri * cols * CellSize
		row, err := UnpackRow(buf.Data[base : base+cols*CellSize])
		if err != nil {
			return nil, err
		}

		start, end := buf.OverlayRowStarts[ri], buf.OverlayRowStarts[ri+1]
		if int(end) > len(buf.OverlayX) || int(start) > int(end) {
			return nil, &DecodeError{Op: "DecodePacked", Err: ErrOverlayIndexRange}
		}
		for oi := start; oi < end; oi++ {
			x := int(buf.OverlayX[oi])
			if x >= cols {
				return nil, &DecodeError{Op: "DecodePacked", Err: ErrOverlayIndexRange}
			}
			cp := buf.OverlayCodepoint[oi]
			attr := cellmodel.Attr(buf.OverlayAttributes[oi])
			fg := cellmodel.RGB{R: buf.OverlayFg[oi*4], G: buf.OverlayFg[oi*4+1], B: buf.OverlayFg[oi*4+2]}
			bg := cellmodel.RGB{R: buf.OverlayBg[oi*4], G: buf.OverlayBg[oi*4+1], B: buf.OverlayBg[oi*4+2]}
			if cp == 0 {
				// Trailing spacer of the previous wide leader.
				row[x] = cellmodel.Cell{Char: ' ', Fg: bg, Bg: bg, Width: 1}
				continue
			}
			width := uint8(1)
			if oi+1 < end && buf.OverlayCodepoint[oi+1] == 0 && int(buf.OverlayX[oi+1]) == x+1 {
				width = 2
			}
			row[x] = cellmodel.Cell{
				Char:          rune(cp),
				Fg:            fg,
				Bg:            bg,
				Width:         width,
				Bold:          attr&cellmodel.AttrBold != 0,
				Italic:        attr&cellmodel.AttrItalic != 0,
				Underline:     attr&cellmodel.AttrUnderline != 0,
				Strikethrough: attr&cellmodel.AttrStrikethrough != 0,
				Inverse:       attr&cellmodel.AttrInverse != 0,
				Blink:         attr&cellmodel.AttrBlink != 0,
				Dim:           attr&cellmodel.AttrDim != 0,
			}
		}
		rows[ri] = row
	}
	return rows, nil
}
