// Package inputkeys encodes keyboard and mouse events into the xterm/SGR
// escape sequences a PTY expects, per spec §6.3. DECCKM (cursor key mode)
// governs whether unmodified arrow keys use SS3 (application mode) or CSI
// (normal mode); modifier keys always use the CSI "1;<mod>" form regardless
// of DECCKM, matching xterm.
//
// Grounded on internal/tui/tcell_tui.go's handleKey forward-to-PTY switch
// (the same tcell.Key -> literal escape byte mapping for Enter/Backspace/
// Tab/Escape/arrows/Delete/Insert/PgUp/PgDn/Home/End), generalized from
// that switch's fixed, DECCKM-unaware, modifier-unaware byte literals into
// the spec's full modifier-code and cursor-key-mode-aware table.
package inputkeys

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// modifierCode computes the xterm SGR modifier parameter: 1 + sum of bit
// values (shift=1, alt=2, ctrl=4, meta=8). Returns 0 when no modifier is
// held (callers omit the ";<mod>" segment entirely in that case).
func modifierCode(mod tcell.ModMask) int {
	code := 0
	if mod&tcell.ModShift != 0 {
		code |= 1
	}
	if mod&tcell.ModAlt != 0 {
		code |= 2
	}
	if mod&tcell.ModCtrl != 0 {
		code |= 4
	}
	if mod&tcell.ModMeta != 0 {
		code |= 8
	}
	if code == 0 {
		return 0
	}
	return code + 1
}

// EncodeKey returns the byte sequence to send to the PTY for a key event.
// cursorKeyMode is DECCKM's current state (true = application mode).
func EncodeKey(ev *tcell.EventKey, cursorKeyMode bool) []byte {
	mod := ev.Modifiers()
	modCode := modifierCode(mod)

	switch ev.Key() {
	case tcell.KeyEnter:
		if mod&tcell.ModAlt != 0 {
			return []byte{'\n'}
		}
		return []byte{'\r'}
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		return []byte{0x7f}
	case tcell.KeyTab:
		if mod&tcell.ModShift != 0 {
			return []byte{0x1b, '[', 'Z'}
		}
		return []byte{'\t'}
	case tcell.KeyEscape:
		return []byte{0x1b}
	case tcell.KeyUp:
		return cursorKey('A', cursorKeyMode, modCode)
	case tcell.KeyDown:
		return cursorKey('B', cursorKeyMode, modCode)
	case tcell.KeyRight:
		return cursorKey('C', cursorKeyMode, modCode)
	case tcell.KeyLeft:
		return cursorKey('D', cursorKeyMode, modCode)
	case tcell.KeyHome:
		return cursorKey('H', cursorKeyMode, modCode)
	case tcell.KeyEnd:
		return cursorKey('F', cursorKeyMode, modCode)
	case tcell.KeyDelete:
		return tildeKey(3, modCode)
	case tcell.KeyInsert:
		return tildeKey(2, modCode)
	case tcell.KeyPgUp:
		return tildeKey(5, modCode)
	case tcell.KeyPgDn:
		return tildeKey(6, modCode)
	case tcell.KeyF1, tcell.KeyF2, tcell.KeyF3, tcell.KeyF4:
		return functionKeySS3(ev.Key(), modCode)
	case tcell.KeyF5, tcell.KeyF6, tcell.KeyF7, tcell.KeyF8,
		tcell.KeyF9, tcell.KeyF10, tcell.KeyF11, tcell.KeyF12:
		return functionKeyTilde(ev.Key(), modCode)
	case tcell.KeyRune:
		if mod&tcell.ModCtrl != 0 {
			if b, ok := ctrlByte(ev.Rune()); ok {
				return []byte{b}
			}
		}
		return []byte(string(ev.Rune()))
	}
	return nil
}

// cursorKey encodes an arrow/Home/End key. Unmodified + application mode
// uses SS3 (ESC O <final>); everything else uses CSI, with a ";<mod>"
// parameter when a modifier is held.
func cursorKey(final byte, cursorKeyMode bool, modCode int) []byte {
	if modCode == 0 && cursorKeyMode {
		return []byte{0x1b, 'O', final}
	}
	if modCode == 0 {
		return []byte{0x1b, '[', final}
	}
	return []byte(fmt.Sprintf("\x1b[1;%d%c", modCode, final))
}

// tildeKey encodes a CSI "<n>~" style key (Delete, Insert, PgUp, PgDn),
// with an optional ";<mod>" parameter.
func tildeKey(n, modCode int) []byte {
	if modCode == 0 {
		return []byte(fmt.Sprintf("\x1b[%d~", n))
	}
	return []byte(fmt.Sprintf("\x1b[%d;%d~", n, modCode))
}

func functionKeySS3(key tcell.Key, modCode int) []byte {
	final := byte('P' + int(key-tcell.KeyF1))
	if modCode == 0 {
		return []byte{0x1b, 'O', final}
	}
	return []byte(fmt.Sprintf("\x1b[1;%d%c", modCode, final))
}

var f5to12Codes = map[tcell.Key]int{
	tcell.KeyF5: 15, tcell.KeyF6: 17, tcell.KeyF7: 18, tcell.KeyF8: 19,
	tcell.KeyF9: 20, tcell.KeyF10: 21, tcell.KeyF11: 23, tcell.KeyF12: 24,
}

func functionKeyTilde(key tcell.Key, modCode int) []byte {
	n := f5to12Codes[key]
	return tildeKey(n, modCode)
}

// ctrlByte maps a letter to its control byte (Ctrl+A = 0x01 .. Ctrl+Z =
// 0x1a); non-letters return ok=false.
func ctrlByte(r rune) (byte, bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return byte(r-'a') + 1, true
	case r >= 'A' && r <= 'Z':
		return byte(r-'A') + 1, true
	}
	return 0, false
}

// MouseButton identifies which button an SGR mouse report describes.
type MouseButton int

const (
	MouseButtonLeft MouseButton = iota
	MouseButtonMiddle
	MouseButtonRight
	MouseButtonRelease
	MouseWheelUp
	MouseWheelDown
	MouseMove
)

// EncodeMouseSGR1006 produces an SGR 1006 mouse report: "ESC [ < Cb ; Cx ;
// Cy M" for press/motion, "...m" for release. x/y are 1-based.
func EncodeMouseSGR1006(button MouseButton, x, y int, mod tcell.ModMask, pressed bool) []byte {
	cb := sgrButtonCode(button)
	if mod&tcell.ModShift != 0 {
		cb |= 4
	}
	if mod&tcell.ModAlt != 0 {
		cb |= 8
	}
	if mod&tcell.ModCtrl != 0 {
		cb |= 16
	}
	final := byte('M')
	if !pressed {
		final = 'm'
	}
	return []byte(fmt.Sprintf("\x1b[<%d;%d;%d%c", cb, x, y, final))
}

func sgrButtonCode(b MouseButton) int {
	switch b {
	case MouseButtonLeft:
		return 0
	case MouseButtonMiddle:
		return 1
	case MouseButtonRight:
		return 2
	case MouseButtonRelease:
		return 3
	case MouseWheelUp:
		return 64
	case MouseWheelDown:
		return 65
	case MouseMove:
		return 32
	}
	return 0
}
