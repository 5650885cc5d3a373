package inputkeys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestEnterAndAltEnter(t *testing.T) {
	enter := tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModNone)
	if got := EncodeKey(enter, false); string(got) != "\r" {
		t.Errorf("Enter = %q, want CR", got)
	}
	altEnter := tcell.NewEventKey(tcell.KeyEnter, 0, tcell.ModAlt)
	if got := EncodeKey(altEnter, false); string(got) != "\n" {
		t.Errorf("Alt+Enter = %q, want LF", got)
	}
}

func TestBackspaceEmitsDEL(t *testing.T) {
	ev := tcell.NewEventKey(tcell.KeyBackspace2, 0, tcell.ModNone)
	got := EncodeKey(ev, false)
	if len(got) != 1 || got[0] != 0x7f {
		t.Errorf("Backspace = %v, want [0x7f]", got)
	}
}

func TestShiftTabEmitsCSIZ(t *testing.T) {
	ev := tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModShift)
	if got := EncodeKey(ev, false); string(got) != "\x1b[Z" {
		t.Errorf("Shift+Tab = %q, want ESC[Z", got)
	}
}

func TestCtrlLetterEmitsControlByte(t *testing.T) {
	ev := tcell.NewEventKey(tcell.KeyRune, 'a', tcell.ModCtrl)
	got := EncodeKey(ev, false)
	if len(got) != 1 || got[0] != 0x01 {
		t.Errorf("Ctrl+A = %v, want [0x01]", got)
	}
}

func TestArrowKeyRespectsCursorKeyMode(t *testing.T) {
	up := tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModNone)
	if got := EncodeKey(up, false); string(got) != "\x1b[A" {
		t.Errorf("Up (normal mode) = %q, want ESC[A", got)
	}
	if got := EncodeKey(up, true); string(got) != "\x1bOA" {
		t.Errorf("Up (application mode) = %q, want ESC O A", got)
	}
}

func TestArrowKeyWithModifierAlwaysUsesCSI(t *testing.T) {
	up := tcell.NewEventKey(tcell.KeyUp, 0, tcell.ModShift)
	// modCode for Shift alone = 1+1 = 2
	if got := EncodeKey(up, true); string(got) != "\x1b[1;2A" {
		t.Errorf("Shift+Up (application mode) = %q, want ESC[1;2A", got)
	}
}

func TestDeleteKeyTilde(t *testing.T) {
	del := tcell.NewEventKey(tcell.KeyDelete, 0, tcell.ModNone)
	if got := EncodeKey(del, false); string(got) != "\x1b[3~" {
		t.Errorf("Delete = %q, want ESC[3~", got)
	}
}

func TestMouseSGR1006PressAndRelease(t *testing.T) {
	press := EncodeMouseSGR1006(MouseButtonLeft, 10, 5, tcell.ModNone, true)
	if string(press) != "\x1b[<0;10;5M" {
		t.Errorf("press = %q, want ESC[<0;10;5M", press)
	}
	release := EncodeMouseSGR1006(MouseButtonLeft, 10, 5, tcell.ModNone, false)
	if string(release) != "\x1b[<0;10;5m" {
		t.Errorf("release = %q, want ESC[<0;10;5m", release)
	}
}

func TestMouseWheelWithShiftModifier(t *testing.T) {
	got := EncodeMouseSGR1006(MouseWheelUp, 1, 1, tcell.ModShift, true)
	if string(got) != "\x1b[<68;1;1M" {
		t.Errorf("wheel up + shift = %q, want ESC[<68;1;1M", got)
	}
}
