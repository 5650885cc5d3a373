package term

import "github.com/openmux/openmux/internal/cellmodel"

// Colors configures the palette a Wrapper reports back through OSC 4 (palette
// entry) and OSC 10/11/12 (foreground/background/cursor) color queries, per
// §6.1's `new(cols, rows, {..., fg?, bg?, cursorColor?, palette?})`.
type Colors struct {
	Fg, Bg, Cursor cellmodel.RGB
	Palette        [16]cellmodel.RGB
}

// DefaultColors is used for a pane that isn't configured with an explicit
// palette: the standard xterm 16-color table plus a light-on-dark default
// foreground/background.
var DefaultColors = Colors{
	Fg:     cellmodel.RGB{R: 0xe5, G: 0xe5, B: 0xe5},
	Bg:     cellmodel.RGB{R: 0x00, G: 0x00, B: 0x00},
	Cursor: cellmodel.RGB{R: 0xe5, G: 0xe5, B: 0xe5},
	Palette: [16]cellmodel.RGB{
		{R: 0x00, G: 0x00, B: 0x00}, {R: 0xcd, G: 0x00, B: 0x00},
		{R: 0x00, G: 0xcd, B: 0x00}, {R: 0xcd, G: 0xcd, B: 0x00},
		{R: 0x00, G: 0x00, B: 0xee}, {R: 0xcd, G: 0x00, B: 0xcd},
		{R: 0x00, G: 0xcd, B: 0xcd}, {R: 0xe5, G: 0xe5, B: 0xe5},
		{R: 0x7f, G: 0x7f, B: 0x7f}, {R: 0xff, G: 0x00, B: 0x00},
		{R: 0x00, G: 0xff, B: 0x00}, {R: 0xff, G: 0xff, B: 0x00},
		{R: 0x5c, G: 0x5c, B: 0xff}, {R: 0xff, G: 0x00, B: 0xff},
		{R: 0x00, G: 0xff, B: 0xff}, {R: 0xff, G: 0xff, B: 0xff},
	},
}

// resolveColors substitutes DefaultColors for a caller-supplied zero value,
// so a PaneConfig that doesn't care about colors doesn't have to spell out
// the default table.
func resolveColors(c Colors) Colors {
	if c == (Colors{}) {
		return DefaultColors
	}
	return c
}
