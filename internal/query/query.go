// Package query implements the streaming VT query-passthrough filter: it
// scans untrusted PTY output for terminal-status queries (CPR, DA, DECRQM,
// Kitty keyboard, XTWINOPS, XTGETTCAP, DECRQSS, OSC color queries) and Kitty
// APC graphics sequences, answers the former itself, and forwards
// everything else to the downstream emulator unchanged.
//
// This is a hand-rolled byte-oriented scanner rather than a wrapped
// library: no example in the pack exposes a VT *query* parser as a
// reusable package, and the chunk-boundary-safety requirement (never split
// a multi-byte escape across two Process calls) is specific enough to this
// spec that adapting a general ANSI tokenizer would cost more than it saves.
package query

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// Limits on how much of a partial sequence is retained across calls before
// it is given up on and flushed downstream unchanged.
const (
	MaxPartialStandard = 8 * 1024
	MaxPartialKitty     = 8 * 1024 * 1024
)

// CursorPos is the emulator's reported cursor position, 0-based.
type CursorPos struct {
	Row, Col int
}

// Responder answers queries that need live emulator state. The filter
// calls these synchronously while scanning, so they must not block.
type Responder interface {
	CursorPosition() CursorPos
	PrimaryDeviceAttributes() string
	SecondaryDeviceAttributes() string
	TertiaryDeviceAttributes() string
	ReportMode(mode int, ansi bool) (state int) // 0 unknown,1 set,2 reset,3 permSet,4 permReset
	CellPixelSize() (cellW, cellH int)
	WindowPixelSize() (w, h int)
	WindowCharSize() (cols, rows int)
	OSCColor(which int, index int) (r, g, b uint8, ok bool)
}

// KittyHandler is offered each complete Kitty APC graphics sequence. It may
// rewrite the sequence (e.g. remap a guest image id to a host id) before
// it's forwarded to the host's real output; the delete flag lets the
// cache-pruning rule in Filter.forgetKitty run.
type KittyHandler interface {
	HandleAPC(raw []byte) (rewritten []byte)
}

// Filter is a streaming scanner holding the partial-sequence buffer and the
// Kitty transmit cache for one PTY.
type Filter struct {
	responder Responder
	kitty     KittyHandler

	partial     []byte
	inKitty     bool
	kittyBuf    []byte

	transmitCache map[string]kittyTransmit
	imageInfo     map[string]map[string]kittyPlacement // screen ("main"/"alt") -> key -> placement
}

type kittyTransmit struct {
	ID   string
	Data []byte
}

type kittyPlacement struct {
	ImageID string
	X, Y    int
}

// New creates a Filter. responder must not be nil; kitty may be nil if
// Kitty graphics passthrough isn't needed.
func New(responder Responder, kitty KittyHandler) *Filter {
	return &Filter{
		responder:     responder,
		kitty:         kitty,
		transmitCache: make(map[string]kittyTransmit),
		imageInfo:     map[string]map[string]kittyPlacement{"main": {}, "alt": {}},
	}
}

// Result is the output of one Process call.
type Result struct {
	// ToEmulator is the bytes (with queries stripped) to feed to the
	// downstream emulator.
	ToEmulator []byte
	// ToHost is the bytes (query replies, rewritten Kitty sequences) to
	// write back to the PTY's real output.
	ToHost []byte
}

// Process scans one chunk of PTY output, answering recognized queries and
// passing everything else through.
func (f *Filter) Process(chunk []byte) Result {
	data := chunk
	if len(f.partial) > 0 {
		data = append(append([]byte(nil), f.partial...), chunk...)
		f.partial = nil
	}

	var toEmu, toHost bytes.Buffer
	i := 0
	for i < len(data) {
		if f.inKitty {
			consumed, done, reply := f.feedKitty(data[i:])
			i += consumed
			if reply != nil {
				toHost.Write(reply)
			}
			if !done {
				break
			}
			continue
		}

		b := data[i]
		if !isEscapeLead(b) {
			toEmu.WriteByte(b)
			i++
			continue
		}

		matched, consumed, reply, toEmulator, needMore := f.tryMatch(data[i:])
		if needMore {
			limit := MaxPartialStandard
			if looksLikeKittyStart(data[i:]) {
				limit = MaxPartialKitty
			}
			if len(data)-i > limit {
				// Overflow: give up waiting, flush unchanged.
				toEmu.Write(data[i:])
				i = len(data)
				break
			}
			f.partial = append([]byte(nil), data[i:]...)
			i = len(data)
			break
		}
		if !matched {
			toEmu.WriteByte(b)
			i++
			continue
		}

		if reply != nil {
			toHost.Write(reply)
		}
		toEmu.Write(toEmulator)
		i += consumed
	}

	return Result{ToEmulator: toEmu.Bytes(), ToHost: toHost.Bytes()}
}

func isEscapeLead(b byte) bool {
	switch b {
	case 0x1B, 0x9B, 0x9D, 0x90, 0x9F:
		return true
	}
	return false
}

func looksLikeKittyStart(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0x1B, '_'}) || (len(data) > 0 && data[0] == 0x9F)
}

// tryMatch attempts each parser against data (which starts at an escape
// lead byte). Returns whether a query was matched, how many bytes it
// consumed, the reply to write to the host (if any), the bytes to forward
// to the emulator in place of the consumed input (usually empty for a
// matched query, or the consumed bytes themselves if the sequence is
// "unsupported, consume silently"), and whether more input is needed to
// decide.
func (f *Filter) tryMatch(data []byte) (matched bool, consumed int, reply, toEmulator []byte, needMore bool) {
	if bytes.HasPrefix(data, []byte{0x1B, '_'}) || (len(data) > 0 && data[0] == 0x9F) {
		f.inKitty = true
		f.kittyBuf = f.kittyBuf[:0]
		prefixLen := 2
		if data[0] == 0x9F {
			prefixLen = 1
		}
		c, _, reply := f.feedKitty(data[prefixLen:])
		// Whether or not the sequence completed, every byte offered was
		// consumed: feedKitty either dispatched it or buffered it onto
		// f.kittyBuf, and f.inKitty carries the continuation to the next
		// Process call. No partial-buffer bookkeeping needed here.
		return true, prefixLen + c, reply, nil, false
	}

	if consumed, body, final, ok := splitCSI(data); ok {
		return f.matchCSI(body, final, consumed)
	}
	if consumed, body, ok := splitOSC(data); ok {
		return f.matchOSC(body, consumed)
	}
	if consumed, body, ok := splitDCS(data); ok {
		return f.matchDCS(body, consumed)
	}

	// Not enough bytes yet to know which family this is, or a CSI/OSC/DCS
	// whose terminator has not arrived yet: wait for more input.
	if len(data) < 2 || data[0] == 0x9B || data[0] == 0x9D || data[0] == 0x90 ||
		data[1] == '[' || data[1] == ']' || data[1] == 'P' {
		return false, 0, nil, nil, true
	}
	return false, 0, nil, nil, false
}

// splitCSI recognizes `ESC [ ... final` or the C1 form (0x9B ... final),
// where final is a byte in 0x40-0x7E. Returns the full consumed length and
// the body (without lead/final).
func splitCSI(data []byte) (consumed int, body []byte, final byte, ok bool) {
	lead := 0
	if data[0] == 0x1B {
		if len(data) < 2 || data[1] != '[' {
			return 0, nil, 0, false
		}
		lead = 2
	} else if data[0] == 0x9B {
		lead = 1
	} else {
		return 0, nil, 0, false
	}
	for i := lead; i < len(data); i++ {
		if data[i] >= 0x40 && data[i] <= 0x7E {
			return i + 1, data[lead:i], data[i], true
		}
	}
	return 0, nil, 0, false
}

func splitOSC(data []byte) (consumed int, body []byte, ok bool) {
	lead := 0
	if data[0] == 0x1B {
		if len(data) < 2 || data[1] != ']' {
			return 0, nil, false
		}
		lead = 2
	} else if data[0] == 0x9D {
		lead = 1
	} else {
		return 0, nil, false
	}
	for i := lead; i < len(data); i++ {
		if data[i] == 0x07 {
			return i + 1, data[lead:i], true
		}
		if data[i] == 0x1B && i+1 < len(data) && data[i+1] == '\\' {
			return i + 2, data[lead:i], true
		}
	}
	return 0, nil, false
}

func splitDCS(data []byte) (consumed int, body []byte, ok bool) {
	lead := 0
	if data[0] == 0x1B {
		if len(data) < 2 || data[1] != 'P' {
			return 0, nil, false
		}
		lead = 2
	} else if data[0] == 0x90 {
		lead = 1
	} else {
		return 0, nil, false
	}
	for i := lead; i < len(data); i++ {
		if data[i] == 0x1B && i+1 < len(data) && data[i+1] == '\\' {
			return i + 2, data[lead:i], true
		}
	}
	return 0, nil, false
}

// matchCSI handles CSI-prefixed queries: CPR, extended CPR, device status,
// DA1/2/3, XTVERSION, DECRQM, Kitty keyboard, XTWINOPS.
func (f *Filter) matchCSI(body []byte, term byte, full int) (matched bool, consumed int, reply, toEmulator []byte, needMore bool) {
	switch {
	case term == 'n' && string(body) == "6":
		pos := f.responder.CursorPosition()
		return true, full, []byte(fmt.Sprintf("\x1b[%d;%dR", pos.Row+1, pos.Col+1)), nil, false
	case term == 'n' && string(body) == "?6":
		pos := f.responder.CursorPosition()
		return true, full, []byte(fmt.Sprintf("\x1b[?%d;%d;0R", pos.Row+1, pos.Col+1)), nil, false
	case term == 'n' && string(body) == "5":
		return true, full, []byte("\x1b[0n"), nil, false
	case term == 'c' && (len(body) == 0 || string(body) == "0"):
		return true, full, []byte(f.responder.PrimaryDeviceAttributes()), nil, false
	case term == 'c' && (string(body) == ">" || string(body) == ">0"):
		return true, full, []byte(f.responder.SecondaryDeviceAttributes()), nil, false
	case term == 'c' && (string(body) == "=" || string(body) == "=0"):
		return true, full, []byte(f.responder.TertiaryDeviceAttributes()), nil, false
	case term == 'q' && (string(body) == ">" || string(body) == ">0"):
		return true, full, []byte("\x1bP>|openmux(1.0.0)\x1b\\"), nil, false
	case term == 'p' && len(body) > 0 && body[0] == '?' && bytes.HasSuffix(body, []byte("$")):
		mode := parseIntDefault(string(body[1:len(body)-1]), -1)
		if mode < 0 {
			return true, full, []byte("\x1b[?0;0$y"), nil, false
		}
		state := f.responder.ReportMode(mode, false)
		return true, full, []byte(fmt.Sprintf("\x1b[?%d;%d$y", mode, state)), nil, false
	case term == 'u' && string(body) == "?":
		return true, full, []byte("\x1b[?0u"), nil, false
	case term == 't' && (string(body) == "14" || string(body) == "16" || string(body) == "18"):
		return f.matchXTWINOPS(string(body), full)
	case term == 't':
		// Unsupported window manipulation: consume silently.
		return true, full, nil, nil, false
	}
	return false, 0, nil, nil, false
}

func (f *Filter) matchXTWINOPS(op string, full int) (bool, int, []byte, []byte, bool) {
	switch op {
	case "14":
		w, h := f.responder.WindowPixelSize()
		return true, full, []byte(fmt.Sprintf("\x1b[4;%d;%dt", h, w)), nil, false
	case "16":
		cw, ch := f.responder.CellPixelSize()
		return true, full, []byte(fmt.Sprintf("\x1b[6;%d;%dt", ch, cw)), nil, false
	case "18":
		cols, rows := f.responder.WindowCharSize()
		return true, full, []byte(fmt.Sprintf("\x1b[8;%d;%dt", rows, cols)), nil, false
	}
	return false, 0, nil, nil, false
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// matchOSC handles OSC 4/10/11/12/52 color queries. body arrives with its
// terminator (BEL or ST) already stripped by splitOSC.
func (f *Filter) matchOSC(body []byte, full int) (matched bool, consumed int, reply, toEmulator []byte, needMore bool) {
	s := string(body)

	switch {
	case hasOSCQueryPrefix(s, "4;"):
		idx, ok := oscIndex(s, "4;")
		if !ok {
			return false, 0, nil, nil, false
		}
		r, g, b, ok := f.responder.OSCColor(4, idx)
		if !ok {
			return true, full, nil, nil, false
		}
		return true, full, []byte(fmt.Sprintf("\x1b]4;%d;rgb:%02x/%02x/%02x\x07", idx, r, g, b)), nil, false
	case s == "10;?":
		return oscColorReply(f, 10, 0, full)
	case s == "11;?":
		return oscColorReply(f, 11, 0, full)
	case s == "12;?":
		return oscColorReply(f, 12, 0, full)
	case len(s) > 3 && s[:3] == "52;":
		// OSC 52 query: security-sensitive, respond with nothing.
		return true, full, nil, nil, false
	}
	return false, 0, nil, nil, false
}

func oscColorReply(f *Filter, which, index, full int) (bool, int, []byte, []byte, bool) {
	r, g, b, ok := f.responder.OSCColor(which, index)
	if !ok {
		return true, full, nil, nil, false
	}
	return true, full, []byte(fmt.Sprintf("\x1b]%d;rgb:%02x/%02x/%02x\x07", which, r, g, b)), nil, false
}

func hasOSCQueryPrefix(s, prefix string) bool {
	return len(s) > len(prefix) && s[:len(prefix)] == prefix && s[len(s)-1] == '?'
}

func oscIndex(s, prefix string) (int, bool) {
	rest := s[len(prefix) : len(s)-2] // strip prefix and trailing ";?"
	n := parseIntDefault(rest, -1)
	if n < 0 {
		return 0, false
	}
	return n, true
}

// matchDCS handles XTGETTCAP and DECRQSS.
func (f *Filter) matchDCS(body []byte, full int) (matched bool, consumed int, reply, toEmulator []byte, needMore bool) {
	s := string(body)

	if len(s) >= 2 && s[:2] == "+q" {
		return true, full, []byte("\x1bP0+r\x1b\\"), nil, false
	}
	if len(s) >= 2 && s[:2] == "$q" {
		return true, full, []byte("\x1bP0$r\x1b\\"), nil, false
	}
	return false, 0, nil, nil, false
}

// feedKitty accumulates bytes for the current Kitty APC sequence. Returns
// how many bytes of data were consumed, whether the sequence completed, and
// - once it has - the framed reply (if any) to write to the host's real
// output.
func (f *Filter) feedKitty(data []byte) (consumed int, done bool, reply []byte) {
	for i := 0; i < len(data); i++ {
		if data[i] == 0x1B && i+1 < len(data) && data[i+1] == '\\' {
			f.kittyBuf = append(f.kittyBuf, data[:i]...)
			f.inKitty = false
			reply = f.dispatchKitty(f.kittyBuf)
			f.kittyBuf = nil
			return i + 2, true, reply
		}
	}
	f.kittyBuf = append(f.kittyBuf, data...)
	return len(data), false, nil
}

// dispatchKitty hands a complete APC payload to the graphics handler and, if
// it rewrote the sequence, re-frames the result as an APC escape sequence
// ready to be written to the host's real output.
func (f *Filter) dispatchKitty(raw []byte) []byte {
	if f.kitty == nil {
		return nil
	}
	rewritten := f.kitty.HandleAPC(raw)
	if rewritten == nil {
		return nil
	}
	key := kittyKey(raw)
	if bytes.Contains(raw, []byte("a=d")) {
		f.forgetKitty(key)
		return nil
	}
	f.transmitCache[key] = kittyTransmit{ID: key, Data: append([]byte(nil), rewritten...)}

	framed := make([]byte, 0, len(rewritten)+3)
	framed = append(framed, 0x1B, '_')
	framed = append(framed, rewritten...)
	framed = append(framed, 0x1B, '\\')
	return framed
}

func (f *Filter) forgetKitty(key string) {
	if key == "" || key == "all" {
		f.transmitCache = make(map[string]kittyTransmit)
		return
	}
	delete(f.transmitCache, key)
}

// kittyKey extracts a stable cache key from a Kitty APC payload's `i=` or
// `I=` field, falling back to a fresh uuid when the guest supplied no
// stable numeric id.
func kittyKey(raw []byte) string {
	for _, field := range bytes.Split(bytes.SplitN(raw, []byte(";"), 2)[0], []byte(",")) {
		if bytes.HasPrefix(field, []byte("i=")) || bytes.HasPrefix(field, []byte("I=")) {
			return string(field[2:])
		}
	}
	return uuid.NewString()
}

// PlacementsForScreen returns the cached placements for "main" or "alt".
func (f *Filter) PlacementsForScreen(screen string) map[string]kittyPlacement {
	return f.imageInfo[screen]
}
