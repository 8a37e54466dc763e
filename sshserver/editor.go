package sshserver

import (
	"bufio"
	"io"
)

type keyKind int

const (
	keyRune keyKind = iota
	keyEnter
	keyBackspace
	keyDelete
	keyLeft
	keyRight
	keyUp
	keyDown
	keyHome
	keyEnd
	keyPageUp
	keyPageDown
	keyTab
	keyShiftTab
	keyF4
	keyCtrlA
	keyCtrlC
	keyCtrlD
	keyCtrlE
	keyCtrlK
	keyCtrlL
	keyCtrlP
	keyCtrlU
	keyCtrlW
	keyEsc
)

type keyEvent struct {
	kind keyKind
	r    rune
}

// lineEditor is a single-line rune buffer with a cursor. It backs the
// input bar of a terminal session.
type lineEditor struct {
	buf    []rune
	cursor int
}

func (e *lineEditor) String() string { return string(e.buf) }
func (e *lineEditor) Cursor() int    { return e.cursor }
func (e *lineEditor) Len() int       { return len(e.buf) }

func (e *lineEditor) Set(text string) {
	e.buf = []rune(text)
	e.cursor = len(e.buf)
}

func (e *lineEditor) Clear() {
	e.buf = e.buf[:0]
	e.cursor = 0
}

func (e *lineEditor) Insert(r rune) {
	e.buf = append(e.buf, 0)
	copy(e.buf[e.cursor+1:], e.buf[e.cursor:])
	e.buf[e.cursor] = r
	e.cursor++
}

func (e *lineEditor) Backspace() bool {
	if e.cursor == 0 {
		return false
	}
	e.buf = append(e.buf[:e.cursor-1], e.buf[e.cursor:]...)
	e.cursor--
	return true
}

func (e *lineEditor) Delete() bool {
	if e.cursor >= len(e.buf) {
		return false
	}
	e.buf = append(e.buf[:e.cursor], e.buf[e.cursor+1:]...)
	return true
}

func (e *lineEditor) MoveLeft() {
	if e.cursor > 0 {
		e.cursor--
	}
}

func (e *lineEditor) MoveRight() {
	if e.cursor < len(e.buf) {
		e.cursor++
	}
}

func (e *lineEditor) MoveStart() { e.cursor = 0 }
func (e *lineEditor) MoveEnd()   { e.cursor = len(e.buf) }

func (e *lineEditor) KillToStart() bool {
	if e.cursor == 0 {
		return false
	}
	e.buf = append(e.buf[:0], e.buf[e.cursor:]...)
	e.cursor = 0
	return true
}

func (e *lineEditor) KillToEnd() bool {
	if e.cursor >= len(e.buf) {
		return false
	}
	e.buf = e.buf[:e.cursor]
	return true
}

// DeleteWord removes the word immediately before the cursor along with
// any spaces between it and the cursor.
func (e *lineEditor) DeleteWord() bool {
	if e.cursor == 0 {
		return false
	}
	i := e.cursor
	for i > 0 && e.buf[i-1] == ' ' {
		i--
	}
	for i > 0 && e.buf[i-1] != ' ' {
		i--
	}
	e.buf = append(e.buf[:i], e.buf[e.cursor:]...)
	e.cursor = i
	return true
}

// readKeys parses the raw byte stream from a pty into key events until
// the reader fails or done closes. CR LF pairs collapse into a single
// enter event.
func readKeys(r io.Reader, keys chan<- keyEvent, done <-chan struct{}) {
	defer close(keys)
	br := bufio.NewReader(r)
	lastWasCR := false
	for {
		b, err := br.ReadByte()
		if err != nil {
			return
		}
		var ev keyEvent
		ok := true
		switch {
		case b == 0x1b:
			ev, ok = readEscape(br)
		case b == '\r':
			ev = keyEvent{kind: keyEnter}
			lastWasCR = true
		case b == '\n':
			if lastWasCR {
				lastWasCR = false
				continue
			}
			ev = keyEvent{kind: keyEnter}
		case b == 0x7f || b == 0x08:
			ev = keyEvent{kind: keyBackspace}
		case b == 0x01:
			ev = keyEvent{kind: keyCtrlA}
		case b == 0x03:
			ev = keyEvent{kind: keyCtrlC}
		case b == 0x04:
			ev = keyEvent{kind: keyCtrlD}
		case b == 0x05:
			ev = keyEvent{kind: keyCtrlE}
		case b == 0x09:
			ev = keyEvent{kind: keyTab}
		case b == 0x0b:
			ev = keyEvent{kind: keyCtrlK}
		case b == 0x0c:
			ev = keyEvent{kind: keyCtrlL}
		case b == 0x10:
			ev = keyEvent{kind: keyCtrlP}
		case b == 0x15:
			ev = keyEvent{kind: keyCtrlU}
		case b == 0x17:
			ev = keyEvent{kind: keyCtrlW}
		case b < 0x20:
			continue
		default:
			r, decodeOK := decodeRune(br, b)
			if !decodeOK {
				continue
			}
			ev = keyEvent{kind: keyRune, r: r}
		}
		if b != '\r' {
			lastWasCR = false
		}
		if !ok {
			continue
		}
		select {
		case keys <- ev:
		case <-done:
			return
		}
	}
}

func decodeRune(br *bufio.Reader, first byte) (rune, bool) {
	if first < 0x80 {
		return rune(first), true
	}
	if err := br.UnreadByte(); err != nil {
		return 0, false
	}
	r, _, err := br.ReadRune()
	if err != nil {
		return 0, false
	}
	return r, true
}

func readEscape(br *bufio.Reader) (keyEvent, bool) {
	b, err := br.ReadByte()
	if err != nil {
		return keyEvent{kind: keyEsc}, true
	}
	switch b {
	case '[':
		return readCSI(br)
	case 'O':
		return readSS3(br)
	default:
		_ = br.UnreadByte()
		return keyEvent{kind: keyEsc}, true
	}
}

func readCSI(br *bufio.Reader) (keyEvent, bool) {
	var params []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			return keyEvent{}, false
		}
		if b >= 0x40 && b <= 0x7e {
			switch b {
			case 'A':
				return keyEvent{kind: keyUp}, true
			case 'B':
				return keyEvent{kind: keyDown}, true
			case 'C':
				return keyEvent{kind: keyRight}, true
			case 'D':
				return keyEvent{kind: keyLeft}, true
			case 'H':
				return keyEvent{kind: keyHome}, true
			case 'F':
				return keyEvent{kind: keyEnd}, true
			case 'Z':
				return keyEvent{kind: keyShiftTab}, true
			case '~':
				switch string(params) {
				case "1", "7":
					return keyEvent{kind: keyHome}, true
				case "3":
					return keyEvent{kind: keyDelete}, true
				case "4", "8":
					return keyEvent{kind: keyEnd}, true
				case "5":
					return keyEvent{kind: keyPageUp}, true
				case "6":
					return keyEvent{kind: keyPageDown}, true
				case "14":
					return keyEvent{kind: keyF4}, true
				}
				return keyEvent{}, false
			default:
				return keyEvent{}, false
			}
		}
		params = append(params, b)
	}
}

func readSS3(br *bufio.Reader) (keyEvent, bool) {
	b, err := br.ReadByte()
	if err != nil {
		return keyEvent{}, false
	}
	switch b {
	case 'A':
		return keyEvent{kind: keyUp}, true
	case 'B':
		return keyEvent{kind: keyDown}, true
	case 'C':
		return keyEvent{kind: keyRight}, true
	case 'D':
		return keyEvent{kind: keyLeft}, true
	case 'H':
		return keyEvent{kind: keyHome}, true
	case 'F':
		return keyEvent{kind: keyEnd}, true
	case 'S':
		return keyEvent{kind: keyF4}, true
	}
	return keyEvent{}, false
}
