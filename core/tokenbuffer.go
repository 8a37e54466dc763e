package core

import (
	"strings"
	"sync"

	"pkt.systems/conspool/schema"
)

type ctrlKind uint8

const (
	ctrlNone ctrlKind = iota
	// ctrlBackspace deletes n characters backwards, resolved at flush.
	ctrlBackspace
	// ctrlRewriteTail deletes the unterminated tail line of the rendered
	// document. Produced when a carriage return consumed the whole batch.
	ctrlRewriteTail
	// ctrlRewriteLine deletes the last full line of the rendered document,
	// crossing one trailing newline. Produced when a carriage return
	// arrived on an empty batch.
	ctrlRewriteLine
)

// token is one buffered unit of output. Control tokens carry no text.
type token struct {
	text string
	kind schema.ContentKind
	link *schema.LinkRef
	ctrl ctrlKind
	n    int
}

// tokenBuffer is the only structure in the engine mutated from multiple
// goroutines. One lock covers append, drain, clear and the length query.
//
// Appended text is normalized before buffering: CRLF becomes LF, a lone
// carriage return is resolved against the buffered batch immediately (and
// recorded as a rewrite marker when it reaches past the batch start), and
// backspace runs become ctrlBackspace tokens resolved at flush.
type tokenBuffer struct {
	mu       sync.Mutex
	tokens   []token
	length   int
	capacity int
	rewrite  ctrlKind
	// pendingCR is a trailing \r whose meaning depends on the next byte.
	pendingCR bool
	evicted   int
}

func newTokenBuffer(capacity int) *tokenBuffer {
	return &tokenBuffer{capacity: capacity}
}

// Append buffers text under the lock. The returned pressure flag is true
// when cyclic eviction occurred, signalling the caller to flush without
// the usual debounce.
func (b *tokenBuffer) Append(text string, kind schema.ContentKind, link *schema.LinkRef) (pressure bool) {
	if text == "" {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pendingCR {
		b.pendingCR = false
		if strings.HasPrefix(text, "\n") {
			// the held \r was half of a CRLF separator
		} else {
			b.rewriteLocked()
		}
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.HasSuffix(text, "\r") {
		text = text[:len(text)-1]
		defer func() { b.pendingCR = true }()
	}

	before := b.evicted
	for text != "" {
		i := strings.IndexAny(text, "\r\b")
		if i < 0 {
			b.pushTextLocked(text, kind, link)
			break
		}
		if i > 0 {
			b.pushTextLocked(text[:i], kind, link)
		}
		switch text[i] {
		case '\r':
			b.rewriteLocked()
			text = text[i+1:]
		case '\b':
			n := 1
			for i+n < len(text) && text[i+n] == '\b' {
				n++
			}
			b.tokens = append(b.tokens, token{ctrl: ctrlBackspace, n: n})
			text = text[i+n:]
		}
	}
	return b.evicted > before
}

// Drain atomically hands the buffered batch to the caller and resets the
// buffer. A pending rewrite marker is returned as the leading token.
func (b *tokenBuffer) Drain() (tokens []token, evicted int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rewrite != ctrlNone {
		tokens = append(tokens, token{ctrl: b.rewrite})
	}
	tokens = append(tokens, b.tokens...)
	evicted = b.evicted
	b.tokens = nil
	b.length = 0
	b.rewrite = ctrlNone
	b.evicted = 0
	return tokens, evicted
}

// Clear discards all buffered tokens without draining.
func (b *tokenBuffer) Clear() {
	b.mu.Lock()
	b.tokens = nil
	b.length = 0
	b.rewrite = ctrlNone
	b.pendingCR = false
	b.evicted = 0
	b.mu.Unlock()
}

// Len reports the buffered character count.
func (b *tokenBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

// Empty reports whether nothing is buffered.
func (b *tokenBuffer) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length == 0 && len(b.tokens) == 0 && b.rewrite == ctrlNone
}

func (b *tokenBuffer) pushTextLocked(text string, kind schema.ContentKind, link *schema.LinkRef) {
	if n := len(b.tokens); n > 0 && link == nil {
		last := &b.tokens[n-1]
		if last.ctrl == ctrlNone && last.kind == kind && last.link == nil {
			last.text += text
			b.length += len(text)
			b.trimLocked()
			return
		}
	}
	b.tokens = append(b.tokens, token{text: text, kind: kind, link: link})
	b.length += len(text)
	b.trimLocked()
}

// trimLocked enforces the cyclic capacity by dropping oldest characters.
func (b *tokenBuffer) trimLocked() {
	if b.capacity <= 0 {
		return
	}
	for b.length > b.capacity && len(b.tokens) > 0 {
		first := &b.tokens[0]
		if first.ctrl != ctrlNone {
			b.tokens = b.tokens[1:]
			continue
		}
		excess := b.length - b.capacity
		if len(first.text) <= excess {
			b.length -= len(first.text)
			b.evicted += len(first.text)
			b.tokens = b.tokens[1:]
			continue
		}
		first.text = first.text[excess:]
		b.length -= excess
		b.evicted += excess
	}
}

// rewriteLocked applies a lone carriage return: delete backwards to the
// start of the line holding the last buffered character, crossing one
// trailing newline. When the deletion runs past the batch start the
// remainder is owed against the rendered document and recorded as a
// rewrite marker for the next flush.
func (b *tokenBuffer) rewriteLocked() {
	if b.length == 0 {
		b.tokens = b.tokens[:0]
		if b.rewrite == ctrlNone {
			b.rewrite = ctrlRewriteLine
		}
		return
	}
	skipped := false
	for len(b.tokens) > 0 {
		t := &b.tokens[len(b.tokens)-1]
		if t.ctrl != ctrlNone {
			b.tokens = b.tokens[:len(b.tokens)-1]
			continue
		}
		s := t.text
		j := len(s)
		if !skipped && strings.HasSuffix(s, "\n") {
			j--
			skipped = true
		}
		if k := strings.LastIndexByte(s[:j], '\n'); k >= 0 {
			b.length -= len(s) - k - 1
			t.text = s[:k+1]
			return
		}
		b.length -= len(s)
		b.tokens = b.tokens[:len(b.tokens)-1]
	}
	// the deleted line may continue into the rendered document tail
	if b.rewrite == ctrlNone {
		b.rewrite = ctrlRewriteTail
	}
}
