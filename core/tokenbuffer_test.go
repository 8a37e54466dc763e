package core

import (
	"testing"

	"pkt.systems/conspool/schema"
)

func drainRefined(t *testing.T, b *tokenBuffer) (string, int, ctrlKind) {
	t.Helper()
	tokens, _ := b.Drain()
	refined, prefix, rewrite := resolveControls(tokens)
	return rawText(refined), prefix, rewrite
}

func TestDrainEmptiesBuffer(t *testing.T) {
	b := newTokenBuffer(0)
	b.Append("hello ", schema.KindNormal, nil)
	b.Append("world", schema.KindNormal, nil)
	tokens, _ := b.Drain()
	if got := rawText(tokens); got != "hello world" {
		t.Fatalf("expected drained text %q, got %q", "hello world", got)
	}
	again, _ := b.Drain()
	if len(again) != 0 {
		t.Fatalf("expected second drain empty, got %d tokens", len(again))
	}
	if !b.Empty() {
		t.Fatalf("expected buffer empty after drain")
	}
}

func TestAppendMergesAdjacentSameKind(t *testing.T) {
	b := newTokenBuffer(0)
	b.Append("a", schema.KindNormal, nil)
	b.Append("b", schema.KindNormal, nil)
	b.Append("c", schema.KindError, nil)
	tokens, _ := b.Drain()
	if len(tokens) != 2 {
		t.Fatalf("expected 2 tokens, got %d: %+v", len(tokens), tokens)
	}
	if tokens[0].text != "ab" || tokens[1].text != "c" {
		t.Fatalf("unexpected tokens: %+v", tokens)
	}
}

func TestCRLFBecomesLineFeed(t *testing.T) {
	b := newTokenBuffer(0)
	b.Append("a\r\nb", schema.KindNormal, nil)
	text, prefix, rewrite := drainRefined(t, b)
	if text != "a\nb" || prefix != 0 || rewrite != ctrlNone {
		t.Fatalf("unexpected resolution: %q prefix=%d rewrite=%d", text, prefix, rewrite)
	}
}

func TestCRLFSplitAcrossAppends(t *testing.T) {
	b := newTokenBuffer(0)
	b.Append("a\r", schema.KindNormal, nil)
	b.Append("\nb", schema.KindNormal, nil)
	text, prefix, rewrite := drainRefined(t, b)
	if text != "a\nb" || prefix != 0 || rewrite != ctrlNone {
		t.Fatalf("unexpected resolution: %q prefix=%d rewrite=%d", text, prefix, rewrite)
	}
}

func TestLoneCRRewritesWithinBatch(t *testing.T) {
	b := newTokenBuffer(0)
	b.Append("progress 10%\rprogress 99%", schema.KindNormal, nil)
	text, prefix, rewrite := drainRefined(t, b)
	if text != "progress 99%" || prefix != 0 {
		t.Fatalf("unexpected resolution: %q prefix=%d", text, prefix)
	}
	if rewrite != ctrlRewriteTail {
		t.Fatalf("expected tail rewrite owed to the document, got %d", rewrite)
	}
}

func TestLoneCRStopsAtLineBreak(t *testing.T) {
	b := newTokenBuffer(0)
	b.Append("done\npartial\rwhole", schema.KindNormal, nil)
	text, _, rewrite := drainRefined(t, b)
	if text != "done\nwhole" {
		t.Fatalf("expected %q, got %q", "done\nwhole", text)
	}
	if rewrite != ctrlNone {
		t.Fatalf("expected no rewrite marker, got %d", rewrite)
	}
}

func TestCROnEmptyBatchOwedAsLineRewrite(t *testing.T) {
	b := newTokenBuffer(0)
	b.Append("\rline2\n", schema.KindNormal, nil)
	text, _, rewrite := drainRefined(t, b)
	if text != "line2\n" {
		t.Fatalf("expected %q, got %q", "line2\n", text)
	}
	if rewrite != ctrlRewriteLine {
		t.Fatalf("expected line rewrite owed to the document, got %d", rewrite)
	}
}

func TestCRCrossesOneTrailingNewline(t *testing.T) {
	b := newTokenBuffer(0)
	b.Append("line1\n\rline2\n", schema.KindNormal, nil)
	text, _, rewrite := drainRefined(t, b)
	if text != "line2\n" || rewrite != ctrlNone {
		t.Fatalf("expected %q without rewrite, got %q rewrite=%d", "line2\n", text, rewrite)
	}
}

func TestTrailingCRHeldForNextAppend(t *testing.T) {
	b := newTokenBuffer(0)
	b.Append("abc\r", schema.KindNormal, nil)
	if b.Len() != 3 {
		t.Fatalf("expected held text of 3 chars, got %d", b.Len())
	}
	b.Append("x", schema.KindNormal, nil)
	text, _, rewrite := drainRefined(t, b)
	if text != "x" || rewrite != ctrlRewriteTail {
		t.Fatalf("expected %q with tail rewrite, got %q rewrite=%d", "x", text, rewrite)
	}
}

func TestBackspaceCollapsesWithinBatch(t *testing.T) {
	b := newTokenBuffer(0)
	b.Append("typo\b\bo", schema.KindNormal, nil)
	text, prefix, _ := drainRefined(t, b)
	if text != "tyo" || prefix != 0 {
		t.Fatalf("expected %q, got %q prefix=%d", "tyo", text, prefix)
	}
}

func TestBackspaceUnderflowBecomesPrefix(t *testing.T) {
	b := newTokenBuffer(0)
	b.Append("\b\bXY", schema.KindNormal, nil)
	text, prefix, _ := drainRefined(t, b)
	if text != "XY" || prefix != 2 {
		t.Fatalf("expected %q with prefix 2, got %q prefix=%d", "XY", text, prefix)
	}
}

func TestBackspaceBlockedByLineBreak(t *testing.T) {
	b := newTokenBuffer(0)
	b.Append("ab\n\b\b\bc", schema.KindNormal, nil)
	text, prefix, _ := drainRefined(t, b)
	if text != "ab\nc" || prefix != 0 {
		t.Fatalf("expected blocked backspace to be discarded, got %q prefix=%d", text, prefix)
	}
}

func TestClearDiscardsWithoutDraining(t *testing.T) {
	b := newTokenBuffer(0)
	b.Append("pending", schema.KindNormal, nil)
	b.Clear()
	tokens, _ := b.Drain()
	if len(tokens) != 0 {
		t.Fatalf("expected nothing after clear, got %+v", tokens)
	}
}

func TestCyclicEvictionKeepsNewest(t *testing.T) {
	b := newTokenBuffer(10)
	if pressure := b.Append("0123456789", schema.KindNormal, nil); pressure {
		t.Fatalf("expected no pressure at exactly capacity")
	}
	if !b.Append("abcde", schema.KindNormal, nil) {
		t.Fatalf("expected pressure after overflow")
	}
	if b.Len() != 10 {
		t.Fatalf("expected buffered length 10, got %d", b.Len())
	}
	tokens, evicted := b.Drain()
	if evicted != 5 {
		t.Fatalf("expected 5 evicted chars, got %d", evicted)
	}
	if got := rawText(tokens); got != "56789abcde" {
		t.Fatalf("expected newest 10 chars, got %q", got)
	}
}

func TestLengthTracksTokens(t *testing.T) {
	b := newTokenBuffer(0)
	b.Append("abc", schema.KindNormal, nil)
	b.Append("\b", schema.KindNormal, nil)
	b.Append("de", schema.KindError, nil)
	if b.Len() != 5 {
		t.Fatalf("expected length 5, got %d", b.Len())
	}
	tokens, _ := b.Drain()
	total := 0
	for _, tk := range tokens {
		total += len(tk.text)
	}
	if total != 5 {
		t.Fatalf("expected drained text length 5, got %d", total)
	}
}

func TestLinkTokensDoNotMerge(t *testing.T) {
	ref := schema.LinkRef{URL: "https://example.com"}
	b := newTokenBuffer(0)
	b.Append("see ", schema.KindNormal, nil)
	b.Append("here", schema.KindNormal, &ref)
	b.Append(" now", schema.KindNormal, nil)
	tokens, _ := b.Drain()
	if len(tokens) != 3 {
		t.Fatalf("expected 3 tokens, got %d: %+v", len(tokens), tokens)
	}
	if tokens[1].link == nil || tokens[1].link.URL != ref.URL {
		t.Fatalf("expected link preserved on middle token: %+v", tokens[1])
	}
}
