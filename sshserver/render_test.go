package sshserver

import (
	"strings"
	"testing"

	"pkt.systems/conspool/schema"
)

func TestRenderDocumentStylesKinds(t *testing.T) {
	snap := schema.ConsoleSnapshot{
		Text: "ok\nboom\n",
		Ranges: []schema.TokenRange{
			{Start: 0, End: 3, Kind: schema.KindNormal},
			{Start: 3, End: 8, Kind: schema.KindError},
		},
	}
	lines := renderDocument(snap, 80, themeForName(""))
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "ok") {
		t.Errorf("first line missing text: %q", lines[0])
	}
	if strings.Contains(lines[0], ansiBold) {
		t.Errorf("normal line styled bold: %q", lines[0])
	}
	if !strings.Contains(lines[1], "boom") || !strings.Contains(lines[1], ansiBold) {
		t.Errorf("error line not bold: %q", lines[1])
	}
}

func TestRenderDocumentCollapsedFold(t *testing.T) {
	snap := schema.ConsoleSnapshot{
		Text: "A1\nA2\nB1\nA3\n",
		Folds: []schema.FoldRegion{
			{Start: 0, End: 5, Placeholder: "build output"},
		},
	}
	lines := renderDocument(snap, 80, themeForName(""))
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "build output") {
		t.Errorf("placeholder missing: %q", lines[0])
	}
	if strings.Contains(lines[0], "A1") || strings.Contains(lines[1], "A2") {
		t.Errorf("folded lines leaked: %q", lines)
	}
	if !strings.Contains(lines[1], "B1") || !strings.Contains(lines[2], "A3") {
		t.Errorf("unfolded lines wrong: %q", lines)
	}
}

func TestRenderDocumentExpandedFold(t *testing.T) {
	snap := schema.ConsoleSnapshot{
		Text: "A1\nA2\nB1\n",
		Folds: []schema.FoldRegion{
			{Start: 0, End: 5, Placeholder: "build output", Expanded: true},
		},
	}
	lines := renderDocument(snap, 80, themeForName(""))
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3: %q", len(lines), lines)
	}
	for _, line := range lines {
		if strings.Contains(line, "build output") {
			t.Fatalf("expanded fold rendered placeholder: %q", lines)
		}
	}
}

func TestRenderDocumentUnderlinesLinks(t *testing.T) {
	snap := schema.ConsoleSnapshot{
		Text: "see https://example.com now\n",
		Links: []schema.TokenRange{
			{Start: 4, End: 23, Kind: schema.KindNormal, Link: &schema.LinkRef{URL: "https://example.com"}},
		},
	}
	lines := renderDocument(snap, 80, themeForName(""))
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], ansiUnderline) {
		t.Errorf("link not underlined: %q", lines[0])
	}
	if !strings.Contains(lines[0], "https://example.com") {
		t.Errorf("link text missing: %q", lines[0])
	}
}

func TestRenderDocumentNoTrailingNewline(t *testing.T) {
	snap := schema.ConsoleSnapshot{Text: "partial"}
	lines := renderDocument(snap, 80, themeForName(""))
	if len(lines) != 1 || !strings.Contains(lines[0], "partial") {
		t.Fatalf("lines = %q, want one line with partial", lines)
	}
}

func TestWrapRunsWideRunes(t *testing.T) {
	lines := wrapRuns([]styledRun{{text: "日本語のテキスト"}}, 10)
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2: %q", len(lines), lines)
	}
	if got := visibleWidth(lines[0]); got != 10 {
		t.Errorf("first line width = %d, want 10", got)
	}
	if got := visibleWidth(lines[1]); got != 6 {
		t.Errorf("second line width = %d, want 6", got)
	}
}

func TestWrapRunsEmpty(t *testing.T) {
	lines := wrapRuns(nil, 80)
	if len(lines) != 1 || lines[0] != "" {
		t.Fatalf("lines = %q, want one empty line", lines)
	}
}

func TestSanitizeOutputLine(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a\x1b[31mred\x1b[0m", "ared"},
		{"tab\there", "tab    here"},
		{"cr\rend", "crend"},
		{"\x1b]0;title\x07rest", "rest"},
		{"bell\x07", "bell"},
	}
	for _, tc := range cases {
		if got := sanitizeOutputLine(tc.in); got != tc.want {
			t.Errorf("sanitizeOutputLine(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderTitleBarWidth(t *testing.T) {
	bar := renderTitleBar("build", "PAUSED", 40, themeForName(""))
	if got := visibleWidth(bar); got != 40 {
		t.Errorf("bar width = %d, want 40", got)
	}
	if !strings.Contains(bar, "build") || !strings.Contains(bar, "PAUSED") {
		t.Errorf("bar missing content: %q", bar)
	}
}

func TestRenderTitleBarTruncatesLongTitle(t *testing.T) {
	bar := renderTitleBar(strings.Repeat("x", 100), "", 20, themeForName(""))
	if got := visibleWidth(bar); got != 20 {
		t.Errorf("bar width = %d, want 20", got)
	}
}

func TestRenderInputLinesWraps(t *testing.T) {
	lines, row, col := renderInputLines("> ", "abcdefgh", 8, 8)
	if len(lines) != 2 {
		t.Fatalf("lines = %q, want 2", lines)
	}
	if lines[0] != "> abcdef" || lines[1] != "  gh" {
		t.Errorf("lines = %q", lines)
	}
	if row != 2 || col != 5 {
		t.Errorf("cursor = (%d, %d), want (2, 5)", row, col)
	}
}

func TestRenderInputLinesCursorMidLine(t *testing.T) {
	lines, row, col := renderInputLines("> ", "hello", 2, 80)
	if len(lines) != 1 || lines[0] != "> hello" {
		t.Fatalf("lines = %q", lines)
	}
	if row != 1 || col != 5 {
		t.Errorf("cursor = (%d, %d), want (1, 5)", row, col)
	}
}

func TestRenderInputLinesMultiline(t *testing.T) {
	lines, row, col := renderInputLines("> ", "a\nb", 3, 80)
	if len(lines) != 2 || lines[0] != "> a" || lines[1] != "  b" {
		t.Fatalf("lines = %q", lines)
	}
	if row != 2 || col != 4 {
		t.Errorf("cursor = (%d, %d), want (2, 4)", row, col)
	}
}
