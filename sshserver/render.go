package sshserver

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"

	"pkt.systems/conspool/schema"
)

// styledRun is a span of text rendered with one ANSI style.
type styledRun struct {
	text  string
	style string
}

// renderDocument converts a console snapshot into styled display lines.
// Collapsed fold regions render as one placeholder line, content lines
// are styled per kind range with links underlined, and every line is
// hard-wrapped to width.
func renderDocument(snap schema.ConsoleSnapshot, width int, theme tuiTheme) []string {
	if width <= 0 || snap.Text == "" {
		return nil
	}
	text := snap.Text
	folds := collapsedFolds(snap.Folds)
	out := make([]string, 0, 64)
	foldIdx := 0
	ls := 0
	for ls < len(text) {
		le := len(text)
		if i := strings.IndexByte(text[ls:], '\n'); i >= 0 {
			le = ls + i
		}
		for foldIdx < len(folds) && folds[foldIdx].End <= ls {
			foldIdx++
		}
		if foldIdx < len(folds) && folds[foldIdx].Start <= ls && ls < folds[foldIdx].End {
			if ls <= folds[foldIdx].Start || foldLineStart(text, folds[foldIdx].Start) == ls {
				out = append(out, renderFoldLine(folds[foldIdx], width, theme))
			}
			ls = le + 1
			continue
		}
		runs := lineRuns(text, ls, le, snap.Ranges, snap.Links, theme)
		out = append(out, wrapRuns(runs, width)...)
		ls = le + 1
	}
	return out
}

func collapsedFolds(folds []schema.FoldRegion) []schema.FoldRegion {
	collapsed := make([]schema.FoldRegion, 0, len(folds))
	for _, fold := range folds {
		if fold.Expanded {
			continue
		}
		collapsed = append(collapsed, fold)
	}
	sort.Slice(collapsed, func(i, j int) bool { return collapsed[i].Start < collapsed[j].Start })
	return collapsed
}

func foldLineStart(text string, offset int) int {
	if offset <= 0 {
		return 0
	}
	if offset > len(text) {
		offset = len(text)
	}
	if i := strings.LastIndexByte(text[:offset], '\n'); i >= 0 {
		return i + 1
	}
	return 0
}

func renderFoldLine(fold schema.FoldRegion, width int, theme tuiTheme) string {
	label := fold.Placeholder
	if label == "" {
		label = "..."
	}
	return ansiDim + ansiFgRGB(theme.FoldFG) + runewidth.Truncate("+ "+label, width, "") + ansiReset
}

// lineRuns splits the document line [ls, le) at every kind and link
// boundary and styles each piece.
func lineRuns(text string, ls, le int, ranges, links []schema.TokenRange, theme tuiTheme) []styledRun {
	if ls >= le {
		return nil
	}
	cuts := make([]int, 0, 8)
	cuts = append(cuts, ls, le)
	for _, r := range ranges {
		if r.Start > ls && r.Start < le {
			cuts = append(cuts, r.Start)
		}
		if r.End > ls && r.End < le {
			cuts = append(cuts, r.End)
		}
	}
	for _, l := range links {
		if l.Start > ls && l.Start < le {
			cuts = append(cuts, l.Start)
		}
		if l.End > ls && l.End < le {
			cuts = append(cuts, l.End)
		}
	}
	sort.Ints(cuts)
	runs := make([]styledRun, 0, 4)
	for i := 0; i+1 < len(cuts); i++ {
		a, b := cuts[i], cuts[i+1]
		if a >= b {
			continue
		}
		style := kindStyle(kindAt(ranges, a), theme)
		if withinRange(links, a) {
			style = ansiUnderline + ansiFgRGB(theme.LinkFG)
		}
		runs = append(runs, styledRun{text: sanitizeOutputLine(text[a:b]), style: style})
	}
	return runs
}

func kindAt(ranges []schema.TokenRange, offset int) schema.ContentKind {
	for _, r := range ranges {
		if r.Start <= offset && offset < r.End {
			return r.Kind
		}
	}
	return schema.KindNormal
}

func withinRange(ranges []schema.TokenRange, offset int) bool {
	for _, r := range ranges {
		if r.Start <= offset && offset < r.End {
			return true
		}
	}
	return false
}

// wrapRuns hard-wraps styled runs to width using display columns, so
// wide runes never straddle the right edge.
func wrapRuns(runs []styledRun, width int) []string {
	if width <= 0 {
		return []string{""}
	}
	lines := make([]string, 0, 1)
	var b strings.Builder
	col := 0
	styled := false
	flush := func() {
		if styled {
			b.WriteString(ansiReset)
		}
		lines = append(lines, b.String())
		b.Reset()
		col = 0
		styled = false
	}
	for _, run := range runs {
		if run.text == "" {
			continue
		}
		runes := []rune(run.text)
		i := 0
		for i < len(runes) {
			if run.style != "" {
				b.WriteString(run.style)
				styled = true
			}
			for i < len(runes) {
				w := runewidth.RuneWidth(runes[i])
				if col+w > width && col > 0 {
					break
				}
				b.WriteRune(runes[i])
				col += w
				i++
			}
			if i < len(runes) {
				flush()
			}
		}
	}
	flush()
	return lines
}

func renderTitleBar(title, status string, width int, theme tuiTheme) string {
	if width <= 0 {
		width = 80
	}
	barStyle := ansiBgRGB(theme.TitleBarBG) + ansiFgRGB(theme.TitleBarFG)
	titleStyle := ansiBgRGB(theme.TitleBarBG) + ansiBold + ansiFgRGB(theme.TitleBoldFG)
	left := " " + title + " "
	var b strings.Builder
	b.WriteString(titleStyle)
	b.WriteString(left)
	b.WriteString(barStyle)
	if status != "" {
		pad := width - runewidth.StringWidth(left) - runewidth.StringWidth(status) - 1
		if pad < 1 {
			pad = 1
		}
		b.WriteString(strings.Repeat(" ", pad))
		b.WriteString(status)
		b.WriteString(" ")
	}
	line := b.String()
	if visible := visibleWidth(line); visible < width {
		line += strings.Repeat(" ", width-visible)
	}
	line = trimANSIToWidth(line, width)
	return line + ansiReset
}

func renderNoticeLine(notice string, width int, theme tuiTheme) string {
	if notice == "" || width <= 0 {
		return ""
	}
	return ansiItalic + ansiFgRGB(theme.NoticeFG) + runewidth.Truncate(notice, width, "") + ansiReset
}

func sanitizeOutputLine(text string) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(text); {
		ch := text[i]
		if ch == 0x1b {
			i = skipEscape(text, i+1)
			continue
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		if r == utf8.RuneError && size == 1 {
			i++
			continue
		}
		if r == '\r' {
			i += size
			continue
		}
		if r == '\t' {
			b.WriteString("    ")
			i += size
			continue
		}
		if r < 0x20 || r == 0x7f {
			i += size
			continue
		}
		b.WriteRune(r)
		i += size
	}
	return b.String()
}

func skipEscape(text string, i int) int {
	if i >= len(text) {
		return i
	}
	switch text[i] {
	case '[':
		return skipCSI(text, i+1)
	case ']':
		return skipOSC(text, i+1)
	default:
		if i < len(text) {
			return i + 1
		}
		return i
	}
}

func skipCSI(text string, i int) int {
	for i < len(text) {
		b := text[i]
		if b >= 0x40 && b <= 0x7e {
			return i + 1
		}
		i++
	}
	return i
}

func skipOSC(text string, i int) int {
	for i < len(text) {
		switch text[i] {
		case 0x07:
			return i + 1
		case 0x1b:
			if i+1 < len(text) && text[i+1] == '\\' {
				return i + 2
			}
		}
		i++
	}
	return i
}

func visibleWidth(text string) int {
	width := 0
	for i := 0; i < len(text); {
		if text[i] == 0x1b {
			i = skipEscape(text, i+1)
			continue
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		if size == 0 {
			break
		}
		i += size
		width += runewidth.RuneWidth(r)
	}
	return width
}

func trimANSIToWidth(text string, width int) string {
	if width <= 0 {
		return ""
	}
	var b strings.Builder
	visible := 0
	for i := 0; i < len(text); {
		if text[i] == 0x1b {
			start := i
			i = skipEscape(text, i+1)
			b.WriteString(text[start:i])
			continue
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		if size == 0 {
			break
		}
		w := runewidth.RuneWidth(r)
		if visible+w > width {
			break
		}
		b.WriteRune(r)
		i += size
		visible += w
	}
	return b.String()
}

func renderInputLines(prefix, input string, cursor, width int) ([]string, int, int) {
	inputRunes := []rune(input)
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(inputRunes) {
		cursor = len(inputRunes)
	}
	prefixWidth := visibleWidth(prefix)
	if width <= 0 {
		width = prefixWidth + len(inputRunes) + 1
	}
	prefixVisible := prefix
	if prefixWidth > width {
		prefixVisible = trimANSIToWidth(prefix, width)
		prefixWidth = visibleWidth(prefixVisible)
	}
	indentWidth := prefixWidth
	indent := strings.Repeat(" ", indentWidth)
	availableFirst := width - prefixWidth
	if availableFirst < 1 {
		availableFirst = 1
	}
	availableOther := width - indentWidth
	if availableOther < 1 {
		availableOther = 1
	}

	lines := []string{}
	var lineBuf strings.Builder
	row := 0
	col := 0
	cursorRow := 1
	cursorCol := prefixWidth + 1
	cursorSet := false
	currentAvailable := availableFirst

	flushLine := func() {
		prefixStr := prefixVisible
		if row > 0 {
			prefixStr = indent
		}
		lines = append(lines, prefixStr+lineBuf.String())
		row++
		lineBuf.Reset()
		col = 0
		currentAvailable = availableOther
	}

	for i, r := range inputRunes {
		if !cursorSet && i == cursor {
			pfx := prefixWidth
			if row > 0 {
				pfx = indentWidth
			}
			cursorRow = row + 1
			cursorCol = pfx + col + 1
			cursorSet = true
		}
		if r == '\n' {
			flushLine()
			continue
		}
		w := runewidth.RuneWidth(r)
		if col+w > currentAvailable && col > 0 {
			flushLine()
		}
		lineBuf.WriteRune(r)
		col += w
	}
	if !cursorSet && cursor == len(inputRunes) {
		pfx := prefixWidth
		if row > 0 {
			pfx = indentWidth
		}
		cursorRow = row + 1
		cursorCol = pfx + col + 1
	}
	flushLine()
	if cursorCol < 1 {
		cursorCol = 1
	}
	if cursorCol > width {
		cursorCol = width
	}
	return lines, cursorRow, cursorCol
}
