package core

import "strings"

// resolveControls refines a drained batch: the leading rewrite marker is
// split off for the caller to apply against the rendered document, and
// backspace tokens are collapsed against the text accumulated so far.
// Backspace overflow past the batch start is returned as backspacePrefix,
// to be deleted from the rendered document tail; a backspace never crosses
// a line break on either side of the batch boundary.
func resolveControls(tokens []token) (refined []token, backspacePrefix int, rewrite ctrlKind) {
	start := 0
	if len(tokens) > 0 && (tokens[0].ctrl == ctrlRewriteTail || tokens[0].ctrl == ctrlRewriteLine) {
		rewrite = tokens[0].ctrl
		start = 1
	}
	refined = make([]token, 0, len(tokens)-start)
	for _, t := range tokens[start:] {
		switch t.ctrl {
		case ctrlNone:
			if t.text != "" {
				refined = append(refined, t)
			}
		case ctrlBackspace:
			n := t.n
			for n > 0 && len(refined) > 0 {
				last := &refined[len(refined)-1]
				idx := strings.LastIndexByte(last.text, '\n')
				avail := len(last.text) - idx - 1
				take := n
				if take > avail {
					take = avail
				}
				last.text = last.text[:len(last.text)-take]
				n -= take
				if last.text == "" {
					refined = refined[:len(refined)-1]
					continue
				}
				if n > 0 {
					// blocked by a line break inside the batch
					n = 0
				}
			}
			if n > 0 && len(refined) == 0 {
				backspacePrefix += n
			}
		}
	}
	return refined, backspacePrefix, rewrite
}

// rawText concatenates the text of refined tokens.
func rawText(tokens []token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteString(t.text)
	}
	return sb.String()
}
