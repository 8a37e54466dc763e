package classify

import (
	"regexp"
	"strconv"

	"pkt.systems/conspool/schema"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// URLLinks turns http(s) URLs into hyperlinks.
type URLLinks struct{}

// ID implements LinkClassifier.
func (URLLinks) ID() schema.ClassifierID { return "url" }

// Enabled implements LinkClassifier.
func (URLLinks) Enabled(schema.ConsoleInfo) bool { return true }

// ScanLine implements LinkClassifier.
func (URLLinks) ScanLine(line string) []schema.LinkSpan {
	var spans []schema.LinkSpan
	for _, m := range urlPattern.FindAllStringIndex(line, -1) {
		spans = append(spans, schema.LinkSpan{
			Start: m[0],
			End:   m[1],
			Ref:   schema.LinkRef{URL: line[m[0]:m[1]]},
		})
	}
	return spans
}

var pathPattern = regexp.MustCompile(`(?:^|[\s('"\[])((?:[A-Za-z0-9_.~-]+/)*[A-Za-z0-9_.~-]+\.[A-Za-z0-9_]+):(\d+)`)

// PathLinks turns file:line references into hyperlinks without touching
// the filesystem. Candidates that need an existence check belong to the
// heavy PathCheck classifier instead.
type PathLinks struct{}

// ID implements LinkClassifier.
func (PathLinks) ID() schema.ClassifierID { return "path" }

// Enabled implements LinkClassifier.
func (PathLinks) Enabled(schema.ConsoleInfo) bool { return true }

// ScanLine implements LinkClassifier.
func (PathLinks) ScanLine(line string) []schema.LinkSpan {
	var spans []schema.LinkSpan
	for _, m := range pathPattern.FindAllStringSubmatchIndex(line, -1) {
		pathStart, pathEnd := m[2], m[3]
		lineStart, lineEnd := m[4], m[5]
		n, err := strconv.Atoi(line[lineStart:lineEnd])
		if err != nil {
			continue
		}
		spans = append(spans, schema.LinkSpan{
			Start: pathStart,
			End:   lineEnd,
			Ref:   schema.LinkRef{Path: line[pathStart:pathEnd], Line: n},
		})
	}
	return spans
}
