package classify

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"pkt.systems/conspool/schema"
)

var candidatePattern = regexp.MustCompile(`(?:^|[\s('"\[])((?:\./|\.\./|/)?(?:[A-Za-z0-9_.~-]+/)*[A-Za-z0-9_.~-]+\.[A-Za-z0-9_]+)(?::(\d+))?`)

// PathCheck is a heavy classifier that stats candidate file references
// against the console working directory and links only those that exist.
// The filesystem access is why it runs off the render context.
type PathCheck struct{}

// ID implements HeavyClassifier.
func (PathCheck) ID() schema.ClassifierID { return "path_check" }

// Enabled implements HeavyClassifier.
func (PathCheck) Enabled(info schema.ConsoleInfo) bool { return info.WorkDir != "" }

// ClassifyRange implements HeavyClassifier.
func (PathCheck) ClassifyRange(ctx context.Context, snap Snapshot) <-chan Patch {
	out := make(chan Patch, 16)
	go func() {
		defer close(out)
		for i, line := range snap.Lines {
			if ctx.Err() != nil {
				return
			}
			spans := checkLine(snap.Info.WorkDir, line)
			if len(spans) == 0 {
				continue
			}
			patch := Patch{Line: snap.StartLine + i, Text: line, Spans: spans}
			select {
			case out <- patch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func checkLine(workDir, line string) []schema.LinkSpan {
	var spans []schema.LinkSpan
	for _, m := range candidatePattern.FindAllStringSubmatchIndex(line, -1) {
		pathStart, pathEnd := m[2], m[3]
		candidate := line[pathStart:pathEnd]
		resolved := candidate
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(workDir, resolved)
		}
		if info, err := os.Stat(resolved); err != nil || info.IsDir() {
			continue
		}
		span := schema.LinkSpan{
			Start: pathStart,
			End:   pathEnd,
			Ref:   schema.LinkRef{Path: resolved},
		}
		if m[4] >= 0 {
			if n, err := strconv.Atoi(line[m[4]:m[5]]); err == nil {
				span.End = m[5]
				span.Ref.Line = n
			}
		}
		spans = append(spans, span)
	}
	return spans
}
