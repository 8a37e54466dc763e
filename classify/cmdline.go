package classify

import (
	"fmt"
	"strings"

	"pkt.systems/conspool/schema"
)

// CommandLine folds an over-long first document line, typically the command
// invocation echoed by a launcher. Only line zero is ever claimed.
type CommandLine struct {
	// Limit is the minimum first-line length that triggers the fold.
	Limit int
}

// ID implements LineClassifier.
func (CommandLine) ID() schema.ClassifierID { return "command_line" }

// Enabled implements LineClassifier.
func (c CommandLine) Enabled(schema.ConsoleInfo) bool { return c.Limit > 0 }

// ClaimLine implements LineClassifier.
func (c CommandLine) ClaimLine(index int, line string) bool {
	return index == 0 && c.Limit > 0 && len(line) >= c.Limit
}

// Placeholder implements LineClassifier.
func (c CommandLine) Placeholder(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	head := lines[0]
	cut := 60
	if c.Limit > 0 && c.Limit < cut {
		cut = c.Limit
	}
	if len(head) > cut {
		head = head[:cut]
	}
	if i := strings.IndexByte(head, ' '); i > 0 {
		head = head[:i]
	}
	return fmt.Sprintf("%s ...", head)
}

// AttachToPrevious implements LineClassifier.
func (CommandLine) AttachToPrevious() bool { return false }
