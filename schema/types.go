package schema

// ConsoleID identifies a console instance.
type ConsoleID string

// SessionID identifies an attached viewer session.
type SessionID string

// ClassifierID identifies a fold/link classifier.
type ClassifierID string

// ContentKind classifies a span of console output.
type ContentKind string

const (
	// KindNormal is plain process output.
	KindNormal ContentKind = "normal"
	// KindError is error-stream output.
	KindError ContentKind = "error"
	// KindSystem is output produced by the console itself.
	KindSystem ContentKind = "system"
	// KindUserInput is text typed by the user and echoed into the console.
	KindUserInput ContentKind = "user_input"
)

// Editable reports whether spans of this kind accept user edits.
func (k ContentKind) Editable() bool {
	return k == KindUserInput
}

// LinkRef identifies the destination of a console hyperlink.
type LinkRef struct {
	URL  string `json:"url,omitempty"`
	Path string `json:"path,omitempty"`
	Line int    `json:"line,omitempty"`
}

// LinkSpan marks a hyperlink inside a single line. Offsets are byte
// positions relative to the line start.
type LinkSpan struct {
	Start int
	End   int
	Ref   LinkRef
}

// ConsoleInfo describes a console to classifiers and surfaces.
type ConsoleInfo struct {
	ID      ConsoleID
	Title   string
	WorkDir string
}
