package schema

// TokenRange annotates a document span with its content kind and an
// optional hyperlink. Offsets are byte positions into the document.
type TokenRange struct {
	Start int         `json:"start"`
	End   int         `json:"end"`
	Kind  ContentKind `json:"kind"`
	Link  *LinkRef    `json:"link,omitempty"`
}

// FoldRegion is a collapsible document span owned by a classifier.
type FoldRegion struct {
	Start       int          `json:"start"`
	End         int          `json:"end"`
	Placeholder string       `json:"placeholder"`
	Expanded    bool         `json:"expanded"`
	Classifier  ClassifierID `json:"classifier"`
}

// ConsoleSnapshot is a read-only view of console state for transports.
type ConsoleSnapshot struct {
	ID           ConsoleID    `json:"id"`
	Title        string       `json:"title"`
	Text         string       `json:"text"`
	Size         int          `json:"size"`
	DeferredSize int          `json:"deferred_size"`
	Paused       bool         `json:"paused"`
	Working      bool         `json:"working"`
	Ranges       []TokenRange `json:"ranges,omitempty"`
	Links        []TokenRange `json:"links,omitempty"`
	Folds        []FoldRegion `json:"folds,omitempty"`
	// InputStart is the document offset of the open pending input span,
	// or -1 when none is open.
	InputStart int `json:"input_start"`
}
