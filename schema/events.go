package schema

// TextEvent reports refined text committed to a console document.
type TextEvent struct {
	Console ConsoleID
	Text    string
	Kind    ContentKind
}

// ContentEvent reports a completed flush and the kinds it carried.
type ContentEvent struct {
	Console ConsoleID
	Kinds   []ContentKind
}

// StateKind describes a console state transition.
type StateKind string

const (
	// StateCleared indicates the document was cleared.
	StateCleared StateKind = "cleared"
	// StateScrolled indicates the viewport was moved to an offset.
	StateScrolled StateKind = "scrolled"
	// StateRegionsChanged indicates hyperlink or fold regions changed.
	StateRegionsChanged StateKind = "regions_changed"
	// StateInputEdited indicates the pending input span was edited in
	// place.
	StateInputEdited StateKind = "input_edited"
	// StateInputSubmitted indicates a completed input line was sent to
	// the process. Text carries the submitted line.
	StateInputSubmitted StateKind = "input_submitted"
	// StateWorkingStart indicates background classification began.
	StateWorkingStart StateKind = "working_start"
	// StateWorkingDone indicates background classification finished.
	StateWorkingDone StateKind = "working_done"
	// StatePaused indicates output rendering was paused.
	StatePaused StateKind = "paused"
	// StateResumed indicates output rendering resumed.
	StateResumed StateKind = "resumed"
	// StateDisposed indicates the console was disposed.
	StateDisposed StateKind = "disposed"
)

// StateEvent reports a console state transition.
type StateEvent struct {
	Console ConsoleID
	Type    StateKind
	Offset  int
	Text    string
}
