package sshserver

import (
	"context"
	"strconv"
	"strings"
	"time"

	gliderssh "github.com/gliderlabs/ssh"
	"pkt.systems/pslog"

	"pkt.systems/conspool/core"
	"pkt.systems/conspool/internal/command"
	"pkt.systems/conspool/internal/eventbus"
	"pkt.systems/conspool/schema"
)

const (
	spinnerInterval      = 250 * time.Millisecond
	stateRefreshInterval = 2 * time.Second
	noticeTTL            = 3 * time.Second
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// terminalSession renders one console to one SSH client and feeds the
// client's keystrokes back into it. All state is owned by the Run loop
// goroutine.
type terminalSession struct {
	sess     gliderssh.Session
	console  core.Console
	resizer  Resizer
	scr      *screen
	log      pslog.Logger
	events   <-chan eventbus.Event
	theme    tuiTheme
	user     string
	commands *command.Handler

	width  int
	height int

	snap       schema.ConsoleSnapshot
	scrollUp   int
	foldsOpen  bool
	editor     lineEditor
	history    []string
	historyIdx int
	draft      string
	notice     string
	noticeAt   time.Time
	spinnerIdx int
	dirty      bool
}

func newTerminalSession(sess gliderssh.Session, console core.Console, resizer Resizer, events <-chan eventbus.Event, theme tuiTheme, history []string, log pslog.Logger) *terminalSession {
	return &terminalSession{
		sess:       sess,
		console:    console,
		resizer:    resizer,
		scr:        newScreen(sess),
		log:        log,
		events:     events,
		theme:      theme,
		width:      80,
		height:     24,
		history:    append([]string(nil), history...),
		historyIdx: len(history),
		dirty:      true,
	}
}

func (s *terminalSession) SetSize(width, height int) {
	if width < 1 || height < 1 {
		return
	}
	if width == s.width && height == s.height {
		return
	}
	s.width = width
	s.height = height
	s.dirty = true
}

// Run drives the session until the client disconnects, the context ends
// or the user quits. It owns the alternate screen for its lifetime.
func (s *terminalSession) Run(ctx context.Context, winCh <-chan gliderssh.Window) error {
	s.scr.EnterAltScreen()
	defer s.scr.ExitAltScreen()

	done := make(chan struct{})
	defer close(done)
	keys := make(chan keyEvent, 32)
	go readKeys(s.sess, keys, done)

	if err := s.refreshSnapshot(ctx); err != nil {
		return err
	}
	s.render()

	spinner := time.NewTicker(spinnerInterval)
	defer spinner.Stop()
	state := time.NewTicker(stateRefreshInterval)
	defer state.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-keys:
			if !ok {
				return nil
			}
			quit, err := s.handleKey(ctx, ev)
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
		case win, ok := <-winCh:
			if !ok {
				winCh = nil
				continue
			}
			s.SetSize(win.Width, win.Height)
			if s.resizer != nil {
				if err := s.resizer.Resize(win.Height, win.Width); err != nil {
					s.log.Warn("pty resize failed", "err", err)
				}
			}
		case _, ok := <-s.events:
			if !ok {
				s.events = nil
				continue
			}
			s.drainEvents()
			if err := s.refreshSnapshot(ctx); err != nil {
				return err
			}
		case <-spinner.C:
			if s.snap.Working {
				s.spinnerIdx++
				s.dirty = true
			}
			if s.notice != "" && time.Since(s.noticeAt) > noticeTTL {
				s.notice = ""
				s.dirty = true
			}
		case <-state.C:
			if err := s.refreshSnapshot(ctx); err != nil {
				return err
			}
		}
		if s.dirty {
			s.render()
		}
	}
}

// drainEvents coalesces a burst of bus events into one snapshot refresh.
func (s *terminalSession) drainEvents() {
	for s.events != nil {
		select {
		case _, ok := <-s.events:
			if !ok {
				s.events = nil
			}
		default:
			return
		}
	}
}

func (s *terminalSession) refreshSnapshot(ctx context.Context) error {
	snap, err := s.console.Snapshot(ctx)
	if err != nil {
		return err
	}
	if snapshotEqual(s.snap, snap) {
		return nil
	}
	s.snap = snap
	s.dirty = true
	return nil
}

func snapshotEqual(a, b schema.ConsoleSnapshot) bool {
	if a.Text != b.Text || a.Paused != b.Paused || a.Working != b.Working ||
		a.DeferredSize != b.DeferredSize || a.InputStart != b.InputStart {
		return false
	}
	if !rangesEqual(a.Ranges, b.Ranges) || !rangesEqual(a.Links, b.Links) {
		return false
	}
	if len(a.Folds) != len(b.Folds) {
		return false
	}
	for i := range a.Folds {
		if a.Folds[i] != b.Folds[i] {
			return false
		}
	}
	return true
}

func rangesEqual(a, b []schema.TokenRange) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Start != b[i].Start || a[i].End != b[i].End || a[i].Kind != b[i].Kind {
			return false
		}
	}
	return true
}

func (s *terminalSession) handleKey(ctx context.Context, ev keyEvent) (bool, error) {
	switch ev.kind {
	case keyRune:
		s.editor.Insert(ev.r)
		s.historyIdx = len(s.history)
		s.cancelScroll()
		s.dirty = true
	case keyEnter:
		return s.handleEnter(ctx)
	case keyBackspace:
		if s.editor.Backspace() {
			s.dirty = true
		}
	case keyDelete:
		if s.editor.Delete() {
			s.dirty = true
		}
	case keyLeft:
		s.editor.MoveLeft()
		s.dirty = true
	case keyRight:
		s.editor.MoveRight()
		s.dirty = true
	case keyUp:
		s.historyPrev()
	case keyDown:
		s.historyNext()
	case keyHome:
		if s.editor.Len() == 0 {
			s.scrollTop()
		} else {
			s.editor.MoveStart()
			s.dirty = true
		}
	case keyEnd:
		if s.editor.Len() == 0 {
			s.scrollBottom()
		} else {
			s.editor.MoveEnd()
			s.dirty = true
		}
	case keyPageUp:
		s.scrollBy(s.pageSize())
	case keyPageDown:
		s.scrollBy(-s.pageSize())
	case keyCtrlA:
		s.editor.MoveStart()
		s.dirty = true
	case keyCtrlE:
		s.editor.MoveEnd()
		s.dirty = true
	case keyCtrlU:
		if s.editor.KillToStart() {
			s.dirty = true
		}
	case keyCtrlK:
		if s.editor.KillToEnd() {
			s.dirty = true
		}
	case keyCtrlW:
		if s.editor.DeleteWord() {
			s.dirty = true
		}
	case keyCtrlL:
		s.console.Clear()
		s.scrollUp = 0
		s.setNotice("cleared")
		return false, s.refreshSnapshot(ctx)
	case keyCtrlP:
		paused := !s.console.IsOutputPaused()
		s.console.SetOutputPaused(paused)
		if paused {
			s.setNotice("output paused")
		} else {
			s.setNotice("output resumed")
		}
		return false, s.refreshSnapshot(ctx)
	case keyF4:
		s.foldsOpen = !s.foldsOpen
		s.console.SetFoldsExpanded(s.foldsOpen)
		if s.foldsOpen {
			s.setNotice("folds expanded")
		} else {
			s.setNotice("folds collapsed")
		}
		return false, s.refreshSnapshot(ctx)
	case keyCtrlC:
		if s.editor.Len() > 0 {
			s.editor.Clear()
			s.historyIdx = len(s.history)
			s.dirty = true
		}
	case keyCtrlD:
		if s.editor.Len() == 0 {
			return true, nil
		}
	case keyTab, keyShiftTab, keyEsc:
	}
	return false, nil
}

func (s *terminalSession) handleEnter(ctx context.Context) (bool, error) {
	line := s.editor.String()
	trimmed := strings.TrimSpace(line)
	switch trimmed {
	case "/quit", "/exit", "/q":
		return true, nil
	}
	s.editor.Clear()
	s.dirty = true
	if trimmed == "" {
		return false, nil
	}
	if s.commands != nil {
		if handled, err := s.commands.Handle(ctx, s, line); handled {
			if err != nil {
				s.setNotice(err.Error())
			}
			s.rememberLine(line)
			return false, s.refreshSnapshot(ctx)
		}
	}
	s.console.Type(line + "\n")
	s.rememberLine(line)
	s.scrollBottom()
	return false, s.refreshSnapshot(ctx)
}

// rememberLine appends a submitted line to the session's input recall.
func (s *terminalSession) rememberLine(line string) {
	if len(s.history) == 0 || s.history[len(s.history)-1] != line {
		s.history = append(s.history, line)
	}
	s.historyIdx = len(s.history)
	s.draft = ""
}

// Slash command surface. The command handler runs on this session's
// loop goroutine, so plain field access is safe.

func (s *terminalSession) Console() core.Console { return s.console }
func (s *terminalSession) User() string          { return s.user }
func (s *terminalSession) ThemeName() string     { return s.theme.Name }
func (s *terminalSession) ThemeNames() []string  { return themeNames() }

func (s *terminalSession) ApplyTheme(name string) bool {
	theme, ok := lookupTheme(name)
	if !ok {
		return false
	}
	s.theme = theme
	s.dirty = true
	return true
}

func (s *terminalSession) FoldsExpanded() bool { return s.foldsOpen }

func (s *terminalSession) ApplyFolds(expanded bool) {
	s.foldsOpen = expanded
	s.console.SetFoldsExpanded(expanded)
	s.dirty = true
}

func (s *terminalSession) Notify(text string) { s.setNotice(text) }

func (s *terminalSession) historyPrev() {
	if s.historyIdx == 0 || len(s.history) == 0 {
		return
	}
	if s.historyIdx == len(s.history) {
		s.draft = s.editor.String()
	}
	s.historyIdx--
	s.editor.Set(s.history[s.historyIdx])
	s.dirty = true
}

func (s *terminalSession) historyNext() {
	if s.historyIdx >= len(s.history) {
		return
	}
	s.historyIdx++
	if s.historyIdx == len(s.history) {
		s.editor.Set(s.draft)
	} else {
		s.editor.Set(s.history[s.historyIdx])
	}
	s.dirty = true
}

func (s *terminalSession) pageSize() int {
	page := s.viewHeight() - 1
	if page < 1 {
		page = 1
	}
	return page
}

// scrollBy moves the local view delta display lines up from the bottom.
// Leaving the bottom detaches the console's stick-to-end; returning
// re-attaches it.
func (s *terminalSession) scrollBy(delta int) {
	next := s.scrollUp + delta
	if next < 0 {
		next = 0
	}
	if max := s.maxScroll(); next > max {
		next = max
	}
	if next == s.scrollUp {
		return
	}
	wasBottom := s.scrollUp == 0
	s.scrollUp = next
	if wasBottom && next > 0 {
		s.console.SetViewportBottom(false)
	}
	if next == 0 {
		s.console.SetViewportBottom(true)
	}
	s.dirty = true
}

func (s *terminalSession) scrollTop() {
	s.scrollBy(s.maxScroll() - s.scrollUp)
}

func (s *terminalSession) scrollBottom() {
	if s.scrollUp == 0 {
		return
	}
	s.scrollUp = 0
	s.console.SetViewportBottom(true)
	s.console.ScrollToEnd()
	s.dirty = true
}

func (s *terminalSession) cancelScroll() {
	if s.scrollUp == 0 {
		return
	}
	s.scrollUp = 0
	s.console.SetViewportBottom(true)
	s.dirty = true
}

func (s *terminalSession) maxScroll() int {
	max := len(renderDocument(s.snap, s.renderWidth(), s.theme)) - s.viewHeight()
	if max < 0 {
		max = 0
	}
	return max
}

func (s *terminalSession) setNotice(text string) {
	s.notice = text
	s.noticeAt = time.Now()
	s.dirty = true
}

func (s *terminalSession) renderWidth() int {
	if s.width < 20 {
		return 20
	}
	return s.width
}

func (s *terminalSession) renderHeight() int {
	if s.height < 4 {
		return 4
	}
	return s.height
}

func (s *terminalSession) viewHeight() int {
	inputLines, _, _ := renderInputLines(s.promptPrefix(), s.editor.String(), s.editor.Cursor(), s.renderWidth())
	noticeLines := 0
	if s.notice != "" {
		noticeLines = 1
	}
	height := s.renderHeight() - 1 - len(inputLines) - noticeLines
	if height < 1 {
		height = 1
	}
	return height
}

func (s *terminalSession) promptPrefix() string {
	if s.snap.Working {
		frame := spinnerFrames[s.spinnerIdx%len(spinnerFrames)]
		return ansiFgRGB(s.theme.SpinnerFG) + frame + ansiReset + " "
	}
	return ansiBold + ansiFgRGB(s.theme.PromptFG) + ">" + ansiReset + " "
}

func (s *terminalSession) title() string {
	if s.snap.Title != "" {
		return s.snap.Title
	}
	return string(s.console.ID())
}

func (s *terminalSession) statusText() string {
	parts := make([]string, 0, 3)
	if s.snap.Working {
		parts = append(parts, spinnerFrames[s.spinnerIdx%len(spinnerFrames)])
	}
	if s.snap.Paused {
		status := "PAUSED"
		if s.snap.DeferredSize > 0 {
			status += " +" + strconv.Itoa(s.snap.DeferredSize)
		}
		parts = append(parts, status)
	}
	if s.scrollUp > 0 {
		parts = append(parts, "SCROLL")
	}
	return strings.Join(parts, "  ")
}

func (s *terminalSession) render() {
	s.dirty = false
	width := s.renderWidth()
	height := s.renderHeight()

	inputLines, cursorRow, cursorCol := renderInputLines(s.promptPrefix(), s.editor.String(), s.editor.Cursor(), width)
	notice := renderNoticeLine(s.notice, width, s.theme)
	noticeLines := 0
	if notice != "" {
		noticeLines = 1
	}
	viewHeight := height - 1 - len(inputLines) - noticeLines
	if viewHeight < 1 {
		viewHeight = 1
	}

	doc := renderDocument(s.snap, width, s.theme)
	maxScroll := len(doc) - viewHeight
	if maxScroll < 0 {
		maxScroll = 0
	}
	if s.scrollUp > maxScroll {
		s.scrollUp = maxScroll
	}
	end := len(doc) - s.scrollUp
	start := end - viewHeight
	if start < 0 {
		start = 0
	}

	lines := make([]string, 0, height)
	lines = append(lines, renderTitleBar(s.title(), s.statusText(), width, s.theme))
	lines = append(lines, doc[start:end]...)
	for len(lines) < 1+viewHeight {
		lines = append(lines, "")
	}
	if notice != "" {
		lines = append(lines, notice)
	}
	lines = append(lines, inputLines...)

	// A write failure means the client is gone; the key reader exits
	// right after and ends the session.
	_ = s.scr.Render(lines, 1+viewHeight+noticeLines+cursorRow, cursorCol)
}
