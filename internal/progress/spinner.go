// Package progress renders the loading indicator shown while an upgrade runs.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/tj/go-spin"
)

const frameInterval = 100 * time.Millisecond

// frameColor is the one colour the spinning frame is drawn in
var frameColor = color.New(color.FgHiBlue)

// Spinner prints "  • <msg> <frame>" and redraws the frame until finished.
// Frames are only drawn on a terminal; elsewhere only the final line is printed.
type Spinner struct {
	out      io.Writer
	terminal bool
	prefix   string

	mu     sync.Mutex
	msg    string
	stopCh chan struct{}
	done   chan struct{}
}

// New creates a spinner writing to out
func New(out io.Writer) *Spinner {
	return &Spinner{out: out, terminal: isTerminal(out), prefix: "  • "}
}

// Child returns a spinner indented one level deeper, for sub actions
func (s *Spinner) Child() *Spinner {
	return &Spinner{out: s.out, terminal: s.terminal, prefix: "    • "}
}

// WithTerminal overrides terminal detection
func (s *Spinner) WithTerminal(terminal bool) *Spinner {
	s.terminal = terminal
	return s
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Start begins a new action. A running action is finished first.
func (s *Spinner) Start(format string, args ...any) {
	s.Finish()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.msg = fmt.Sprintf(format, args...)
	if !s.terminal {
		return
	}

	frames := spin.New()
	fmt.Fprintf(s.out, "%s%s %s", s.prefix, s.msg, frameColor.Sprint(frames.Next()))

	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(frames, s.msg, s.stopCh, s.done)
}

func (s *Spinner) loop(frames *spin.Spinner, msg string, stopCh, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			fmt.Fprintf(s.out, "\r%s%s %s", s.prefix, msg, frameColor.Sprint(frames.Next()))
			s.mu.Unlock()
		}
	}
}

// Finish ends the current action with a green check
func (s *Spinner) Finish() {
	s.finish(color.New(color.FgHiGreen), "✓")
}

// FinishWithError ends the current action with a red cross
func (s *Spinner) FinishWithError() {
	s.finish(color.New(color.FgHiRed), "✗")
}

// FinishWithWarning ends the current action with a yellow bang
func (s *Spinner) FinishWithWarning() {
	s.finish(color.New(color.FgYellow), "!")
}

func (s *Spinner) finish(c *color.Color, mark string) {
	s.mu.Lock()
	stopCh, done, msg := s.stopCh, s.done, s.msg
	s.stopCh, s.done, s.msg = nil, nil, ""
	s.mu.Unlock()

	if msg == "" {
		return
	}
	if stopCh != nil {
		close(stopCh)
		<-done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminal {
		fmt.Fprint(s.out, "\r")
	}
	fmt.Fprintf(s.out, "%s%s %s  \n", s.prefix, msg, c.Sprint(mark))
}
