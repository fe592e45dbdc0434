package upgrade

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Report collects the human readable lines of a run. Lines are also logged.
type Report struct {
	mu     sync.Mutex
	lines  []string
	logger logr.Logger
}

func newReport(logger logr.Logger) *Report {
	return &Report{logger: logger}
}

// Add appends a line
func (r *Report) Add(line string) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
	r.logger.Info(line)
}

// Addf appends a formatted line
func (r *Report) Addf(format string, args ...any) {
	r.Add(fmt.Sprintf(format, args...))
}

// Lines returns a copy of all lines
func (r *Report) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// String renders the report with a duration footer
func (r *Report) String(elapsed time.Duration) string {
	var b strings.Builder
	for _, l := range r.Lines() {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Took %s\n", elapsed.Round(time.Millisecond))
	return b.String()
}
