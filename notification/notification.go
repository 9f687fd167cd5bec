package notification

import (
	"fmt"
	"io"
	"sync"

	"github.com/pterm/pterm"
)

// Snackbar prints short user facing messages to the terminal.
type Snackbar struct {
	mux     sync.Mutex
	printer pterm.PrefixPrinter
	history []string
	max     int
}

// New creates Snackbar writing to w, or to the standard output when w is nil.
func New(w io.Writer) *Snackbar {
	p := pterm.Warning.WithPrefix(pterm.Prefix{Text: "NOTICE", Style: pterm.NewStyle(pterm.BgYellow, pterm.FgBlack)})
	if w != nil {
		p = p.WithWriter(w)
	}
	return &Snackbar{printer: *p, max: 32}
}

// Notify prints msg and remembers it.
func (s *Snackbar) Notify(msg string) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.history = append(s.history, msg)
	if len(s.history) > s.max {
		s.history = s.history[len(s.history)-s.max:]
	}
	s.printer.Println(msg)
}

// Notifyf formats and prints the message.
func (s *Snackbar) Notifyf(format string, args ...any) {
	s.Notify(fmt.Sprintf(format, args...))
}

// History returns recently shown messages, oldest first.
func (s *Snackbar) History() []string {
	s.mux.Lock()
	defer s.mux.Unlock()
	return append([]string(nil), s.history...)
}
