package cli

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var spinnerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("205"))

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner shows a simple spinning animation while waiting
type Spinner struct {
	writer   io.Writer
	message  string
	interval time.Duration
	enabled  bool
	stop     chan struct{}
	done     sync.WaitGroup
	once     sync.Once
}

// NewSpinner creates a spinner on f that only animates when f is a terminal
func NewSpinner(f *os.File, message string) *Spinner {
	tty := isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	return newSpinner(f, message, tty)
}

func newSpinner(w io.Writer, message string, enabled bool) *Spinner {
	return &Spinner{
		writer:   w,
		message:  message,
		interval: 80 * time.Millisecond,
		enabled:  enabled,
		stop:     make(chan struct{}),
	}
}

// Start begins the spinner animation in a goroutine
func (s *Spinner) Start() {
	if !s.enabled {
		return
	}
	s.done.Add(1)
	go func() {
		defer s.done.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for i := 0; ; i = (i + 1) % len(spinnerFrames) {
			fmt.Fprintf(s.writer, "\r%s %s", spinnerStyle.Render(spinnerFrames[i]), s.message)
			select {
			case <-s.stop:
				// Clear the line
				fmt.Fprint(s.writer, "\r\033[K")
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop stops the spinner, clears the line and waits for the goroutine. Safe
// to call more than once.
func (s *Spinner) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.done.Wait()
}
