package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 80 * time.Millisecond

// Spinner animates a one-line status message until it is stopped or its
// context ends.
type Spinner struct {
	out    io.Writer
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	message string

	stopped chan struct{}
	once    sync.Once
}

// newSpinner creates a spinner writing to out. It stops by itself when ctx
// is cancelled.
func newSpinner(ctx context.Context, out io.Writer, message string) *Spinner {
	ctx, cancel := context.WithCancel(ctx)
	return &Spinner{out: out, ctx: ctx, cancel: cancel, message: message}
}

// Start begins the animation.
func (s *Spinner) Start() {
	s.stopped = make(chan struct{})
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(spinnerInterval)
		defer ticker.Stop()

		for i := 0; ; i++ {
			select {
			case <-s.ctx.Done():
				s.clearLine()
				return
			case <-ticker.C:
				s.mu.Lock()
				frame := styleIconSpinner.Render(spinnerFrames[i%len(spinnerFrames)])
				fmt.Fprintf(s.out, "\r%s %s", frame, StyleDim.Render(s.message))
				s.mu.Unlock()
			}
		}
	}()
}

// Stop ends the animation and clears the line. Later calls do nothing.
func (s *Spinner) Stop() {
	s.once.Do(func() {
		s.cancel()
		if s.stopped != nil {
			<-s.stopped
		}
	})
}

// SetMessage replaces the text shown next to the spinner. Shorter messages
// are padded so no trace of the old one remains.
func (s *Spinner) SetMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(message) < len(s.message) {
		message += strings.Repeat(" ", len(s.message)-len(message))
	}
	s.message = message
}

func (s *Spinner) clearLine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "\r%s\r", strings.Repeat(" ", len(s.message)+4))
}
