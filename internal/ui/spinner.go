package ui

import (
	"fmt"
	"io"
	"time"
)

// Spinner animates a one-line progress indicator, used while waiting for a
// receipt outside the TUI.
type Spinner struct {
	w    io.Writer
	msg  string
	stop chan struct{}
	done chan struct{}
}

// NewSpinner creates a spinner that draws msg on w.
func NewSpinner(w io.Writer, msg string) *Spinner {
	return &Spinner{
		w:    w,
		msg:  msg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start begins the animation in a goroutine.
func (s *Spinner) Start() {
	go func() {
		defer close(s.done)
		tick := time.NewTicker(80 * time.Millisecond)
		defer tick.Stop()
		for i := 0; ; i++ {
			fmt.Fprintf(s.w, "\r%s  %s", StyleToken.Render(spinFrames[i%len(spinFrames)]), s.msg)
			select {
			case <-s.stop:
				fmt.Fprintf(s.w, "\r%-60s\r", "")
				return
			case <-tick.C:
			}
		}
	}()
}

// Stop halts the spinner and waits for it to clear its line.
func (s *Spinner) Stop() {
	close(s.stop)
	<-s.done
}
