package main

import (
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"

	"github.com/user/a11y-audit-service/internal/usecase"
)

const maxSpinnerURL = 60

// progressDisplay renders orchestrator progress events on a spinner.
type progressDisplay struct {
	spin *spinner.Spinner
	done chan struct{}
}

// startProgress consumes events until the channel is closed.
func startProgress(w io.Writer, events <-chan usecase.ProgressEvent) *progressDisplay {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " Starting audit"
	s.Start()

	d := &progressDisplay{spin: s, done: make(chan struct{})}
	go func() {
		defer close(d.done)
		for ev := range events {
			s.Lock()
			s.Suffix = formatEvent(ev)
			s.Unlock()
		}
	}()
	return d
}

// wait blocks until the event channel is drained, then clears the spinner.
func (d *progressDisplay) wait() {
	<-d.done
	d.spin.Stop()
}

func formatEvent(ev usecase.ProgressEvent) string {
	msg := fmt.Sprintf(" [%d/%d] %s %s", ev.Processed, ev.Total, ev.Status, shortenURL(ev.URL))
	if ev.Attempt > 1 {
		msg += fmt.Sprintf(" (attempt %d)", ev.Attempt)
	}
	return msg
}

func shortenURL(u string) string {
	if len(u) <= maxSpinnerURL {
		return u
	}
	return u[:maxSpinnerURL-3] + "..."
}
