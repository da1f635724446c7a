package stt

import (
	"strings"
	"sync"
)

// Event is one message of a live transcription session.
type Event interface {
	event()
}

// Partial carries a fragment of recognized text, in arrival order.
type Partial struct {
	Text string
}

// TurnComplete means the service considers the utterance finished.
// The session stays open and later partials still count.
type TurnComplete struct{}

// Closed finalizes the transcript.
type Closed struct {
	Text string
}

func (Partial) event()      {}
func (TurnComplete) event() {}
func (Closed) event()       {}

// Accumulator folds session events into a transcript. The transcript
// is only observable after a Closed event.
type Accumulator struct {
	mu     sync.Mutex
	buf    strings.Builder
	turns  int
	closed bool
	final  string
}

func (a *Accumulator) Apply(ev Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}

	switch e := ev.(type) {
	case Partial:
		a.buf.WriteString(e.Text)
	case TurnComplete:
		a.turns++
	case Closed:
		a.closed = true
		a.final = strings.TrimSpace(e.Text)
	}
}

// Buffered returns the raw text received so far.
func (a *Accumulator) Buffered() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.String()
}

func (a *Accumulator) Turns() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.turns
}

func (a *Accumulator) Transcript() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.final, a.closed
}

// Finalize closes the accumulator over everything buffered so far and
// returns the trimmed transcript. Later calls return the same text.
func (a *Accumulator) Finalize() string {
	a.Apply(Closed{Text: a.Buffered()})
	text, _ := a.Transcript()
	return text
}
