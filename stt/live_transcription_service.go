package stt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"node.town/trivia/audio"
)

var (
	ErrConnection    = errors.New("transcription connection failed")
	ErrTranscription = errors.New("transcription stream failed")
	ErrSessionClosed = errors.New("transcription session closed")
)

// Session is one duplex transcription channel. Frames sent are written
// to the service in submission order. Close is the only finalization.
type Session interface {
	Send(frame audio.Frame) error
	Done() <-chan struct{}
	Err() error
	Close(ctx context.Context) (string, error)
}

type Transcriber interface {
	Open(ctx context.Context) (Session, error)
}

const outboxSize = 64

// stream is the lifecycle shared by the backends: an ordered outbox
// drained by a single writer, the transcript accumulator and the
// transport state.
type stream struct {
	logger *log.Logger
	acc    Accumulator

	outbox     chan []byte
	flush      chan struct{}
	writerDone chan struct{}
	done       chan struct{}
	doneOnce   sync.Once

	mu      sync.Mutex
	err     error
	closing bool

	closeOnce sync.Once
	result    string
	resultErr error
}

func newStream(logger *log.Logger) *stream {
	return &stream{
		logger:     logger,
		outbox:     make(chan []byte, outboxSize),
		flush:      make(chan struct{}),
		writerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (s *stream) Done() <-chan struct{} {
	return s.done
}

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) apply(ev Event) {
	if p, ok := ev.(Partial); ok {
		s.logger.Debug("hear", "tmp", p.Text)
	}
	s.acc.Apply(ev)
}

func (s *stream) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// fail records a transport error unless the session is already being
// closed on purpose, and ends the transport. Read errors after a close
// request are the expected end of the stream.
func (s *stream) fail(err error) {
	s.record(err, false)
}

// abort records a transport error even while closing; frames that
// could not be written are lost.
func (s *stream) abort(err error) {
	s.record(err, true)
}

func (s *stream) record(err error, always bool) {
	s.mu.Lock()
	if s.err == nil && (always || !s.closing) {
		s.err = fmt.Errorf("%w: %v", ErrTranscription, err)
		s.logger.Error("transcription failed", "error", err)
	}
	s.mu.Unlock()
	s.finish()
}

func (s *stream) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *stream) enqueue(data []byte) error {
	if s.isClosing() {
		return ErrSessionClosed
	}
	select {
	case <-s.done:
		if err := s.Err(); err != nil {
			return err
		}
		return ErrSessionClosed
	default:
	}

	select {
	case s.outbox <- data:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// writeLoop writes queued payloads in order until the outbox is
// flushed or the transport ends. endOfStream runs after the flush.
func (s *stream) writeLoop(
	write func([]byte) error,
	endOfStream func() error,
) {
	defer close(s.writerDone)

	for {
		select {
		case data := <-s.outbox:
			if err := write(data); err != nil {
				s.abort(err)
				return
			}
		case <-s.flush:
			for {
				select {
				case data := <-s.outbox:
					if err := write(data); err != nil {
						s.abort(err)
						return
					}
				default:
					if endOfStream != nil {
						if err := endOfStream(); err != nil {
							s.logger.Warn("end of stream", "error", err)
						}
					}
					return
				}
			}
		case <-s.done:
			return
		}
	}
}

// beginClose stops accepting frames and waits for queued frames to be
// written.
func (s *stream) beginClose(ctx context.Context) {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	close(s.flush)

	select {
	case <-s.writerDone:
	case <-s.done:
	case <-ctx.Done():
	}
}

// settle finalizes the transcript once the transport is released.
func (s *stream) settle() {
	s.finish()
	text := s.acc.Finalize()
	if err := s.Err(); err != nil {
		s.result, s.resultErr = "", err
		return
	}
	s.result = text
	s.logger.Info("hear", "txt", text, "turns", s.acc.Turns())
}
