package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"node.town/trivia/audio"
	"node.town/trivia/quiz"
	"node.town/trivia/stt"
)

const DefaultCloseTimeout = 5 * time.Second

var ErrCaptureEnded = errors.New("microphone input ended")

// Recorder pairs the microphone with a transcription session for one
// spoken answer at a time.
type Recorder struct {
	capture      *audio.Capture
	transcriber  stt.Transcriber
	logger       *log.Logger
	CloseTimeout time.Duration
}

func New(
	capture *audio.Capture,
	transcriber stt.Transcriber,
	logger *log.Logger,
) *Recorder {
	return &Recorder{
		capture:      capture,
		transcriber:  transcriber,
		logger:       logger,
		CloseTimeout: DefaultCloseTimeout,
	}
}

// Start begins capturing and streaming. The microphone is opened first
// so a missing device never costs a transcription connection. onFailure
// is called at most once, only if the attempt breaks before Stop.
func (r *Recorder) Start(
	ctx context.Context,
	onFailure func(error),
) (quiz.Recording, error) {
	frames, err := r.capture.Start(ctx)
	if err != nil {
		return nil, err
	}

	session, err := r.transcriber.Open(ctx)
	if err != nil {
		r.capture.Stop()
		return nil, err
	}

	a := &Attempt{
		id:           uuid.NewString(),
		capture:      r.capture,
		session:      session,
		logger:       r.logger,
		closeTimeout: r.CloseTimeout,
		onFailure:    onFailure,
		pumpDone:     make(chan struct{}),
		stopped:      make(chan struct{}),
	}
	a.logger = a.logger.With("attempt", a.id[:8])

	go a.pump(frames)
	go a.watch()

	a.logger.Info("recording")
	return a, nil
}

// Attempt is one active recording: a capture feeding a transcription
// session until it is stopped or breaks.
type Attempt struct {
	id           string
	capture      *audio.Capture
	session      stt.Session
	logger       *log.Logger
	closeTimeout time.Duration
	onFailure    func(error)

	pumpDone chan struct{}
	stopped  chan struct{}

	mu       sync.Mutex
	stopping bool
	failed   bool

	stopOnce sync.Once
	text     string
	err      error
}

func (a *Attempt) ID() string {
	return a.id
}

func (a *Attempt) isStopping() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopping
}

func (a *Attempt) pump(frames <-chan audio.Frame) {
	defer close(a.pumpDone)

	for frame := range frames {
		if a.isStopping() {
			continue
		}
		if err := a.session.Send(frame); err != nil {
			a.logger.Debug("frame dropped", "seq", frame.Seq, "error", err)
		}
	}
}

// watch releases everything when the attempt breaks on its own.
func (a *Attempt) watch() {
	var cause error

	select {
	case <-a.stopped:
		return
	case <-a.session.Done():
		cause = a.session.Err()
		if cause == nil {
			// The service hung up cleanly; Stop still yields the
			// transcript.
			return
		}
	case <-a.pumpDone:
		cause = a.capture.Err()
		if cause == nil {
			return
		}
		cause = fmt.Errorf("%w: %v", ErrCaptureEnded, cause)
	}

	a.mu.Lock()
	if a.stopping {
		a.mu.Unlock()
		return
	}
	a.stopping = true
	a.failed = true
	a.mu.Unlock()

	a.logger.Error("recording failed", "error", cause)

	a.capture.Stop()
	<-a.pumpDone

	ctx, cancel := context.WithTimeout(context.Background(), a.closeTimeout)
	defer cancel()
	a.session.Close(ctx)

	if a.onFailure != nil {
		a.onFailure(cause)
	}
}

// Stop ends the recording and returns the final transcript. Later calls
// return the first result.
func (a *Attempt) Stop(ctx context.Context) (string, error) {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.stopping = true
		failed := a.failed
		a.mu.Unlock()
		close(a.stopped)

		if !failed {
			a.capture.Stop()
		}
		<-a.pumpDone

		if a.closeTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, a.closeTimeout)
			defer cancel()
		}
		a.text, a.err = a.session.Close(ctx)
		if a.err != nil {
			a.logger.Warn("transcript unavailable", "error", a.err)
			return
		}
		a.logger.Info("stopped", "txt", a.text)
	})
	return a.text, a.err
}
