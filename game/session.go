package game

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"node.town/trivia/quiz"
)

const DefaultStopTimeout = 10 * time.Second

type QuestionSource interface {
	Fetch(ctx context.Context) []quiz.Question
}

// Narrator reads text aloud and returns when it is done. It does not
// fail; a broken narration is simply silent.
type Narrator interface {
	Narrate(ctx context.Context, text string)
}

type Evaluator interface {
	Evaluate(ctx context.Context, q quiz.Question, answer string) (quiz.Evaluation, error)
}

type Recorder interface {
	Start(ctx context.Context, onFailure func(error)) (quiz.Recording, error)
}

// Session drives one play-through. All transitions run on the goroutine
// that called Run; effects run on their own goroutines and report back
// as events.
type Session struct {
	source    QuestionSource
	narrator  Narrator
	evaluator Evaluator
	recorder  Recorder
	logger    *log.Logger

	StopTimeout time.Duration

	events  chan Event
	updates chan State
	done    chan int
	exited  chan struct{}

	mu    sync.Mutex
	state State
}

func NewSession(
	source QuestionSource,
	narrator Narrator,
	evaluator Evaluator,
	recorder Recorder,
	logger *log.Logger,
) *Session {
	state, _ := Begin()
	return &Session{
		source:      source,
		narrator:    narrator,
		evaluator:   evaluator,
		recorder:    recorder,
		logger:      logger,
		StopTimeout: DefaultStopTimeout,
		events:      make(chan Event, 16),
		updates:     make(chan State, 1),
		done:        make(chan int, 1),
		exited:      make(chan struct{}),
		state:       state,
	}
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Updates delivers the latest state after each transition. Slow readers
// skip intermediate states.
func (s *Session) Updates() <-chan State {
	return s.updates
}

// Done yields the final score once, when the session ends normally.
func (s *Session) Done() <-chan int {
	return s.done
}

func (s *Session) SelectOption(text string) {
	s.send(OptionSelected{Text: text})
}

func (s *Session) StartRecording() {
	s.send(RecordingRequested{})
}

func (s *Session) StopRecording() {
	s.send(StopRequested{})
}

func (s *Session) Advance() {
	s.send(AdvanceRequested{})
}

func (s *Session) send(ev Event) {
	select {
	case s.events <- ev:
	case <-s.exited:
	}
}

// post delivers an effect outcome unless the session has ended.
func (s *Session) post(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-s.exited:
		return false
	}
}

// Run plays the session until it ends or ctx is cancelled, returning the
// score. Cancelling releases any active recording.
func (s *Session) Run(ctx context.Context) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer close(s.exited)

	state, effects := Begin()
	s.publish(state)
	s.perform(ctx, effects)

	for {
		select {
		case ev := <-s.events:
			prev := s.Snapshot()
			next, effects := Step(prev, ev)
			if next.Phase != prev.Phase {
				s.logger.Info("phase", "from", prev.Phase, "to", next.Phase, "question", next.Index+1, "score", next.Score)
			}
			if next.Err != nil && next.Err != prev.Err {
				s.logger.Warn("recoverable failure", "error", next.Err)
			}
			s.publish(next)
			s.perform(ctx, effects)
			if next.Phase == Terminal {
				return next.Score, nil
			}

		case <-ctx.Done():
			s.release()
			return s.Snapshot().Score, ctx.Err()
		}
	}
}

func (s *Session) publish(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- state:
	default:
	}
}

// release stops the active recording of an abandoned session.
func (s *Session) release() {
	rec := s.Snapshot().Recording
	if rec == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.StopTimeout)
	defer cancel()
	if _, err := rec.Stop(ctx); err != nil {
		s.logger.Debug("release recording", "error", err)
	}
}

func (s *Session) perform(ctx context.Context, effects []Effect) {
	for _, effect := range effects {
		switch e := effect.(type) {
		case LoadQuestions:
			go func() {
				s.post(ctx, QuestionsLoaded{Questions: s.source.Fetch(ctx)})
			}()

		case Narrate:
			go func() {
				s.narrator.Narrate(ctx, e.Text)
				s.post(ctx, e.Done)
			}()

		case StartRecording:
			go s.startRecording(ctx)

		case StopRecording:
			go s.stopRecording(ctx, e.Recording)

		case Evaluate:
			go func() {
				result, err := s.evaluator.Evaluate(ctx, e.Question, e.Answer)
				if err != nil {
					s.post(ctx, EvaluationFailed{Index: e.Index, Err: err})
					return
				}
				s.post(ctx, Evaluated{Index: e.Index, Result: result})
			}()

		case Finish:
			s.logger.Info("game over", "score", e.Score, "questions", s.Snapshot().Total())
			s.done <- e.Score
			close(s.done)
		}
	}
}

func (s *Session) startRecording(ctx context.Context) {
	// The failure callback may fire before Start returns. It waits for
	// the id, which is only released once RecordingStarted is queued, so
	// the machine always sees the attempt before its failure.
	ids := make(chan string, 1)
	rec, err := s.recorder.Start(ctx, func(err error) {
		s.post(ctx, RecordingFailed{ID: <-ids, Err: err})
	})
	if err != nil {
		s.post(ctx, RecordingFailed{Err: err})
		return
	}

	started := s.post(ctx, RecordingStarted{Recording: rec})
	ids <- rec.ID()

	if !started {
		stopCtx, cancel := context.WithTimeout(context.Background(), s.StopTimeout)
		defer cancel()
		rec.Stop(stopCtx)
	}
}

func (s *Session) stopRecording(ctx context.Context, rec quiz.Recording) {
	stopCtx, cancel := context.WithTimeout(ctx, s.StopTimeout)
	defer cancel()

	text, err := rec.Stop(stopCtx)
	if err != nil {
		s.post(ctx, RecordingFailed{ID: rec.ID(), Err: err})
		return
	}
	s.post(ctx, TranscriptReady{ID: rec.ID(), Text: text})
}
